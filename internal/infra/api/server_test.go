//go:build !integration

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/adapter"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/adapters/payment"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/db/memory"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/ratelimit"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/security"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/usecase"
)

const (
	testTOTPSecret = "JBSWY3DPEHPK3PXP"
	testNASSecret  = "nas-shared-secret"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	clock   *testClock
	store   *memory.Store
	gateway *payment.SandboxGateway
	totp    *security.TOTP
	handler http.Handler
}

func newHarness(t *testing.T, opts Options, gatewayTimeout time.Duration, gw *payment.SandboxGateway) *harness {
	t.Helper()
	ctx := context.Background()
	clock := &testClock{t: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)}
	log := zerolog.Nop()
	store := memory.NewStore()
	store.Tokens.WithClock(clock.Now)

	plans := usecase.NewPlanUseCase(store.Plans, &log)
	fiveHours, _ := model.NewPlan("5h", "5 Hours", 5, 200, "USD")
	if _, err := plans.Seed(ctx, append(model.DefaultPlans(), fiveHours)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if gw == nil {
		gw = payment.NewSandboxGateway(adapter.ChargeSuccessful)
	}
	gw.WithClock(clock.Now)

	withClock := usecase.WithClock(clock.Now)
	codes := usecase.NewCodeRegistry(usecase.CodeRegistryConfig{Length: 12, MaxBatch: 100, PendingTTL: 24 * time.Hour},
		store.Codes, store.Plans, store.TxManager, &log, withClock)
	guard := usecase.NewExclusionGuard(store.Exclusions, &log, withClock)
	issuer, err := security.NewTokenIssuer("0123456789abcdef0123456789abcdef", "portal-test", clock.Now)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	totp := security.NewTOTP()
	auth := usecase.NewAdminAuthUseCase(usecase.AdminAuthConfig{TempTokenTTL: 5 * time.Minute, AccessTTL: time.Hour, MaxAttempts: 5, AttemptWindow: time.Minute},
		store.Admins, store.Tokens, security.NewHasher(4), totp, issuer, ratelimit.NewAttempts(), &log, withClock)
	if _, err := auth.Enroll(ctx, "root", "correct horse", testTOTPSecret); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	srv := NewServer(Deps{
		Plans:    plans,
		Codes:    codes,
		Sessions: usecase.NewSessionManager(codes, guard, &log, withClock),
		Payments: usecase.NewPaymentUseCase(usecase.PaymentConfig{GatewayTimeout: gatewayTimeout}, store.Transactions, store.Plans,
			codes, store.Codes, guard, gw, store.TxManager, &log, withClock),
		Auth:       auth,
		Exclusions: guard,
		Stats:      usecase.NewStatsUseCase(store.Codes, store.Transactions, &log, withClock),
	}, opts, &log)

	return &harness{clock: clock, store: store, gateway: gw, totp: totp, handler: srv.Router()}
}

func defaultOpts() Options {
	return Options{ManualStart: true, NASSecret: testNASSecret, MetricsEnabled: true}
}

type call struct {
	method string
	path   string
	body   any
	header map[string]string
}

func (h *harness) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		if err := json.NewEncoder(&buf).Encode(c.body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

type adminCreds struct {
	access string
	csrf   string
}

func (a adminCreds) headers(mutating bool) map[string]string {
	h := map[string]string{"Authorization": "Bearer " + a.access}
	if mutating {
		h[csrfHeader] = a.csrf
	}
	return h
}

// login runs the two-step flow and returns the access credentials.
func (h *harness) login(t *testing.T) adminCreds {
	t.Helper()
	rec := h.do(t, call{method: http.MethodPost, path: "/admin/login", body: map[string]string{"username": "root", "password": "correct horse"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	var temp loginResponse
	decodeBody(t, rec, &temp)

	code, err := h.totp.Code(testTOTPSecret, h.clock.Now())
	if err != nil {
		t.Fatalf("totp: %v", err)
	}
	rec = h.do(t, call{
		method: http.MethodPost, path: "/admin/verify-totp",
		body:   map[string]string{"totp_code": code},
		header: map[string]string{"Authorization": "Bearer " + temp.TempToken, csrfHeader: temp.CSRFToken},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify-totp: %d %s", rec.Code, rec.Body.String())
	}
	var grant verifyTOTPResponse
	decodeBody(t, rec, &grant)
	return adminCreds{access: grant.AccessToken, csrf: grant.CSRFToken}
}

type generateResponse struct {
	Codes          []generatedCode `json:"codes"`
	RemainingCodes int64           `json:"remaining_codes"`
}

func (h *harness) generate(t *testing.T, creds adminCreds, planID string, n int) []generatedCode {
	t.Helper()
	rec := h.do(t, call{method: http.MethodPost, path: "/payments/generate-codes", body: map[string]any{"plan_id": planID, "quantity": n}, header: creds.headers(true)})
	if rec.Code != http.StatusCreated {
		t.Fatalf("generate: %d %s", rec.Code, rec.Body.String())
	}
	var out generateResponse
	decodeBody(t, rec, &out)
	return out.Codes
}
