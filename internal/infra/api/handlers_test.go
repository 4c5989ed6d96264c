//go:build !integration

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/adapter"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/adapters/payment"
)

func TestHealthAndCatalog(t *testing.T) {
	h := newHarness(t, defaultOpts(), time.Second, nil)

	t.Run("healthz 200", func(t *testing.T) {
		rec := h.do(t, call{method: http.MethodGet, path: "/healthz"})
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
		if rec.Header().Get(traceHeader) == "" {
			t.Fatal("expected a request id header")
		}
	})

	t.Run("packages lists the seeded plans", func(t *testing.T) {
		rec := h.do(t, call{method: http.MethodGet, path: "/payments/packages"})
		var body struct {
			Packages []packageView `json:"packages"`
		}
		decodeBody(t, rec, &body)
		if len(body.Packages) != 4 {
			t.Fatalf("want 4 packages, got %+v", body.Packages)
		}
	})

	t.Run("metrics endpoint is mounted", func(t *testing.T) {
		rec := h.do(t, call{method: http.MethodGet, path: "/metrics"})
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
	})
}

func TestGenerateCodes_Auth(t *testing.T) {
	h := newHarness(t, defaultOpts(), time.Second, nil)
	creds := h.login(t)
	body := map[string]any{"plan_id": "5h", "quantity": 3}

	t.Run("401 without a token", func(t *testing.T) {
		rec := h.do(t, call{method: http.MethodPost, path: "/payments/generate-codes", body: body})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d", rec.Code)
		}
	})

	t.Run("401 without the csrf header", func(t *testing.T) {
		rec := h.do(t, call{method: http.MethodPost, path: "/payments/generate-codes", body: body, header: creds.headers(false)})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d", rec.Code)
		}
	})

	t.Run("201 with token and csrf", func(t *testing.T) {
		codes := h.generate(t, creds, "5h", 3)
		if len(codes) != 3 {
			t.Fatalf("want 3 codes, got %d", len(codes))
		}
		if codes[0].PlanName != "5 Hours" || codes[0].DurationHours != 5 || codes[0].Price != 2 {
			t.Fatalf("unexpected code %+v", codes[0])
		}
	})

	t.Run("400 on quantity out of range", func(t *testing.T) {
		rec := h.do(t, call{method: http.MethodPost, path: "/payments/generate-codes", body: map[string]any{"plan_id": "5h", "quantity": 101}, header: creds.headers(true)})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})

	t.Run("400 on malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/payments/generate-codes", strings.NewReader("{"))
		for k, v := range creds.headers(true) {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})
}

func TestCodeLifecycle(t *testing.T) {
	h := newHarness(t, defaultOpts(), time.Second, nil)
	creds := h.login(t)
	code := h.generate(t, creds, "5h", 3)[0].Code

	// --- activate ---
	rec := h.do(t, call{method: http.MethodPost, path: "/payments/activate-code", body: map[string]string{"code": code}, header: map[string]string{macHeader: "aa-bb-cc-dd-ee-ff"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("activate: %d %s", rec.Code, rec.Body.String())
	}
	rec = h.do(t, call{method: http.MethodPost, path: "/payments/activate-code", body: map[string]string{"code": code}})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second activate: want 409, got %d", rec.Code)
	}

	// --- start session ---
	rec = h.do(t, call{method: http.MethodPost, path: "/payments/start-session", body: map[string]string{"code": code}})
	if rec.Code != http.StatusOK {
		t.Fatalf("start-session: %d %s", rec.Code, rec.Body.String())
	}
	var started struct {
		Expiry time.Time `json:"expiry"`
	}
	decodeBody(t, rec, &started)
	if want := h.clock.Now().Add(5 * time.Hour); !started.Expiry.Equal(want) {
		t.Fatalf("expiry %v, want %v", started.Expiry, want)
	}

	// --- check one hour later ---
	h.clock.Advance(time.Hour)
	rec = h.do(t, call{method: http.MethodGet, path: "/payments/check-code-access?code=" + code})
	var access struct {
		Status    string  `json:"status"`
		Remaining float64 `json:"remaining_time_hours"`
	}
	decodeBody(t, rec, &access)
	if access.Status != "ACTIVE" || access.Remaining != 4.0 {
		t.Fatalf("unexpected access %+v", access)
	}

	// --- lazy expiry ---
	h.clock.Advance(5 * time.Hour)
	rec = h.do(t, call{method: http.MethodGet, path: "/payments/check-code-access?code=" + code})
	decodeBody(t, rec, &access)
	if access.Status != "EXPIRED" || access.Remaining != 0 {
		t.Fatalf("expected expired, got %+v", access)
	}
	rec = h.do(t, call{method: http.MethodPost, path: "/payments/start-session", body: map[string]string{"code": code}})
	if rec.Code != http.StatusConflict {
		t.Fatalf("start on expired: want 409, got %d", rec.Code)
	}
}

func TestCheckCodeAccess_Errors(t *testing.T) {
	h := newHarness(t, defaultOpts(), time.Second, nil)

	if rec := h.do(t, call{method: http.MethodGet, path: "/payments/check-code-access"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing code: want 400, got %d", rec.Code)
	}
	if rec := h.do(t, call{method: http.MethodGet, path: "/payments/check-code-access?code=ZZZZZZZZZZZZ"}); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown code: want 404, got %d", rec.Code)
	}
}

func TestPayments(t *testing.T) {
	t.Run("should mint exactly one code on repeated verify", func(t *testing.T) {
		h := newHarness(t, defaultOpts(), time.Second, nil)
		rec := h.do(t, call{method: http.MethodPost, path: "/payments/initiate", body: map[string]string{"phone_number": "+12025550123", "package_id": "2"}})
		if rec.Code != http.StatusOK {
			t.Fatalf("initiate: %d %s", rec.Code, rec.Body.String())
		}
		var init struct {
			TransactionID string `json:"transaction_id"`
		}
		decodeBody(t, rec, &init)

		var first, second transactionView
		decodeBody(t, h.do(t, call{method: http.MethodPost, path: "/payments/verify/" + init.TransactionID}), &first)
		decodeBody(t, h.do(t, call{method: http.MethodPost, path: "/payments/verify/" + init.TransactionID}), &second)

		if first.Status != "SUCCESSFUL" || first.AccessCode == "" {
			t.Fatalf("unexpected first verify %+v", first)
		}
		if second.AccessCode != first.AccessCode {
			t.Fatalf("re-verify minted a new code: %s vs %s", second.AccessCode, first.AccessCode)
		}
		if first.Amount != 2 || first.PhoneNumber != "+12025550123" {
			t.Fatalf("unexpected amount/phone %+v", first)
		}
	})

	t.Run("should refuse an excluded phone with 403", func(t *testing.T) {
		h := newHarness(t, defaultOpts(), time.Second, nil)
		creds := h.login(t)
		rec := h.do(t, call{method: http.MethodPost, path: "/admin/exclusions", header: creds.headers(true), body: map[string]any{
			"type": "PHONE", "value": "+10000000000", "exclude_from_payment": true,
		}})
		if rec.Code != http.StatusCreated {
			t.Fatalf("add exclusion: %d %s", rec.Code, rec.Body.String())
		}

		rec = h.do(t, call{method: http.MethodPost, path: "/payments/initiate", body: map[string]string{"phone_number": "+10000000000", "package_id": "1"}})
		if rec.Code != http.StatusForbidden {
			t.Fatalf("want 403, got %d", rec.Code)
		}
	})

	t.Run("400 on a malformed phone", func(t *testing.T) {
		h := newHarness(t, defaultOpts(), time.Second, nil)
		rec := h.do(t, call{method: http.MethodPost, path: "/payments/initiate", body: map[string]string{"phone_number": "12345", "package_id": "1"}})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})

	t.Run("404 on an unknown transaction", func(t *testing.T) {
		h := newHarness(t, defaultOpts(), time.Second, nil)
		rec := h.do(t, call{method: http.MethodPost, path: "/payments/verify/does-not-exist"})
		if rec.Code != http.StatusNotFound {
			t.Fatalf("want 404, got %d", rec.Code)
		}
	})

	t.Run("504 with the transaction id when the gateway is slow", func(t *testing.T) {
		slow := payment.NewSandboxGateway(adapter.ChargeSuccessful).WithLatency(500 * time.Millisecond)
		h := newHarness(t, defaultOpts(), 20*time.Millisecond, slow)
		rec := h.do(t, call{method: http.MethodPost, path: "/payments/initiate", body: map[string]string{"phone_number": "+12025550123", "package_id": "1"}})
		if rec.Code != http.StatusGatewayTimeout {
			t.Fatalf("want 504, got %d", rec.Code)
		}
		var body errorBody
		decodeBody(t, rec, &body)
		if body.TransactionID == "" {
			t.Fatal("expected the pending transaction id in the error body")
		}
	})

	t.Run("stays pending while the provider has not settled", func(t *testing.T) {
		gw := payment.NewSandboxGateway(adapter.ChargeSuccessful).WithSettleAfter(time.Minute)
		h := newHarness(t, defaultOpts(), time.Second, gw)
		var init struct {
			TransactionID string `json:"transaction_id"`
		}
		decodeBody(t, h.do(t, call{method: http.MethodPost, path: "/payments/initiate", body: map[string]string{"phone_number": "+12025550123", "package_id": "1"}}), &init)

		var v transactionView
		decodeBody(t, h.do(t, call{method: http.MethodPost, path: "/payments/verify/" + init.TransactionID}), &v)
		if v.Status != "PENDING" || v.AccessCode != "" {
			t.Fatalf("expected pending, got %+v", v)
		}
		h.clock.Advance(2 * time.Minute)
		decodeBody(t, h.do(t, call{method: http.MethodPost, path: "/payments/verify/" + init.TransactionID}), &v)
		if v.Status != "SUCCESSFUL" || v.AccessCode == "" {
			t.Fatalf("expected successful, got %+v", v)
		}
	})
}

func TestAdminLogin(t *testing.T) {
	t.Run("401 on bad password", func(t *testing.T) {
		h := newHarness(t, defaultOpts(), time.Second, nil)
		rec := h.do(t, call{method: http.MethodPost, path: "/admin/login", body: map[string]string{"username": "root", "password": "nope"}})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d", rec.Code)
		}
	})

	t.Run("temp token is single use", func(t *testing.T) {
		h := newHarness(t, defaultOpts(), time.Second, nil)
		var temp loginResponse
		decodeBody(t, h.do(t, call{method: http.MethodPost, path: "/admin/login", body: map[string]string{"username": "root", "password": "correct horse"}}), &temp)
		code, _ := h.totp.Code(testTOTPSecret, h.clock.Now())
		hdr := map[string]string{"Authorization": "Bearer " + temp.TempToken, csrfHeader: temp.CSRFToken}

		if rec := h.do(t, call{method: http.MethodPost, path: "/admin/verify-totp", body: map[string]string{"totp_code": code}, header: hdr}); rec.Code != http.StatusOK {
			t.Fatalf("first verify: %d", rec.Code)
		}
		if rec := h.do(t, call{method: http.MethodPost, path: "/admin/verify-totp", body: map[string]string{"totp_code": code}, header: hdr}); rec.Code != http.StatusUnauthorized {
			t.Fatalf("replay: want 401, got %d", rec.Code)
		}
	})

	t.Run("404 once the temp token expired", func(t *testing.T) {
		h := newHarness(t, defaultOpts(), time.Second, nil)
		var temp loginResponse
		decodeBody(t, h.do(t, call{method: http.MethodPost, path: "/admin/login", body: map[string]string{"username": "root", "password": "correct horse"}}), &temp)
		h.clock.Advance(6 * time.Minute)
		code, _ := h.totp.Code(testTOTPSecret, h.clock.Now())
		rec := h.do(t, call{method: http.MethodPost, path: "/admin/verify-totp", body: map[string]string{"totp_code": code},
			header: map[string]string{"Authorization": "Bearer " + temp.TempToken, csrfHeader: temp.CSRFToken}})
		if rec.Code != http.StatusNotFound {
			t.Fatalf("want 404, got %d", rec.Code)
		}
	})

	t.Run("temp token does not open admin routes", func(t *testing.T) {
		h := newHarness(t, defaultOpts(), time.Second, nil)
		var temp loginResponse
		decodeBody(t, h.do(t, call{method: http.MethodPost, path: "/admin/login", body: map[string]string{"username": "root", "password": "correct horse"}}), &temp)
		rec := h.do(t, call{method: http.MethodGet, path: "/admin/me", header: map[string]string{"Authorization": "Bearer " + temp.TempToken}})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d", rec.Code)
		}
	})

	t.Run("me, then logout revokes the token", func(t *testing.T) {
		h := newHarness(t, defaultOpts(), time.Second, nil)
		creds := h.login(t)
		rec := h.do(t, call{method: http.MethodGet, path: "/admin/me", header: creds.headers(false)})
		if rec.Code != http.StatusOK {
			t.Fatalf("me: %d", rec.Code)
		}
		if rec := h.do(t, call{method: http.MethodPost, path: "/admin/logout", header: creds.headers(true)}); rec.Code != http.StatusOK {
			t.Fatalf("logout: %d", rec.Code)
		}
		if rec := h.do(t, call{method: http.MethodGet, path: "/admin/me", header: creds.headers(false)}); rec.Code != http.StatusUnauthorized {
			t.Fatalf("after logout: want 401, got %d", rec.Code)
		}
	})
}

func TestAdminConsole(t *testing.T) {
	h := newHarness(t, defaultOpts(), time.Second, nil)
	creds := h.login(t)
	h.generate(t, creds, "1", 2)

	for _, path := range []string{"/admin/users", "/admin/transactions?limit=10", "/admin/codes?status=unused", "/admin/stats", "/admin/exclusions"} {
		t.Run("GET "+path, func(t *testing.T) {
			rec := h.do(t, call{method: http.MethodGet, path: path, header: creds.headers(false)})
			if rec.Code != http.StatusOK {
				t.Fatalf("want 200, got %d %s", rec.Code, rec.Body.String())
			}
		})
	}

	t.Run("codes filter rejects unknown status", func(t *testing.T) {
		rec := h.do(t, call{method: http.MethodGet, path: "/admin/codes?status=bogus", header: creds.headers(false)})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})

	t.Run("exclusion add, conflict, delete", func(t *testing.T) {
		body := map[string]any{"type": "MAC", "value": "aa:bb:cc:dd:ee:ff", "exclude_from_connection": true}
		rec := h.do(t, call{method: http.MethodPost, path: "/admin/exclusions", body: body, header: creds.headers(true)})
		if rec.Code != http.StatusCreated {
			t.Fatalf("add: %d %s", rec.Code, rec.Body.String())
		}
		var e exclusionView
		decodeBody(t, rec, &e)
		if e.Value != "AA:BB:CC:DD:EE:FF" {
			t.Fatalf("expected canonical MAC, got %s", e.Value)
		}
		if rec := h.do(t, call{method: http.MethodPost, path: "/admin/exclusions", body: body, header: creds.headers(true)}); rec.Code != http.StatusConflict {
			t.Fatalf("duplicate: want 409, got %d", rec.Code)
		}
		if rec := h.do(t, call{method: http.MethodDelete, path: "/admin/exclusions/" + e.ID, header: creds.headers(true)}); rec.Code != http.StatusNoContent {
			t.Fatalf("delete: want 204, got %d", rec.Code)
		}
		if rec := h.do(t, call{method: http.MethodDelete, path: "/admin/exclusions/" + e.ID, header: creds.headers(true)}); rec.Code != http.StatusNotFound {
			t.Fatalf("second delete: want 404, got %d", rec.Code)
		}
	})
}

func TestNetworkAttach(t *testing.T) {
	t.Run("requires the controller secret", func(t *testing.T) {
		h := newHarness(t, defaultOpts(), time.Second, nil)
		rec := h.do(t, call{method: http.MethodPost, path: "/network/attach", body: map[string]string{"code": "X", "mac_address": "AA:BB:CC:DD:EE:FF"},
			header: map[string]string{"Authorization": "Bearer wrong"}})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d", rec.Code)
		}
	})

	t.Run("is not mounted without a controller secret", func(t *testing.T) {
		opts := defaultOpts()
		opts.NASSecret = ""
		h := newHarness(t, opts, time.Second, nil)
		rec := h.do(t, call{method: http.MethodPost, path: "/network/attach", body: map[string]string{"code": "X", "mac_address": "AA:BB:CC:DD:EE:FF"},
			header: map[string]string{"Authorization": "Bearer " + testNASSecret}})
		if rec.Code != http.StatusNotFound {
			t.Fatalf("want 404, got %d", rec.Code)
		}
	})

	t.Run("starts the session and honours connection exclusions", func(t *testing.T) {
		h := newHarness(t, defaultOpts(), time.Second, nil)
		creds := h.login(t)
		codes := h.generate(t, creds, "1", 2)
		nas := map[string]string{"Authorization": "Bearer " + testNASSecret}
		for _, c := range codes {
			h.do(t, call{method: http.MethodPost, path: "/payments/activate-code", body: map[string]string{"code": c.Code}})
		}
		h.do(t, call{method: http.MethodPost, path: "/admin/exclusions", header: creds.headers(true), body: map[string]any{
			"type": "MAC", "value": "11:22:33:44:55:66", "exclude_from_connection": true,
		}})

		rec := h.do(t, call{method: http.MethodPost, path: "/network/attach", header: nas, body: map[string]string{"code": codes[0].Code, "mac_address": "AA:BB:CC:DD:EE:FF"}})
		if rec.Code != http.StatusOK {
			t.Fatalf("attach: %d %s", rec.Code, rec.Body.String())
		}
		rec = h.do(t, call{method: http.MethodPost, path: "/network/attach", header: nas, body: map[string]string{"code": codes[1].Code, "mac_address": "11-22-33-44-55-66"}})
		if rec.Code != http.StatusForbidden {
			t.Fatalf("excluded device: want 403, got %d", rec.Code)
		}
	})

	t.Run("optional routes are not mounted when disabled", func(t *testing.T) {
		h := newHarness(t, Options{}, time.Second, nil)
		if rec := h.do(t, call{method: http.MethodPost, path: "/network/attach", body: map[string]string{}}); rec.Code != http.StatusNotFound {
			t.Fatalf("attach: want 404, got %d", rec.Code)
		}
		if rec := h.do(t, call{method: http.MethodPost, path: "/payments/start-session", body: map[string]string{}}); rec.Code != http.StatusNotFound {
			t.Fatalf("start-session: want 404, got %d", rec.Code)
		}
		if rec := h.do(t, call{method: http.MethodGet, path: "/metrics"}); rec.Code != http.StatusNotFound {
			t.Fatalf("metrics: want 404, got %d", rec.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	log := zerolog.Nop()

	t.Run("rate limit answers 429 per client ip", func(t *testing.T) {
		h := newHarness(t, Options{RateLimitRPS: 1, RateLimitBurst: 1}, time.Second, nil)
		if rec := h.do(t, call{method: http.MethodGet, path: "/payments/packages"}); rec.Code != http.StatusOK {
			t.Fatalf("first: %d", rec.Code)
		}
		if rec := h.do(t, call{method: http.MethodGet, path: "/payments/packages"}); rec.Code != http.StatusTooManyRequests {
			t.Fatalf("second: want 429, got %d", rec.Code)
		}
		if rec := h.do(t, call{method: http.MethodGet, path: "/healthz"}); rec.Code != http.StatusOK {
			t.Fatalf("healthz must bypass the limiter, got %d", rec.Code)
		}
	})

	t.Run("recover turns a panic into 500", func(t *testing.T) {
		hdl := chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }), TraceID(), Recover(&log))
		rec := httptest.NewRecorder()
		hdl.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("want 500, got %d", rec.Code)
		}
	})

	t.Run("trace id is reused when well formed", func(t *testing.T) {
		hdl := chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}), TraceID())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(traceHeader, "6f1c1a9e-2b1e-4c53-9f43-0d3c1f0a8a11")
		rec := httptest.NewRecorder()
		hdl.ServeHTTP(rec, req)
		if rec.Header().Get(traceHeader) != "6f1c1a9e-2b1e-4c53-9f43-0d3c1f0a8a11" {
			t.Fatalf("trace id not echoed: %q", rec.Header().Get(traceHeader))
		}
	})

	t.Run("chain runs middleware in the order given", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}
		hdl := chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }), mark("outer"), mark("inner"))
		hdl.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		if strings.Join(order, ",") != "outer,inner,handler" {
			t.Fatalf("unexpected order %v", order)
		}
	})

	t.Run("timeout bounds the request context", func(t *testing.T) {
		var deadline bool
		hdl := chain(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			_, deadline = r.Context().Deadline()
		}), Timeout(time.Second))
		hdl.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		if !deadline {
			t.Fatal("expected a deadline on the request context")
		}
	})
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.Validationf("x"), http.StatusBadRequest},
		{domain.ErrUnauthenticated, http.StatusUnauthorized},
		{domain.Forbiddenf("x"), http.StatusForbidden},
		{domain.ErrCodeNotFound, http.StatusNotFound},
		{domain.ErrCodeUsed, http.StatusConflict},
		{domain.Wrap(domain.KindUpstreamTimeout, "slow", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusOf(tc.err); got != tc.want {
			t.Errorf("statusOf(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
