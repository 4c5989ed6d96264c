//go:build !integration

package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/adapter"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/db/memory"
)

var admin = &model.AdminSession{AdminID: "a1", Username: "root", Scope: model.ScopeAdmin}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeGateway answers from the configured functions and counts calls.
type fakeGateway struct {
	requests int32
	polls    int32
	request  func(ctx context.Context, req adapter.ChargeRequest) error
	status   func(ctx context.Context, ref string) (adapter.ChargeResult, error)
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) RequestToPay(ctx context.Context, req adapter.ChargeRequest) error {
	atomic.AddInt32(&g.requests, 1)
	if g.request == nil {
		return nil
	}
	return g.request(ctx, req)
}

func (g *fakeGateway) ChargeStatus(ctx context.Context, ref string) (adapter.ChargeResult, error) {
	atomic.AddInt32(&g.polls, 1)
	if g.status == nil {
		return adapter.ChargeResult{Status: adapter.ChargePending}, nil
	}
	return g.status(ctx, ref)
}

type fixture struct {
	clock    *fakeClock
	store    *memory.Store
	codes    *codeRegistry
	guard    *exclusionGuard
	sessions *sessionManager
	log      *zerolog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := newFakeClock()
	store := memory.NewStore()
	for _, p := range model.DefaultPlans() {
		if err := store.Plans.Save(ctx, nil, p); err != nil {
			t.Fatalf("seed plan: %v", err)
		}
	}
	log := zerolog.Nop()
	codes := NewCodeRegistry(CodeRegistryConfig{Length: 12, MaxBatch: 100, PendingTTL: 24 * time.Hour},
		store.Codes, store.Plans, store.TxManager, &log, WithClock(clock.Now))
	guard := NewExclusionGuard(store.Exclusions, &log, WithClock(clock.Now))
	return &fixture{
		clock:    clock,
		store:    store,
		codes:    codes,
		guard:    guard,
		sessions: NewSessionManager(codes, guard, &log, WithClock(clock.Now)),
		log:      &log,
	}
}

func (f *fixture) payments(gw adapter.PaymentGateway, timeout time.Duration) *paymentUC {
	return NewPaymentUseCase(PaymentConfig{GatewayTimeout: timeout}, f.store.Transactions, f.store.Plans,
		f.codes, f.store.Codes, f.guard, gw, f.store.TxManager, f.log, WithClock(f.clock.Now))
}

// issue generates a single code for plan and returns its string.
func (f *fixture) issue(t *testing.T, planID string) string {
	t.Helper()
	b, err := f.codes.GenerateBatch(context.Background(), admin, planID, 1)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return b.Codes[0].Code
}
