package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*SandboxGateway)(nil)

// SandboxGateway is an in-memory gateway for development and tests. Every
// charge resolves to the configured outcome, optionally after a delay.
type SandboxGateway struct {
	mu      sync.Mutex
	outcome adapter.ChargeStatus
	latency time.Duration
	settle  time.Duration
	now     func() time.Time
	charges map[string]sandboxCharge
}

type sandboxCharge struct {
	req      adapter.ChargeRequest
	accepted time.Time
	seq      int
}

// ParseSandboxOutcome maps the config value to a charge status.
func ParseSandboxOutcome(s string) (adapter.ChargeStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "successful", "success":
		return adapter.ChargeSuccessful, nil
	case "failed":
		return adapter.ChargeFailed, nil
	case "pending":
		return adapter.ChargePending, nil
	}
	return "", fmt.Errorf("sandbox: unknown outcome %q", s)
}

func NewSandboxGateway(outcome adapter.ChargeStatus) *SandboxGateway {
	return &SandboxGateway{
		outcome: outcome,
		now:     time.Now,
		charges: make(map[string]sandboxCharge),
	}
}

// WithLatency delays every call by d, honouring context cancellation.
func (g *SandboxGateway) WithLatency(d time.Duration) *SandboxGateway {
	g.latency = d
	return g
}

// WithSettleAfter keeps charges PENDING until d has passed since acceptance.
func (g *SandboxGateway) WithSettleAfter(d time.Duration) *SandboxGateway {
	g.settle = d
	return g
}

func (g *SandboxGateway) WithClock(now func() time.Time) *SandboxGateway {
	g.now = now
	return g
}

func (g *SandboxGateway) Name() string { return "sandbox" }

func (g *SandboxGateway) wait(ctx context.Context) error {
	if g.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(g.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (g *SandboxGateway) RequestToPay(ctx context.Context, req adapter.ChargeRequest) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	if req.Reference == "" || req.AmountMinor <= 0 {
		return fmt.Errorf("sandbox: invalid charge %q amount %d", req.Reference, req.AmountMinor)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.charges[req.Reference]; ok {
		return nil
	}
	g.charges[req.Reference] = sandboxCharge{req: req, accepted: g.now(), seq: len(g.charges) + 1}
	return nil
}

func (g *SandboxGateway) ChargeStatus(ctx context.Context, reference string) (adapter.ChargeResult, error) {
	if err := g.wait(ctx); err != nil {
		return adapter.ChargeResult{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.charges[reference]
	if !ok {
		return adapter.ChargeResult{}, adapter.ErrChargeNotFound
	}
	if g.settle > 0 && g.now().Sub(c.accepted) < g.settle {
		return adapter.ChargeResult{Status: adapter.ChargePending}, nil
	}
	res := adapter.ChargeResult{Status: g.outcome, ProviderID: fmt.Sprintf("sandbox-%d", c.seq)}
	if g.outcome == adapter.ChargeFailed {
		res.Reason = "PAYER_DECLINED"
	}
	return res, nil
}
