package sched

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/adapter"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/logging"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/metrics"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/worker"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/usecase"
)

const (
	reconcileLockKey = "sched:payment_reconcile"
	reconcileBatch   = 200
)

// PaymentReconciler periodically re-verifies PENDING transactions the
// client never came back for, and fails the ones the provider never
// resolved. This covers lost verify calls and gateway timeouts.
type PaymentReconciler struct {
	uc           usecase.PaymentUseCase
	pool         *worker.Pool
	locker       adapter.Locker
	interval     time.Duration // how often to scan
	staleAfter   time.Duration // how old a pending transaction must be to poll
	abandonAfter time.Duration // how old a pending transaction must be to fail
	now          func() time.Time
	log          *zerolog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewPaymentReconciler(uc usecase.PaymentUseCase, pool *worker.Pool, locker adapter.Locker, interval, staleAfter, abandonAfter time.Duration, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	if abandonAfter <= staleAfter {
		abandonAfter = 24 * time.Hour
	}
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{
		uc:           uc,
		pool:         pool,
		locker:       locker,
		interval:     interval,
		staleAfter:   staleAfter,
		abandonAfter: abandonAfter,
		now:          time.Now,
		log:          &l,
		inflight:     make(map[string]struct{}),
	}
}

func (w *PaymentReconciler) WithClock(now func() time.Time) *PaymentReconciler {
	w.now = now
	return w
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("stale_after", w.staleAfter).Msg("Starting payment reconciler")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	release, ok := acquire(ctx, w.locker, reconcileLockKey, w.interval, w.log)
	if !ok {
		metrics.IncBackgroundRun("payment_reconcile", "skipped")
		return
	}
	defer release()

	now := w.now()
	pending, err := w.uc.PendingOlderThan(ctx, now.Add(-w.staleAfter), reconcileBatch)
	if err != nil {
		metrics.IncBackgroundRun("payment_reconcile", "error")
		w.log.Error().Err(err).Msg("list pending transactions failed")
		return
	}
	metrics.IncBackgroundRun("payment_reconcile", "ok")

	for _, p := range pending {
		id := p.ID
		abandon := now.Sub(p.CreatedAt) >= w.abandonAfter
		if !w.claim(id) {
			continue
		}
		err := w.pool.Submit(func(ctx context.Context) error {
			defer w.done(id)
			return w.verify(ctx, id, abandon)
		})
		if err != nil {
			w.done(id)
			w.log.Warn().Err(err).Str("tx_id", id).Msg("reconcile deferred to next tick")
			if errors.Is(err, worker.ErrPoolClosed) {
				return
			}
		}
	}
}

// verify polls the provider once. With abandon set, a transaction the
// provider still reports as pending is failed; an unreachable provider
// leaves it for the next tick.
func (w *PaymentReconciler) verify(ctx context.Context, id string, abandon bool) error {
	ctx = logging.WithTxID(ctx, id)
	res, err := w.uc.Verify(ctx, id)
	if errors.Is(err, domain.ErrUpstreamTimeout) {
		logging.With(ctx, w.log).Debug().Msg("gateway still unresponsive")
		return nil
	}
	if err != nil {
		return err
	}
	if res.Transaction.Status.Terminal() {
		logging.With(ctx, w.log).Info().Str("status", string(res.Transaction.Status)).Msg("transaction reconciled")
		return nil
	}
	if !abandon {
		return nil
	}
	if _, err := w.uc.Abandon(ctx, id, "no answer from provider"); err != nil {
		logging.With(ctx, w.log).Error().Err(err).Msg("abandon failed")
		return err
	}
	logging.With(ctx, w.log).Info().Msg("stale transaction abandoned")
	return nil
}

// claim reports whether id is not already being verified by the pool.
func (w *PaymentReconciler) claim(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.inflight[id]; ok {
		return false
	}
	w.inflight[id] = struct{}{}
	return true
}

func (w *PaymentReconciler) done(id string) {
	w.mu.Lock()
	delete(w.inflight, id)
	w.mu.Unlock()
}
