package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/adapter"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/metrics"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/usecase"
)

const expiryLockKey = "sched:expiry_sweep"

// ExpiryWorker periodically moves elapsed sessions and stale PENDING codes
// to EXPIRED. With a locker, only one replica sweeps per tick.
type ExpiryWorker struct {
	interval time.Duration
	codes    usecase.CodeRegistry
	locker   adapter.Locker
	log      *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, codes usecase.CodeRegistry, locker adapter.Locker, logger *zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	exprLog := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval: interval,
		codes:    codes,
		locker:   locker,
		log:      &exprLog,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.sweepOnce(ctx)
		}
	}
}

func (w *ExpiryWorker) sweepOnce(ctx context.Context) {
	release, ok := acquire(ctx, w.locker, expiryLockKey, w.interval, w.log)
	if !ok {
		metrics.IncBackgroundRun("expiry_sweep", "skipped")
		return
	}
	defer release()

	res, err := w.codes.SweepExpired(ctx)
	if err != nil {
		metrics.IncBackgroundRun("expiry_sweep", "error")
		w.log.Error().Err(err).Msg("expiry sweep failed")
		return
	}
	metrics.IncBackgroundRun("expiry_sweep", "ok")
	if res.Total() > 0 {
		w.log.Info().
			Int("sessions", res.ActiveExpired).
			Int("pending", res.PendingExpired).
			Msg("access codes expired")
	}
}

// acquire takes the named lock when a locker is configured. A lock held
// elsewhere skips the tick; a locker failure runs it unlocked.
func acquire(ctx context.Context, locker adapter.Locker, key string, ttl time.Duration, log *zerolog.Logger) (func(), bool) {
	if locker == nil {
		return func() {}, true
	}
	token, err := locker.TryLock(ctx, key, ttl)
	if errors.Is(err, adapter.ErrLockHeld) {
		log.Debug().Str("lock", key).Msg("lock held by another replica, skipping")
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Str("lock", key).Msg("locker unavailable, running unlocked")
		return func() {}, true
	}
	return func() {
		// the tick's context may already be cancelled on shutdown
		uctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := locker.Unlock(uctx, key, token); err != nil {
			log.Warn().Err(err).Str("lock", key).Msg("unlock failed")
		}
	}, true
}
