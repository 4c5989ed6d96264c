// Package ratelimit holds process-local token-bucket limiters keyed by
// client IP or login subject.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/adapter"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Keyed tracks one token bucket per key with idle eviction.
type Keyed struct {
	mu       sync.Mutex
	limiters map[string]*entry
	rate     rate.Limit
	burst    int
	ttl      time.Duration // entries are evicted after this long idle
	maxSize  int
	now      func() time.Time
}

func NewKeyed(r rate.Limit, burst int) *Keyed {
	return &Keyed{
		limiters: make(map[string]*entry),
		rate:     r,
		burst:    burst,
		ttl:      5 * time.Minute,
		maxSize:  10000,
		now:      time.Now,
	}
}

// Allow takes one token from key's bucket.
func (k *Keyed) Allow(key string) bool {
	return k.get(key, k.rate, k.burst).AllowN(k.now(), 1)
}

func (k *Keyed) get(key string, r rate.Limit, burst int) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	if e, ok := k.limiters[key]; ok {
		e.lastSeen = now
		return e.limiter
	}
	if len(k.limiters) >= k.maxSize {
		k.evictOldest()
	}
	l := rate.NewLimiter(r, burst)
	k.limiters[key] = &entry{limiter: l, lastSeen: now}
	return l
}

// Run evicts idle entries until ctx is done.
func (k *Keyed) Run(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			k.evictIdle()
		}
	}
}

func (k *Keyed) evictIdle() {
	k.mu.Lock()
	defer k.mu.Unlock()
	now := k.now()
	for key, e := range k.limiters {
		if now.Sub(e.lastSeen) > k.ttl {
			delete(k.limiters, key)
		}
	}
}

// evictOldest must be called with mu held.
func (k *Keyed) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, e := range k.limiters {
		if oldestKey == "" || e.lastSeen.Before(oldest) {
			oldestKey, oldest = key, e.lastSeen
		}
	}
	if oldestKey != "" {
		delete(k.limiters, oldestKey)
	}
}

func (k *Keyed) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}

var _ adapter.AttemptLimiter = (*Attempts)(nil)

// Attempts is the single-instance login throttle: limit attempts per window
// per key, refilled evenly across the window.
type Attempts struct {
	keyed *Keyed
}

func NewAttempts() *Attempts {
	k := NewKeyed(0, 0)
	k.ttl = time.Hour
	return &Attempts{keyed: k}
}

func (a *Attempts) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	l := a.keyed.get(key, rate.Every(window/time.Duration(limit)), limit)
	return l.AllowN(a.keyed.now(), 1), nil
}

// Run evicts idle keys until ctx is done.
func (a *Attempts) Run(ctx context.Context) { a.keyed.Run(ctx) }
