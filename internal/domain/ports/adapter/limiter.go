package adapter

import (
	"context"
	"errors"
	"time"
)

var ErrLockHeld = errors.New("lock held by another owner")

// AttemptLimiter counts attempts per key in a window.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Locker is a best-effort distributed mutex keyed by name.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
