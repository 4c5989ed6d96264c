package redis

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/adapter"
)

var _ adapter.Locker = (*RedisLocker)(nil)

// RedisLocker is a single-instance SET NX lease. Workers on several replicas
// use it so only one of them sweeps or reconciles per tick.
type RedisLocker struct {
	cli    RedisClient
	prefix string
}

func NewLocker(c RedisClient) *RedisLocker {
	return &RedisLocker{cli: c, prefix: "lock:"}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	for i := 0; i < 3; i++ {
		ok, err := l.cli.SetNX(ctx, l.prefix+key, token, ttl)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return "", adapter.ErrLockHeld
}

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := l.cli.DelIfValue(ctx, l.prefix+key, token)
	return err
}
