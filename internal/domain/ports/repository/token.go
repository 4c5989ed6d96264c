package repository

import (
	"context"
	"time"
)

// TokenStore remembers single-use token ids (jti) until they would have
// expired anyway.
type TokenStore interface {
	// Consume atomically marks id as used for ttl. It reports false when id
	// was already consumed, so exactly one caller wins.
	Consume(ctx context.Context, id string, ttl time.Duration) (bool, error)
	IsConsumed(ctx context.Context, id string) (bool, error)
}
