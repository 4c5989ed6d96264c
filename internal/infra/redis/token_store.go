package redis

import (
	"context"
	"time"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/repository"
)

var _ repository.TokenStore = (*TokenStore)(nil)

// TokenStore records spent temp tokens and revoked access tokens by jti.
type TokenStore struct {
	client RedisClient
}

func NewTokenStore(client RedisClient) *TokenStore {
	return &TokenStore{client: client}
}

func tokenKey(id string) string { return "jwt:used:" + id }

func (s *TokenStore) Consume(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return s.client.SetNX(ctx, tokenKey(id), 1, ttl)
}

func (s *TokenStore) IsConsumed(ctx context.Context, id string) (bool, error) {
	return s.client.Exists(ctx, tokenKey(id))
}
