package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/repository"
)

var _ repository.TokenStore = (*TokenStore)(nil)

// TokenStore is a single-process consumed-token set. Entries are pruned
// lazily once their ttl passes.
type TokenStore struct {
	mu   sync.Mutex
	used map[string]time.Time
	now  func() time.Time
}

func NewTokenStore() *TokenStore {
	return &TokenStore{used: map[string]time.Time{}, now: time.Now}
}

// WithClock swaps the time source, for tests.
func (s *TokenStore) WithClock(now func() time.Time) *TokenStore {
	s.now = now
	return s
}

func (s *TokenStore) Consume(_ context.Context, id string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.prune(now)
	if _, ok := s.used[id]; ok {
		return false, nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	s.used[id] = now.Add(ttl)
	return true, nil
}

func (s *TokenStore) IsConsumed(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.used[id]
	return ok && s.now().Before(until), nil
}

func (s *TokenStore) prune(now time.Time) {
	for id, until := range s.used {
		if !now.Before(until) {
			delete(s.used, id)
		}
	}
}
