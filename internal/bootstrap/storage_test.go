//go:build !integration

package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/config"
)

func TestOpen_Memory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := zerolog.Nop()

	s, err := Open(ctx, &config.Config{}, &log)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	s.Start(ctx)

	if s.Kind != StorageMemory {
		t.Fatalf("expected memory storage, got %q", s.Kind)
	}
	if s.Locker != nil {
		t.Fatal("locker must be nil without redis")
	}
	if s.Plans == nil || s.Codes == nil || s.Transactions == nil || s.Exclusions == nil ||
		s.Admins == nil || s.Tokens == nil || s.TxManager == nil || s.Attempts == nil {
		t.Fatalf("storage not fully wired: %+v", s)
	}
	ok, err := s.Attempts.Allow(ctx, "login:root", 1, time.Minute)
	if err != nil || !ok {
		t.Fatalf("first attempt must pass: %v %v", ok, err)
	}
}
