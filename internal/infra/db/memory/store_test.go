//go:build !integration

package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/repository"
)

func TestCodeRepo_Transition(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("should let exactly one concurrent writer win", func(t *testing.T) {
		// --- Arrange ---
		repo := NewCodeRepo()
		if err := repo.Insert(ctx, nil, &model.AccessCode{Code: "AAAABBBBCCCC", Status: model.CodeUnused, IssuedAt: now}); err != nil {
			t.Fatalf("insert: %v", err)
		}

		// --- Act ---
		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := repo.Transition(ctx, nil, "AAAABBBBCCCC", model.CodeUnused, model.CodeUpdate{Status: model.CodePending, PendingAt: &now})
				if err != nil {
					t.Errorf("transition: %v", err)
				}
				if ok {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()

		// --- Assert ---
		if wins != 1 {
			t.Fatalf("expected exactly one winner, got %d", wins)
		}
	})

	t.Run("should reject illegal transitions", func(t *testing.T) {
		repo := NewCodeRepo()
		_ = repo.Insert(ctx, nil, &model.AccessCode{Code: "X", Status: model.CodeUnused})
		_, err := repo.Transition(ctx, nil, "X", model.CodeUnused, model.CodeUpdate{Status: model.CodeActive})
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("should reject duplicate codes", func(t *testing.T) {
		repo := NewCodeRepo()
		_ = repo.Insert(ctx, nil, &model.AccessCode{Code: "DUP"})
		if err := repo.Insert(ctx, nil, &model.AccessCode{Code: "DUP"}); !errors.Is(err, domain.ErrDuplicateCode) {
			t.Fatalf("expected duplicate error, got %v", err)
		}
	})
}

func TestCodeRepo_FindByTransaction(t *testing.T) {
	ctx := context.Background()
	repo := NewCodeRepo()
	txID := "tx-1"
	_ = repo.Insert(ctx, nil, &model.AccessCode{Code: "OTHER"})
	if err := repo.Insert(ctx, nil, &model.AccessCode{Code: "PAID", TransactionID: &txID}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	t.Run("should return the code minted for the transaction", func(t *testing.T) {
		c, err := repo.FindByTransaction(ctx, nil, txID)
		if err != nil || c.Code != "PAID" {
			t.Fatalf("expected PAID, got %+v (%v)", c, err)
		}
	})

	t.Run("should refuse a second code for the same transaction", func(t *testing.T) {
		err := repo.Insert(ctx, nil, &model.AccessCode{Code: "AGAIN", TransactionID: &txID})
		if !errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrDuplicateCode) {
			t.Fatalf("expected a transaction conflict, got %v", err)
		}
	})

	t.Run("should report transactions without a code", func(t *testing.T) {
		if _, err := repo.FindByTransaction(ctx, nil, "tx-2"); !errors.Is(err, domain.ErrCodeNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestCodeRepo_Expire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	old := now.Add(-48 * time.Hour)

	repo := NewCodeRepo()
	_ = repo.Insert(ctx, nil, &model.AccessCode{Code: "ELAPSED", Status: model.CodeActive, SessionExpiresAt: &past})
	_ = repo.Insert(ctx, nil, &model.AccessCode{Code: "RUNNING", Status: model.CodeActive, SessionExpiresAt: &future})
	_ = repo.Insert(ctx, nil, &model.AccessCode{Code: "STALE", Status: model.CodePending, PendingAt: &old})

	n, _ := repo.ExpireActive(ctx, nil, now)
	if n != 1 {
		t.Fatalf("expected 1 active expiry, got %d", n)
	}
	n, _ = repo.ExpirePending(ctx, nil, now.Add(-24*time.Hour))
	if n != 1 {
		t.Fatalf("expected 1 pending expiry, got %d", n)
	}
	// idempotent
	n, _ = repo.ExpireActive(ctx, nil, now)
	if n != 0 {
		t.Fatalf("second sweep must be a no-op, got %d", n)
	}

	counts, _ := repo.CountByStatus(ctx, nil)
	if counts[model.CodeExpired] != 2 || counts[model.CodeActive] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}

	list, _ := repo.List(ctx, nil, repository.CodeFilter{Status: model.CodeExpired, Limit: 1})
	if len(list) != 1 {
		t.Fatalf("expected paging to cap at 1, got %d", len(list))
	}
}

func TestTransactionRepo_CompleteIfPending(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	repo := NewTransactionRepo()
	_ = repo.Save(ctx, nil, &model.Transaction{ID: "t1", Status: model.TxPending, AmountMinor: 200, CreatedAt: now})

	code := "AAAABBBBCCCC"
	if err := repo.SetAccessCode(ctx, nil, "t1", code); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("pending transaction must not take a code, got %v", err)
	}
	ok, err := repo.CompleteIfPending(ctx, nil, "t1", model.TxSuccessful, "", now)
	if err != nil || !ok {
		t.Fatalf("expected first completion to win, got %v %v", ok, err)
	}
	ok, _ = repo.CompleteIfPending(ctx, nil, "t1", model.TxFailed, "late", now)
	if ok {
		t.Fatal("terminal transaction must not change again")
	}
	if err := repo.SetAccessCode(ctx, nil, "t1", code); err != nil {
		t.Fatalf("set code: %v", err)
	}
	if err := repo.SetAccessCode(ctx, nil, "t1", "OTHERCODE"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second code must conflict, got %v", err)
	}
	got, _ := repo.FindByID(ctx, nil, "t1")
	if got.Status != model.TxSuccessful || got.AccessCode == nil || *got.AccessCode != code {
		t.Fatalf("unexpected transaction %+v", got)
	}
	sum, _ := repo.SumSuccessfulSince(ctx, nil, now.Add(-time.Hour))
	if sum != 200 {
		t.Fatalf("expected revenue 200, got %d", sum)
	}
}

func TestExclusionRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewExclusionRepo()
	e := &model.Exclusion{ID: "e1", Type: model.ExcludeMAC, Value: "AA:BB:CC:DD:EE:FF", ExcludeFromConnection: true}
	if err := repo.Save(ctx, nil, e); err != nil {
		t.Fatalf("save: %v", err)
	}
	dup := *e
	dup.ID = "e2"
	if err := repo.Save(ctx, nil, &dup); !errors.Is(err, domain.ErrExclusionExists) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := repo.FindByValue(ctx, nil, model.ExcludePhone, "AA:BB:CC:DD:EE:FF"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("type must be part of the match, got %v", err)
	}
	if err := repo.Delete(ctx, nil, "e1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.FindByValue(ctx, nil, model.ExcludeMAC, "AA:BB:CC:DD:EE:FF"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestTokenStore_Consume(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := func() time.Time { return now }
	s := NewTokenStore().WithClock(clock)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.Consume(ctx, "jti-1", time.Minute); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected one consumer, got %d", wins)
	}
	if used, _ := s.IsConsumed(ctx, "jti-1"); !used {
		t.Fatal("expected token to be consumed")
	}
}
