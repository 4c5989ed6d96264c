package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*TransactionRepo)(nil)

type txRow struct {
	mu sync.Mutex
	t  model.Transaction
}

func (r *txRow) snapshot() *model.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := r.t
	return &cp
}

type TransactionRepo struct {
	mu   sync.RWMutex
	rows map[string]*txRow
}

func NewTransactionRepo() *TransactionRepo {
	return &TransactionRepo{rows: make(map[string]*txRow)}
}

func (r *TransactionRepo) all() []*model.Transaction {
	r.mu.RLock()
	rows := make([]*txRow, 0, len(r.rows))
	for _, row := range r.rows {
		rows = append(rows, row)
	}
	r.mu.RUnlock()
	out := make([]*model.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.snapshot())
	}
	return out
}

func (r *TransactionRepo) Save(_ context.Context, _ repository.Tx, t *model.Transaction) error {
	if t == nil || t.ID == "" {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[t.ID]; ok {
		return domain.Conflictf("transaction %s already exists", t.ID)
	}
	r.rows[t.ID] = &txRow{t: *t}
	return nil
}

func (r *TransactionRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Transaction, error) {
	r.mu.RLock()
	row, ok := r.rows[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return row.snapshot(), nil
}

func (r *TransactionRepo) CompleteIfPending(_ context.Context, _ repository.Tx, id string, status model.TxStatus, reason string, at time.Time) (bool, error) {
	if !status.Terminal() {
		return false, domain.Validationf("%s is not a terminal status", status)
	}
	r.mu.RLock()
	row, ok := r.rows[id]
	r.mu.RUnlock()
	if !ok {
		return false, domain.ErrTransactionNotFound
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	if row.t.Status != model.TxPending {
		return false, nil
	}
	row.t.Status = status
	row.t.FailureReason = reason
	row.t.UpdatedAt = at
	done := at
	row.t.CompletedAt = &done
	return true, nil
}

func (r *TransactionRepo) SetAccessCode(_ context.Context, _ repository.Tx, id, code string) error {
	r.mu.RLock()
	row, ok := r.rows[id]
	r.mu.RUnlock()
	if !ok {
		return domain.ErrTransactionNotFound
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	if row.t.Status != model.TxSuccessful {
		return domain.Conflictf("transaction %s is %s, not SUCCESSFUL", id, row.t.Status)
	}
	if row.t.AccessCode != nil && *row.t.AccessCode != code {
		return domain.Conflictf("transaction %s already claimed a code", id)
	}
	c := code
	row.t.AccessCode = &c
	return nil
}

func (r *TransactionRepo) ListPendingOlderThan(_ context.Context, _ repository.Tx, olderThan time.Time, limit int) ([]*model.Transaction, error) {
	var out []*model.Transaction
	for _, t := range r.all() {
		if t.Status == model.TxPending && t.CreatedAt.Before(olderThan) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, 0, limit), nil
}

func (r *TransactionRepo) List(_ context.Context, _ repository.Tx, offset, limit int) ([]*model.Transaction, error) {
	out := r.all()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, offset, limit), nil
}

func (r *TransactionRepo) Count(_ context.Context, _ repository.Tx) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows), nil
}

func (r *TransactionRepo) SumSuccessfulSince(_ context.Context, _ repository.Tx, since time.Time) (int64, error) {
	var sum int64
	for _, t := range r.all() {
		if t.Status == model.TxSuccessful && t.CompletedAt != nil && !t.CompletedAt.Before(since) {
			sum += t.AmountMinor
		}
	}
	return sum, nil
}
