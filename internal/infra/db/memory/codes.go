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

var _ repository.AccessCodeRepository = (*CodeRepo)(nil)

type codeRow struct {
	mu sync.Mutex
	c  model.AccessCode
}

func (r *codeRow) snapshot() *model.AccessCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := r.c
	return &cp
}

// CodeRepo keeps codes in a map guarded for structure only; status changes
// lock the individual row.
type CodeRepo struct {
	mu   sync.RWMutex
	rows map[string]*codeRow
}

func NewCodeRepo() *CodeRepo {
	return &CodeRepo{rows: make(map[string]*codeRow)}
}

func (r *CodeRepo) row(code string) (*codeRow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[code]
	return row, ok
}

func (r *CodeRepo) all() []*codeRow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*codeRow, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, row)
	}
	return out
}

func (r *CodeRepo) Insert(_ context.Context, _ repository.Tx, c *model.AccessCode) error {
	if c == nil || c.Code == "" {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[c.Code]; ok {
		return domain.ErrDuplicateCode
	}
	if c.TransactionID != nil {
		for _, row := range r.rows {
			if row.c.TransactionID != nil && *row.c.TransactionID == *c.TransactionID {
				return domain.Conflictf("transaction %s already minted a code", *c.TransactionID)
			}
		}
	}
	r.rows[c.Code] = &codeRow{c: *c}
	return nil
}

func (r *CodeRepo) Exists(_ context.Context, _ repository.Tx, code string) (bool, error) {
	_, ok := r.row(code)
	return ok, nil
}

func (r *CodeRepo) FindByCode(_ context.Context, _ repository.Tx, code string) (*model.AccessCode, error) {
	row, ok := r.row(code)
	if !ok {
		return nil, domain.ErrCodeNotFound
	}
	return row.snapshot(), nil
}

func (r *CodeRepo) FindByTransaction(_ context.Context, _ repository.Tx, transactionID string) (*model.AccessCode, error) {
	for _, row := range r.all() {
		c := row.snapshot()
		if c.TransactionID != nil && *c.TransactionID == transactionID {
			return c, nil
		}
	}
	return nil, domain.ErrCodeNotFound
}

func (r *CodeRepo) Transition(_ context.Context, _ repository.Tx, code string, from model.CodeStatus, upd model.CodeUpdate) (bool, error) {
	if !from.CanTransitionTo(upd.Status) {
		return false, domain.Validationf("illegal transition %s -> %s", from, upd.Status)
	}
	row, ok := r.row(code)
	if !ok {
		return false, domain.ErrCodeNotFound
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	if row.c.Status != from {
		return false, nil
	}
	upd.Apply(&row.c)
	return true, nil
}

func (r *CodeRepo) ExpireActive(_ context.Context, _ repository.Tx, now time.Time) (int, error) {
	n := 0
	for _, row := range r.all() {
		row.mu.Lock()
		if row.c.ElapsedAt(now) {
			row.c.Status = model.CodeExpired
			n++
		}
		row.mu.Unlock()
	}
	return n, nil
}

func (r *CodeRepo) ExpirePending(_ context.Context, _ repository.Tx, cutoff time.Time) (int, error) {
	n := 0
	for _, row := range r.all() {
		row.mu.Lock()
		if row.c.Status == model.CodePending && row.c.PendingAt != nil && row.c.PendingAt.Before(cutoff) {
			row.c.Status = model.CodeExpired
			n++
		}
		row.mu.Unlock()
	}
	return n, nil
}

func (r *CodeRepo) List(_ context.Context, _ repository.Tx, f repository.CodeFilter) ([]*model.AccessCode, error) {
	var out []*model.AccessCode
	for _, row := range r.all() {
		c := row.snapshot()
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.PlanID != "" && c.PlanID != f.PlanID {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.After(out[j].IssuedAt)
		}
		return out[i].Code < out[j].Code
	})
	return page(out, f.Offset, f.Limit), nil
}

func (r *CodeRepo) CountByStatus(_ context.Context, _ repository.Tx) (map[model.CodeStatus]int, error) {
	out := map[model.CodeStatus]int{}
	for _, row := range r.all() {
		out[row.snapshot().Status]++
	}
	return out, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
