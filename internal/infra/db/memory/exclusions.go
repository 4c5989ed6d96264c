package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/repository"
)

var _ repository.ExclusionRepository = (*ExclusionRepo)(nil)

type exclusionKey struct {
	t model.ExclusionType
	v string
}

type ExclusionRepo struct {
	mu      sync.RWMutex
	byID    map[string]model.Exclusion
	byValue map[exclusionKey]string
}

func NewExclusionRepo() *ExclusionRepo {
	return &ExclusionRepo{byID: map[string]model.Exclusion{}, byValue: map[exclusionKey]string{}}
}

func (r *ExclusionRepo) Save(_ context.Context, _ repository.Tx, e *model.Exclusion) error {
	if e == nil || e.ID == "" {
		return domain.ErrInvalidArgument
	}
	k := exclusionKey{e.Type, e.Value}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byValue[k]; ok {
		return domain.ErrExclusionExists
	}
	r.byID[e.ID] = *e
	r.byValue[k] = e.ID
	return nil
}

func (r *ExclusionRepo) Delete(_ context.Context, _ repository.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return domain.ErrExclusionNotFound
	}
	delete(r.byID, id)
	delete(r.byValue, exclusionKey{e.Type, e.Value})
	return nil
}

func (r *ExclusionRepo) FindByValue(_ context.Context, _ repository.Tx, t model.ExclusionType, value string) (*model.Exclusion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byValue[exclusionKey{t, value}]
	if !ok {
		return nil, domain.ErrExclusionNotFound
	}
	e := r.byID[id]
	return &e, nil
}

func (r *ExclusionRepo) List(_ context.Context, _ repository.Tx) ([]*model.Exclusion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Exclusion, 0, len(r.byID))
	for _, e := range r.byID {
		cp := e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
