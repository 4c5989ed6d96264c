package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/repository"
)

var _ repository.PlanRepository = (*PlanRepo)(nil)

type PlanRepo struct {
	mu    sync.RWMutex
	plans map[string]model.Plan
}

func NewPlanRepo() *PlanRepo {
	return &PlanRepo{plans: make(map[string]model.Plan)}
}

func (r *PlanRepo) Save(_ context.Context, _ repository.Tx, p *model.Plan) error {
	if p == nil || p.ID == "" {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[p.ID] = *p
	return nil
}

func (r *PlanRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plans[id]
	if !ok {
		return nil, domain.ErrPlanNotFound
	}
	return &p, nil
}

func (r *PlanRepo) ListAll(_ context.Context, _ repository.Tx) ([]*model.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Plan, 0, len(r.plans))
	for _, p := range r.plans {
		cp := p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DurationHours != out[j].DurationHours {
			return out[i].DurationHours < out[j].DurationHours
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
