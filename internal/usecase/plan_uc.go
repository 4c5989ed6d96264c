package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/repository"
)

// PlanUseCase exposes the plan catalog.
type PlanUseCase struct {
	repo repository.PlanRepository
	log  *zerolog.Logger
}

// NewPlanUseCase constructs a PlanUseCase.
func NewPlanUseCase(repo repository.PlanRepository, logger *zerolog.Logger) *PlanUseCase {
	l := logger.With().Str("component", "PlanCatalog").Logger()
	return &PlanUseCase{repo: repo, log: &l}
}

// Get retrieves a plan by ID.
func (uc *PlanUseCase) Get(ctx context.Context, id string) (*model.Plan, error) {
	return uc.repo.FindByID(ctx, nil, id)
}

// List returns all plans ordered by duration.
func (uc *PlanUseCase) List(ctx context.Context) ([]*model.Plan, error) {
	return uc.repo.ListAll(ctx, nil)
}

// Seed stores plans that are not yet present. Existing plans are left
// untouched since issued codes reference them.
func (uc *PlanUseCase) Seed(ctx context.Context, plans []*model.Plan) (int, error) {
	existing, err := uc.repo.ListAll(ctx, nil)
	if err != nil {
		return 0, err
	}
	have := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		have[p.ID] = struct{}{}
	}
	n := 0
	for _, p := range plans {
		if _, ok := have[p.ID]; ok {
			continue
		}
		if err := uc.repo.Save(ctx, nil, p); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		uc.log.Info().Int("count", n).Msg("plans seeded")
	}
	return n, nil
}
