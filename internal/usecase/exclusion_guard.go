package usecase

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/repository"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/logging"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/metrics"
)

// Compile-time check
var _ ExclusionGuard = (*exclusionGuard)(nil)

// ExclusionGuard answers "is this phone/device blocked" by exact match on
// the canonical (type, value) pair. There is no pattern matching.
type ExclusionGuard interface {
	IsPaymentExcluded(ctx context.Context, phone string) (bool, error)
	IsConnectionExcluded(ctx context.Context, mac string) (bool, error)
	Add(ctx context.Context, actor *model.AdminSession, in ExclusionInput) (*model.Exclusion, error)
	Remove(ctx context.Context, actor *model.AdminSession, id string) error
	List(ctx context.Context, actor *model.AdminSession) ([]*model.Exclusion, error)
}

type ExclusionInput struct {
	Type                  string
	Value                 string
	Reason                string
	ExcludeFromPayment    bool
	ExcludeFromConnection bool
}

type exclusionGuard struct {
	base
	repo repository.ExclusionRepository
	log  *zerolog.Logger
}

func NewExclusionGuard(repo repository.ExclusionRepository, logger *zerolog.Logger, opts ...Option) *exclusionGuard {
	l := logger.With().Str("component", "ExclusionGuard").Logger()
	return &exclusionGuard{base: newBase(opts), repo: repo, log: &l}
}

func (g *exclusionGuard) lookup(ctx context.Context, t model.ExclusionType, value string) (*model.Exclusion, error) {
	canon, err := model.CanonicalValue(t, value)
	if err != nil {
		// A value that cannot be canonicalized can never match an entry.
		return nil, nil
	}
	e, err := g.repo.FindByValue(ctx, nil, t, canon)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return e, err
}

func (g *exclusionGuard) IsPaymentExcluded(ctx context.Context, phone string) (bool, error) {
	e, err := g.lookup(ctx, model.ExcludePhone, phone)
	if err != nil || e == nil || !e.ExcludeFromPayment {
		return false, err
	}
	metrics.IncExclusionHit(string(model.ExcludePhone), "payment")
	return true, nil
}

func (g *exclusionGuard) IsConnectionExcluded(ctx context.Context, mac string) (bool, error) {
	if mac == "" {
		return false, nil
	}
	e, err := g.lookup(ctx, model.ExcludeMAC, mac)
	if err != nil || e == nil || !e.ExcludeFromConnection {
		return false, err
	}
	metrics.IncExclusionHit(string(model.ExcludeMAC), "connection")
	return true, nil
}

func (g *exclusionGuard) Add(ctx context.Context, actor *model.AdminSession, in ExclusionInput) (*model.Exclusion, error) {
	if !actor.HasScope(model.ScopeAdmin) {
		return nil, domain.ErrUnauthenticated
	}
	t, ok := model.ParseExclusionType(in.Type)
	if !ok {
		return nil, domain.Validationf("exclusion type must be PHONE or MAC")
	}
	e, err := model.NewExclusion(ulid.Make().String(), t, in.Value, in.Reason, in.ExcludeFromPayment, in.ExcludeFromConnection, g.now())
	if err != nil {
		return nil, err
	}
	if err := g.repo.Save(ctx, nil, e); err != nil {
		return nil, err
	}
	logging.With(ctx, g.log).Info().
		Str("exclusion_id", e.ID).
		Str("type", string(e.Type)).
		Bool("payment", e.ExcludeFromPayment).
		Bool("connection", e.ExcludeFromConnection).
		Msg("exclusion added")
	return e, nil
}

func (g *exclusionGuard) Remove(ctx context.Context, actor *model.AdminSession, id string) error {
	if !actor.HasScope(model.ScopeAdmin) {
		return domain.ErrUnauthenticated
	}
	if err := g.repo.Delete(ctx, nil, id); err != nil {
		return err
	}
	logging.With(ctx, g.log).Info().Str("exclusion_id", id).Msg("exclusion removed")
	return nil
}

func (g *exclusionGuard) List(ctx context.Context, actor *model.AdminSession) ([]*model.Exclusion, error) {
	if !actor.HasScope(model.ScopeAdmin) {
		return nil, domain.ErrUnauthenticated
	}
	return g.repo.List(ctx, nil)
}
