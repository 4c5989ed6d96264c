package repository

import (
	"context"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
)

// ExclusionRepository is the port for the exclusion list.
type ExclusionRepository interface {
	// Save inserts e. An existing (type, value) pair yields domain.ErrExclusionExists.
	Save(ctx context.Context, tx Tx, e *model.Exclusion) error
	Delete(ctx context.Context, tx Tx, id string) error
	// FindByValue is an exact match on the canonical value.
	FindByValue(ctx context.Context, tx Tx, t model.ExclusionType, value string) (*model.Exclusion, error)
	List(ctx context.Context, tx Tx) ([]*model.Exclusion, error)
}
