package repository

import (
	"context"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
)

// AdminRepository is the port for operator accounts.
type AdminRepository interface {
	Save(ctx context.Context, tx Tx, a *model.AdminPrincipal) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.AdminPrincipal, error)
	FindByUsername(ctx context.Context, tx Tx, username string) (*model.AdminPrincipal, error)
	List(ctx context.Context, tx Tx) ([]*model.AdminPrincipal, error)
}
