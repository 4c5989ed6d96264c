package repository

import (
	"context"
	"time"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
)

// CodeFilter narrows code listings. Zero value lists everything.
type CodeFilter struct {
	Status model.CodeStatus
	PlanID string
	Offset int
	Limit  int
}

// AccessCodeRepository is the port for access code persistence.
type AccessCodeRepository interface {
	// Insert stores a new code. A taken code yields domain.ErrDuplicateCode.
	Insert(ctx context.Context, tx Tx, code *model.AccessCode) error
	Exists(ctx context.Context, tx Tx, code string) (bool, error)
	FindByCode(ctx context.Context, tx Tx, code string) (*model.AccessCode, error)
	// FindByTransaction returns the code minted for a payment, or domain.ErrCodeNotFound.
	FindByTransaction(ctx context.Context, tx Tx, transactionID string) (*model.AccessCode, error)
	// Transition applies upd only while the stored status equals from.
	// It reports false, without error, when another writer got there first.
	Transition(ctx context.Context, tx Tx, code string, from model.CodeStatus, upd model.CodeUpdate) (bool, error)
	// ExpireActive moves every ACTIVE code whose session ended at or before now to EXPIRED.
	ExpireActive(ctx context.Context, tx Tx, now time.Time) (int, error)
	// ExpirePending moves PENDING codes presented before cutoff to EXPIRED.
	ExpirePending(ctx context.Context, tx Tx, cutoff time.Time) (int, error)
	List(ctx context.Context, tx Tx, f CodeFilter) ([]*model.AccessCode, error)
	CountByStatus(ctx context.Context, tx Tx) (map[model.CodeStatus]int, error)
}
