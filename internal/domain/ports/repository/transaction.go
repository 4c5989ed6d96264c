package repository

import (
	"context"
	"time"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
)

// TransactionRepository is the port for payment transaction persistence.
type TransactionRepository interface {
	Save(ctx context.Context, tx Tx, t *model.Transaction) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Transaction, error)
	// CompleteIfPending moves a PENDING transaction to a terminal status.
	// It reports false when the transaction was no longer PENDING.
	CompleteIfPending(ctx context.Context, tx Tx, id string, status model.TxStatus, reason string, at time.Time) (bool, error)
	// SetAccessCode links the code minted for a SUCCESSFUL transaction.
	SetAccessCode(ctx context.Context, tx Tx, id, code string) error
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Transaction, error)
	List(ctx context.Context, tx Tx, offset, limit int) ([]*model.Transaction, error)
	Count(ctx context.Context, tx Tx) (int, error)
	// SumSuccessfulSince totals AmountMinor of SUCCESSFUL transactions completed at or after since.
	SumSuccessfulSince(ctx context.Context, tx Tx, since time.Time) (int64, error)
}
