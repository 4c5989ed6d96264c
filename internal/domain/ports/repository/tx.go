package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. Its concrete type is storage-defined
// (pgx.Tx for Postgres). Repositories accept nil for the non-transactional path.
type Tx interface{}

// TransactionManager runs fn inside one storage transaction, committing when
// fn returns nil and rolling back otherwise.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
