package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*transactionRepo)(nil)

type transactionRepo struct{ pool *pgxpool.Pool }

func NewTransactionRepo(pool *pgxpool.Pool) *transactionRepo {
	return &transactionRepo{pool: pool}
}

const txColumns = `id, phone_number, plan_id, provider, amount_minor, currency, status, access_code, failure_reason, created_at, updated_at, completed_at`

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var t model.Transaction
	var status string
	err := row.Scan(&t.ID, &t.PhoneNumber, &t.PlanID, &t.Provider, &t.AmountMinor, &t.Currency, &status,
		&t.AccessCode, &t.FailureReason, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt)
	if err != nil {
		return nil, err
	}
	t.Status = model.TxStatus(status)
	return &t, nil
}

func (r *transactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	const q = `
INSERT INTO transactions (` + txColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`
	_, err := execSQL(ctx, r.pool, tx, q,
		t.ID, t.PhoneNumber, t.PlanID, t.Provider, t.AmountMinor, t.Currency, string(t.Status),
		t.AccessCode, t.FailureReason, t.CreatedAt, t.UpdatedAt, t.CompletedAt,
	)
	if isUniqueViolation(err) {
		return domain.Conflictf("transaction %s already exists", t.ID)
	}
	if err != nil {
		return opErr("save transaction", err)
	}
	return nil
}

func (r *transactionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Transaction, error) {
	row, err := pickRow(ctx, r.pool, tx, forUpdate(`SELECT `+txColumns+` FROM transactions WHERE id = $1`, tx), id)
	if err != nil {
		return nil, err
	}
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return t, nil
}

func (r *transactionRepo) CompleteIfPending(ctx context.Context, tx repository.Tx, id string, status model.TxStatus, reason string, at time.Time) (bool, error) {
	if !status.Terminal() {
		return false, domain.Validationf("status %s is not terminal", status)
	}
	const q = `
UPDATE transactions
   SET status = $2, failure_reason = $3, completed_at = $4, updated_at = $4
 WHERE id = $1 AND status = 'PENDING';`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(status), reason, at)
	if err != nil {
		return false, opErr("complete transaction", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	row, err := pickRow(ctx, r.pool, tx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, id)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	if !exists {
		return false, domain.ErrTransactionNotFound
	}
	return false, nil
}

func (r *transactionRepo) SetAccessCode(ctx context.Context, tx repository.Tx, id, code string) error {
	const q = `
UPDATE transactions
   SET access_code = $2, updated_at = NOW()
 WHERE id = $1 AND status = 'SUCCESSFUL' AND (access_code IS NULL OR access_code = $2);`
	tag, err := execSQL(ctx, r.pool, tx, q, id, code)
	if err != nil {
		return opErr("link access code", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Conflictf("transaction %s cannot take access code", id)
	}
	return nil
}

func (r *transactionRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Transaction, error) {
	const q = `SELECT ` + txColumns + ` FROM transactions WHERE status = 'PENDING' AND created_at < $1 ORDER BY created_at LIMIT $2`
	return r.list(ctx, tx, q, olderThan, limit)
}

func (r *transactionRepo) List(ctx context.Context, tx repository.Tx, offset, limit int) ([]*model.Transaction, error) {
	const q = `SELECT ` + txColumns + ` FROM transactions ORDER BY created_at DESC, id OFFSET $1 LIMIT $2`
	return r.list(ctx, tx, q, offset, limit)
}

func (r *transactionRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Transaction, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, opErr("list transactions", err)
	}
	defer rows.Close()
	var out []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *transactionRepo) Count(ctx context.Context, tx repository.Tx) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM transactions`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *transactionRepo) SumSuccessfulSince(ctx context.Context, tx repository.Tx, since time.Time) (int64, error) {
	const q = `SELECT COALESCE(SUM(amount_minor), 0) FROM transactions WHERE status = 'SUCCESSFUL' AND completed_at >= $1;`
	row, err := pickRow(ctx, r.pool, tx, q, since)
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}
