package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/repository"
)

var _ repository.AccessCodeRepository = (*accessCodeRepo)(nil)

type accessCodeRepo struct {
	pool *pgxpool.Pool
}

func NewAccessCodeRepo(pool *pgxpool.Pool) *accessCodeRepo {
	return &accessCodeRepo{pool: pool}
}

const codeColumns = `code, plan_id, duration_hours, status, mac_address, transaction_id, issued_at, pending_at, activated_at, session_expires_at`

func scanCode(row pgx.Row) (*model.AccessCode, error) {
	var c model.AccessCode
	var status string
	err := row.Scan(&c.Code, &c.PlanID, &c.DurationHours, &status, &c.MACAddress, &c.TransactionID,
		&c.IssuedAt, &c.PendingAt, &c.ActivatedAt, &c.SessionExpiresAt)
	if err != nil {
		return nil, err
	}
	c.Status = model.CodeStatus(status)
	return &c, nil
}

// Insert relies on ON CONFLICT DO NOTHING so a collision does not abort the
// surrounding transaction.
func (r *accessCodeRepo) Insert(ctx context.Context, tx repository.Tx, c *model.AccessCode) error {
	const q = `
INSERT INTO access_codes (` + codeColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (code) DO NOTHING;
`
	tag, err := execSQL(ctx, r.pool, tx, q,
		c.Code, c.PlanID, c.DurationHours, string(c.Status), c.MACAddress, c.TransactionID,
		c.IssuedAt, c.PendingAt, c.ActivatedAt, c.SessionExpiresAt,
	)
	if isUniqueViolation(err) {
		return domain.Wrap(domain.KindConflict, "transaction already minted a code", err)
	}
	if err != nil {
		return opErr("insert access code", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateCode
	}
	return nil
}

func (r *accessCodeRepo) Exists(ctx context.Context, tx repository.Tx, code string) (bool, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT EXISTS (SELECT 1 FROM access_codes WHERE code = $1)`, code)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return ok, nil
}

func (r *accessCodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.AccessCode, error) {
	row, err := pickRow(ctx, r.pool, tx, forUpdate(`SELECT `+codeColumns+` FROM access_codes WHERE code = $1`, tx), code)
	if err != nil {
		return nil, err
	}
	c, err := scanCode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCodeNotFound
	}
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return c, nil
}

func (r *accessCodeRepo) FindByTransaction(ctx context.Context, tx repository.Tx, transactionID string) (*model.AccessCode, error) {
	row, err := pickRow(ctx, r.pool, tx, forUpdate(`SELECT `+codeColumns+` FROM access_codes WHERE transaction_id = $1`, tx), transactionID)
	if err != nil {
		return nil, err
	}
	c, err := scanCode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCodeNotFound
	}
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return c, nil
}

// Transition is a compare-and-swap on status: the WHERE clause makes the
// row update visible to exactly one concurrent writer.
func (r *accessCodeRepo) Transition(ctx context.Context, tx repository.Tx, code string, from model.CodeStatus, upd model.CodeUpdate) (bool, error) {
	if !from.CanTransitionTo(upd.Status) {
		return false, domain.Validationf("illegal transition %s -> %s", from, upd.Status)
	}
	const q = `
UPDATE access_codes
   SET status             = $3,
       mac_address        = COALESCE($4, mac_address),
       pending_at         = COALESCE($5, pending_at),
       activated_at       = COALESCE($6, activated_at),
       session_expires_at = COALESCE($7, session_expires_at)
 WHERE code = $1 AND status = $2;
`
	tag, err := execSQL(ctx, r.pool, tx, q,
		code, string(from), string(upd.Status), upd.MACAddress, upd.PendingAt, upd.ActivatedAt, upd.SessionExpiresAt,
	)
	if err != nil {
		return false, opErr("transition access code", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	exists, err := r.Exists(ctx, tx, code)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, domain.ErrCodeNotFound
	}
	return false, nil
}

func (r *accessCodeRepo) ExpireActive(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	const q = `UPDATE access_codes SET status = 'EXPIRED' WHERE status = 'ACTIVE' AND session_expires_at <= $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, now)
	if err != nil {
		return 0, opErr("expire active codes", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *accessCodeRepo) ExpirePending(ctx context.Context, tx repository.Tx, cutoff time.Time) (int, error) {
	const q = `UPDATE access_codes SET status = 'EXPIRED' WHERE status = 'PENDING' AND pending_at < $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, cutoff)
	if err != nil {
		return 0, opErr("expire pending codes", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *accessCodeRepo) List(ctx context.Context, tx repository.Tx, f repository.CodeFilter) ([]*model.AccessCode, error) {
	var where []string
	var args []interface{}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if f.PlanID != "" {
		args = append(args, f.PlanID)
		where = append(where, "plan_id = $"+strconv.Itoa(len(args)))
	}
	q := `SELECT ` + codeColumns + ` FROM access_codes`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY issued_at DESC, code"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += " LIMIT $" + strconv.Itoa(len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, opErr("list access codes", err)
	}
	defer rows.Close()
	var out []*model.AccessCode
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *accessCodeRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.CodeStatus]int, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT status, COUNT(*) FROM access_codes GROUP BY status`)
	if err != nil {
		return nil, opErr("count access codes", err)
	}
	defer rows.Close()
	out := make(map[model.CodeStatus]int, 4)
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[model.CodeStatus(s)] = n
	}
	return out, rows.Err()
}
