package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/repository"
)

var _ repository.AdminRepository = (*adminRepo)(nil)

// SecretSealer encrypts TOTP secrets at rest. aad binds a sealed value to
// its admin row.
type SecretSealer interface {
	Seal(plaintext, aad string) (string, error)
	Open(sealed, aad string) (string, error)
}

type adminRepo struct {
	pool   *pgxpool.Pool
	sealer SecretSealer
}

func NewAdminRepo(pool *pgxpool.Pool, sealer SecretSealer) *adminRepo {
	return &adminRepo{pool: pool, sealer: sealer}
}

const adminColumns = `id, username, password_hash, totp_secret_sealed, created_at`

func (r *adminRepo) scan(row pgx.Row) (*model.AdminPrincipal, error) {
	var a model.AdminPrincipal
	var sealed string
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &sealed, &a.CreatedAt); err != nil {
		return nil, err
	}
	secret, err := r.sealer.Open(sealed, a.ID)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "open totp secret", err)
	}
	a.TOTPSecret = secret
	return &a, nil
}

func (r *adminRepo) Save(ctx context.Context, tx repository.Tx, a *model.AdminPrincipal) error {
	sealed, err := r.sealer.Seal(a.TOTPSecret, a.ID)
	if err != nil {
		return fmt.Errorf("seal totp secret: %w", err)
	}
	const q = `
INSERT INTO admins (` + adminColumns + `)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
  SET password_hash      = EXCLUDED.password_hash,
      totp_secret_sealed = EXCLUDED.totp_secret_sealed;`
	_, err = execSQL(ctx, r.pool, tx, q, a.ID, a.Username, a.PasswordHash, sealed, a.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrAdminExists
	}
	if err != nil {
		return opErr("save admin", err)
	}
	return nil
}

func (r *adminRepo) find(ctx context.Context, tx repository.Tx, where string, arg string) (*model.AdminPrincipal, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+adminColumns+` FROM admins WHERE `+where, arg)
	if err != nil {
		return nil, err
	}
	a, err := r.scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAdminNotFound
	}
	var derr *domain.Error
	if errors.As(err, &derr) {
		return nil, err
	}
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return a, nil
}

func (r *adminRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.AdminPrincipal, error) {
	return r.find(ctx, tx, `id = $1`, id)
}

func (r *adminRepo) FindByUsername(ctx context.Context, tx repository.Tx, username string) (*model.AdminPrincipal, error) {
	return r.find(ctx, tx, `LOWER(username) = LOWER($1)`, username)
}

func (r *adminRepo) List(ctx context.Context, tx repository.Tx) ([]*model.AdminPrincipal, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+adminColumns+` FROM admins ORDER BY username`)
	if err != nil {
		return nil, opErr("list admins", err)
	}
	defer rows.Close()
	var out []*model.AdminPrincipal
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
