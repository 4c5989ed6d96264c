package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/repository"
)

var _ repository.ExclusionRepository = (*exclusionRepo)(nil)

type exclusionRepo struct{ pool *pgxpool.Pool }

func NewExclusionRepo(pool *pgxpool.Pool) *exclusionRepo {
	return &exclusionRepo{pool: pool}
}

const exclusionColumns = `id, type, value, reason, exclude_from_payment, exclude_from_connection, created_at`

func scanExclusion(row pgx.Row) (*model.Exclusion, error) {
	var e model.Exclusion
	var typ string
	if err := row.Scan(&e.ID, &typ, &e.Value, &e.Reason, &e.ExcludeFromPayment, &e.ExcludeFromConnection, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Type = model.ExclusionType(typ)
	return &e, nil
}

func (r *exclusionRepo) Save(ctx context.Context, tx repository.Tx, e *model.Exclusion) error {
	const q = `INSERT INTO exclusions (` + exclusionColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7);`
	_, err := execSQL(ctx, r.pool, tx, q,
		e.ID, string(e.Type), e.Value, e.Reason, e.ExcludeFromPayment, e.ExcludeFromConnection, e.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrExclusionExists
	}
	if err != nil {
		return opErr("save exclusion", err)
	}
	return nil
}

func (r *exclusionRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM exclusions WHERE id = $1;`, id)
	if err != nil {
		return opErr("delete exclusion", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrExclusionNotFound
	}
	return nil
}

func (r *exclusionRepo) FindByValue(ctx context.Context, tx repository.Tx, t model.ExclusionType, value string) (*model.Exclusion, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+exclusionColumns+` FROM exclusions WHERE type = $1 AND value = $2`, string(t), value)
	if err != nil {
		return nil, err
	}
	e, err := scanExclusion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrExclusionNotFound
	}
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return e, nil
}

func (r *exclusionRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Exclusion, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+exclusionColumns+` FROM exclusions ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, opErr("list exclusions", err)
	}
	defer rows.Close()
	var out []*model.Exclusion
	for rows.Next() {
		e, err := scanExclusion(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
