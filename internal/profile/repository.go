package profile

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erp-system/erp/internal/shared"
)

// Repository writes the signed-in user's own account fields.
type Repository interface {
	UpdateName(ctx context.Context, userID int64, fullName string) error
	UpdatePassword(ctx context.Context, userID int64, hash string) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) UpdateName(ctx context.Context, userID int64, fullName string) error {
	return r.exec(ctx, `UPDATE users SET full_name = $1, updated_at = NOW() WHERE id = $2`, fullName, userID)
}

func (r *repository) UpdatePassword(ctx context.Context, userID int64, hash string) error {
	return r.exec(ctx, `UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`, hash, userID)
}

func (r *repository) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
