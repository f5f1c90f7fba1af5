package settings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erp-system/erp/internal/shared"
)

// Repository reads and writes key-value settings.
type Repository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, actorID int64) error
}

// PGRepository stores settings in the settings table.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Get returns the value of key or shared.ErrNotFound.
func (r *PGRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shared.ErrNotFound
	}
	return value, err
}

// Set upserts key.
func (r *PGRepository) Set(ctx context.Context, key, value string, actorID int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO settings (key, value, updated_by, updated_at)
VALUES ($1, $2, NULLIF($3, 0), NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = NOW()`,
		key, value, actorID)
	return err
}
