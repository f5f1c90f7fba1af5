package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erp-system/erp/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
	PurgeSessions(ctx context.Context, before time.Time) (int64, error)
	ListFactors(ctx context.Context, userID int64) ([]Factor, error)
	CreateFactor(ctx context.Context, userID int64, secret string) (Factor, error)
	MarkFactorVerified(ctx context.Context, userID, factorID int64, at time.Time) error
	DeleteFactor(ctx context.Context, userID, factorID int64) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, email, full_name, password_hash, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// FindByEmail fetches a user by email, case-insensitively.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

// FindByID fetches a user by primary key.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// CreateSession persists a new login session in the database for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO user_sessions (id, user_id, created_at, expires_at, ip, user_agent)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		id, userID,
		pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true},
		pgtype.Timestamptz{Time: expiresAt.UTC(), Valid: true},
		pgtype.Text{String: ip, Valid: ip != ""},
		pgtype.Text{String: ua, Valid: ua != ""},
	)
	return err
}

// DeleteSession removes a session record from the database.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE id = $1`, id)
	return err
}

// PurgeSessions deletes session records that expired before the cutoff.
func (r *PGRepository) PurgeSessions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListFactors returns the user's factors, verified first.
func (r *PGRepository) ListFactors(ctx context.Context, userID int64) ([]Factor, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, user_id, secret, verified_at, created_at
FROM mfa_factors WHERE user_id = $1
ORDER BY verified_at IS NULL, created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var factors []Factor
	for rows.Next() {
		var f Factor
		if err := rows.Scan(&f.ID, &f.UserID, &f.Secret, &f.VerifiedAt, &f.CreatedAt); err != nil {
			return nil, err
		}
		factors = append(factors, f)
	}
	return factors, rows.Err()
}

// CreateFactor stores a pending factor, discarding earlier unverified ones.
func (r *PGRepository) CreateFactor(ctx context.Context, userID int64, secret string) (Factor, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Factor{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM mfa_factors WHERE user_id = $1 AND verified_at IS NULL`, userID); err != nil {
		return Factor{}, err
	}
	f := Factor{UserID: userID, Secret: secret}
	if err := tx.QueryRow(ctx, `INSERT INTO mfa_factors (user_id, secret) VALUES ($1, $2) RETURNING id, created_at`,
		userID, secret).Scan(&f.ID, &f.CreatedAt); err != nil {
		return Factor{}, err
	}
	return f, tx.Commit(ctx)
}

// MarkFactorVerified confirms a pending factor.
func (r *PGRepository) MarkFactorVerified(ctx context.Context, userID, factorID int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE mfa_factors SET verified_at = $3 WHERE id = $1 AND user_id = $2`, factorID, userID, at.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteFactor removes a factor owned by the user.
func (r *PGRepository) DeleteFactor(ctx context.Context, userID, factorID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM mfa_factors WHERE id = $1 AND user_id = $2`, factorID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
