package users

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erp-system/erp/internal/platform/db"
	"github.com/erp-system/erp/internal/rbac"
	"github.com/erp-system/erp/internal/shared"
)

// Record is a user row with the password hash, used for writes.
type Record struct {
	User
	PasswordHash string
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userSelect = `
SELECT u.id, u.email, u.full_name, u.is_active, u.created_at, u.updated_at,
       COALESCE(array_agg(r.id ORDER BY r.level DESC) FILTER (WHERE r.id IS NOT NULL), '{}'),
       COALESCE(array_agg(r.name ORDER BY r.level DESC) FILTER (WHERE r.id IS NOT NULL), '{}'),
       COALESCE(array_agg(r.level ORDER BY r.level DESC) FILTER (WHERE r.id IS NOT NULL), '{}')
FROM users u
LEFT JOIN user_roles ur ON ur.user_id = u.id
LEFT JOIN roles r ON r.id = ur.role_id`

func scanUser(row pgx.Row) (User, error) {
	var (
		u      User
		ids    []int64
		names  []string
		levels []int32
	)
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &ids, &names, &levels); err != nil {
		return User{}, err
	}
	for i := range ids {
		u.Roles = append(u.Roles, RoleOption{ID: ids[i], Name: names[i], Level: int(levels[i])})
	}
	return u, nil
}

// ListUsers returns a page of users with their roles.
func (r *Repository) ListUsers(ctx context.Context, filters shared.ListFilters) ([]User, int, error) {
	where := ``
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where = ` WHERE (u.email ILIKE $1 OR u.full_name ILIKE $1)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users u`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := userSelect + where + ` GROUP BY u.id ORDER BY ` + sortOrder(filters.SortBy, filters.Direction())
	if filters.Limit > 0 {
		query += ` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
		args = append(args, filters.Limit, filters.Offset())
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// GetUser loads a user with roles.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, userSelect+` WHERE u.id = $1 GROUP BY u.id`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	return u, err
}

// CreateUser inserts the user and its role assignments.
func (r *Repository) CreateUser(ctx context.Context, rec Record, roleIDs []int64) (User, error) {
	u := rec.User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `INSERT INTO users (email, full_name, password_hash, is_active) VALUES ($1, $2, $3, $4) RETURNING id, created_at, updated_at`,
			u.Email, u.FullName, rec.PasswordHash, u.IsActive).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return err
		}
		return replaceRoles(ctx, tx, u.ID, roleIDs)
	})
	if shared.IsUniqueViolation(err) {
		return User{}, shared.ErrDuplicate
	}
	return u, err
}

// UpdateUser writes name, status and roles. The password hash is only
// replaced when rec.PasswordHash is set.
func (r *Repository) UpdateUser(ctx context.Context, rec Record, roleIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE users SET full_name = $1, is_active = $2,
password_hash = COALESCE(NULLIF($3, ''), password_hash), updated_at = NOW() WHERE id = $4`,
			rec.FullName, rec.IsActive, rec.PasswordHash, rec.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return replaceRoles(ctx, tx, rec.ID, roleIDs)
	})
}

// DeleteUser removes a user with its sessions, factors and role assignments.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM user_roles WHERE user_id = $1`,
			`DELETE FROM user_sessions WHERE user_id = $1`,
			`DELETE FROM mfa_factors WHERE user_id = $1`,
		} {
			if _, err := tx.Exec(ctx, stmt, id); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			if shared.IsForeignKeyViolation(err) {
				return shared.ErrInUse
			}
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// CountUsers returns the number of users.
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// RoleOptions lists assignable roles, most senior first.
func (r *Repository) RoleOptions(ctx context.Context) ([]RoleOption, error) {
	rows, err := r.pool.Query(ctx, `
SELECT r.id, r.name, r.level,
       COALESCE(array_agg(rp.permission) FILTER (WHERE rp.permission IS NOT NULL), '{}')
FROM roles r
LEFT JOIN role_permissions rp ON rp.role_id = r.id
GROUP BY r.id, r.name, r.level
ORDER BY r.level DESC, r.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RoleOption
	for rows.Next() {
		var (
			o     RoleOption
			perms []string
		)
		if err := rows.Scan(&o.ID, &o.Name, &o.Level, &perms); err != nil {
			return nil, err
		}
		o.Permissions = rbac.NewSet(perms...)
		out = append(out, o)
	}
	return out, rows.Err()
}

func replaceRoles(ctx context.Context, tx pgx.Tx, userID int64, roleIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return err
	}
	if len(roleIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) SELECT $1, unnest($2::bigint[])`, userID, roleIDs)
	return err
}

func sortOrder(sortBy, dir string) string {
	switch sortBy {
	case "email":
		return "u.email " + dir
	case "created_at":
		return "u.created_at " + dir
	default:
		return "u.full_name " + dir
	}
}
