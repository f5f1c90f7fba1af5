package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erp-system/erp/internal/platform/db"
	"github.com/erp-system/erp/internal/rbac"
	"github.com/erp-system/erp/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleSelect = `
SELECT r.id, r.name, r.description, r.level, r.created_at, r.updated_at,
       COALESCE(array_agg(rp.permission) FILTER (WHERE rp.permission IS NOT NULL), '{}'),
       (SELECT COUNT(*) FROM user_roles ur WHERE ur.role_id = r.id)
FROM roles r
LEFT JOIN role_permissions rp ON rp.role_id = r.id`

func scanRole(row pgx.Row) (Role, error) {
	var (
		role  Role
		names []string
	)
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.Level, &role.CreatedAt, &role.UpdatedAt, &names, &role.UserCount); err != nil {
		return Role{}, err
	}
	role.Permissions = rbac.NewSet(names...)
	return role, nil
}

// ListRoles returns all roles, most senior first.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, roleSelect+` GROUP BY r.id ORDER BY r.level DESC, r.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole loads one role.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, roleSelect+` WHERE r.id = $1 GROUP BY r.id`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	return role, err
}

// CreateRole inserts a role with its permissions.
func (r *Repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `INSERT INTO roles (name, description, level) VALUES ($1, $2, $3) RETURNING id, created_at, updated_at`,
			role.Name, role.Description, role.Level).Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return err
		}
		return replacePermissions(ctx, tx, role.ID, role.Permissions)
	})
	if shared.IsUniqueViolation(err) {
		return Role{}, shared.ErrDuplicate
	}
	return role, err
}

// UpdateRole overwrites the role row and its permission set.
func (r *Repository) UpdateRole(ctx context.Context, role Role) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE roles SET name = $1, description = $2, level = $3, updated_at = NOW() WHERE id = $4`,
			role.Name, role.Description, role.Level, role.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return replacePermissions(ctx, tx, role.ID, role.Permissions)
	})
	if shared.IsUniqueViolation(err) {
		return shared.ErrDuplicate
	}
	return err
}

// DeleteRole removes a role that no user holds.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
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

// CountRoles returns the number of roles.
func (r *Repository) CountRoles(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM roles`).Scan(&n)
	return n, err
}

func replacePermissions(ctx context.Context, tx pgx.Tx, roleID int64, perms rbac.Set) error {
	if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return err
	}
	names := perms.Names()
	if len(names) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission) SELECT $1, unnest($2::text[])`, roleID, names)
	return err
}
