package rbac

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store loads role assignments for a user.
type Store interface {
	UserRoles(ctx context.Context, userID int64) ([]RoleRef, error)
}

// Service resolves effective permissions.
type Service struct {
	store Store
}

// NewService constructs a Service backed by the provided store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// UserRoles returns the roles assigned to a user, most senior first.
func (s *Service) UserRoles(ctx context.Context, userID int64) ([]RoleRef, error) {
	roles, err := s.store.UserRoles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: user roles: %w", err)
	}
	return roles, nil
}

// EffectivePermissions returns the union of permissions over the user's roles.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) (Set, error) {
	roles, err := s.UserRoles(ctx, userID)
	if err != nil {
		return 0, err
	}
	return Effective(roles), nil
}

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// UserRoles reads role rows with their nested permission names.
func (s *PGStore) UserRoles(ctx context.Context, userID int64) ([]RoleRef, error) {
	const query = `
SELECT r.id, r.name, r.level, COALESCE(array_agg(rp.permission) FILTER (WHERE rp.permission IS NOT NULL), '{}')
FROM user_roles ur
JOIN roles r ON r.id = ur.role_id
LEFT JOIN role_permissions rp ON rp.role_id = r.id
WHERE ur.user_id = $1
GROUP BY r.id, r.name, r.level
ORDER BY r.level DESC, r.name`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []RoleRef
	for rows.Next() {
		var (
			role  RoleRef
			names []string
		)
		if err := rows.Scan(&role.ID, &role.Name, &role.Level, &names); err != nil {
			return nil, err
		}
		role.Permissions = NewSet(names...)
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

var _ Store = (*PGStore)(nil)
