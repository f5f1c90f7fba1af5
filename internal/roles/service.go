package roles

import (
	"context"
	"strconv"
	"strings"

	"github.com/erp-system/erp/internal/rbac"
	"github.com/erp-system/erp/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) error
	DeleteRole(ctx context.Context, id int64) error
	CountRoles(ctx context.Context) (int, error)
}

// Service handles role business logic.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditRecorder
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit shared.AuditRecorder) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	return &Service{repo: repo, audit: audit}
}

// ListRoles returns all roles ordered by level, highest first.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole loads one role.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CountRoles returns the number of roles.
func (s *Service) CountRoles(ctx context.Context) (int, error) {
	return s.repo.CountRoles(ctx)
}

// CreateRole stores a new role. The actor cannot create a role above their
// level or grant a permission they do not hold.
func (s *Service) CreateRole(ctx context.Context, actor Actor, form RoleForm) (Role, error) {
	role := fromForm(form)
	if role.Level > actor.Level {
		return Role{}, ErrOutranked
	}
	if role.Name == AdminRoleName {
		return Role{}, shared.ErrDuplicate
	}
	if !actor.Permissions.ContainsAll(role.Permissions) {
		return Role{}, ErrUnheldPermission
	}
	created, err := s.repo.CreateRole(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actor, "role.created", created.ID, map[string]any{"permissions": created.Permissions.Names()})
	return created, nil
}

// UpdateRole edits a role. The admin role keeps its name and every permission.
func (s *Service) UpdateRole(ctx context.Context, actor Actor, id int64, form RoleForm) error {
	current, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if current.Level > actor.Level {
		return ErrOutranked
	}
	role := fromForm(form)
	role.ID = id
	if role.Level > actor.Level {
		return ErrOutranked
	}
	if current.System() {
		if role.Name != AdminRoleName {
			return ErrSystemRole
		}
		role.Permissions = rbac.SetOf(rbac.All()...)
	}
	if !actor.Permissions.ContainsAll(role.Permissions) {
		return ErrUnheldPermission
	}
	if err := s.repo.UpdateRole(ctx, role); err != nil {
		return err
	}
	s.record(ctx, actor, "role.updated", id, map[string]any{"permissions": role.Permissions.Names()})
	return nil
}

// DeleteRole removes a role. The admin role is never deleted.
func (s *Service) DeleteRole(ctx context.Context, actor Actor, id int64) error {
	current, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if current.System() {
		return ErrSystemRole
	}
	if current.Level > actor.Level {
		return ErrOutranked
	}
	if current.UserCount > 0 {
		return shared.ErrInUse
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "role.deleted", id, map[string]any{"name": current.Name})
	return nil
}

func (s *Service) record(ctx context.Context, actor Actor, action string, id int64, meta map[string]any) {
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}

func fromForm(form RoleForm) Role {
	return Role{
		Name:        strings.ToLower(strings.TrimSpace(form.Name)),
		Description: strings.TrimSpace(form.Description),
		Level:       form.Level,
		Permissions: rbac.NewSet(form.Permissions...),
	}
}
