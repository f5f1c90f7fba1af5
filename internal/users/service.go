package users

import (
	"context"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/erp-system/erp/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filters shared.ListFilters) ([]User, int, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, rec Record, roleIDs []int64) (User, error)
	UpdateUser(ctx context.Context, rec Record, roleIDs []int64) error
	DeleteUser(ctx context.Context, id int64) error
	CountUsers(ctx context.Context) (int, error)
	RoleOptions(ctx context.Context) ([]RoleOption, error)
}

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	audit    shared.AuditRecorder
	hashCost int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit shared.AuditRecorder) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	return &Service{repo: repo, audit: audit, hashCost: bcrypt.DefaultCost}
}

// ListUsers returns a page of users and the total count.
func (s *Service) ListUsers(ctx context.Context, filters shared.ListFilters) ([]User, int, error) {
	return s.repo.ListUsers(ctx, filters)
}

// GetUser loads one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CountUsers returns the number of users.
func (s *Service) CountUsers(ctx context.Context) (int, error) {
	return s.repo.CountUsers(ctx)
}

// RoleOptions lists the roles that can be assigned.
func (s *Service) RoleOptions(ctx context.Context) ([]RoleOption, error) {
	return s.repo.RoleOptions(ctx)
}

// CreateUser hashes the password and stores the account.
func (s *Service) CreateUser(ctx context.Context, actor Actor, form CreateForm) (User, error) {
	roleIDs, err := s.assignable(ctx, actor, form.RoleIDs)
	if err != nil {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(form.Password), s.hashCost)
	if err != nil {
		return User{}, err
	}
	rec := Record{
		User: User{
			Email:    strings.ToLower(strings.TrimSpace(form.Email)),
			FullName: strings.TrimSpace(form.FullName),
			IsActive: form.IsActive,
		},
		PasswordHash: string(hash),
	}
	created, err := s.repo.CreateUser(ctx, rec, roleIDs)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actor, "user.created", created.ID, map[string]any{"email": created.Email, "roles": roleIDs})
	return created, nil
}

// UpdateUser edits profile data, status and roles of a user.
func (s *Service) UpdateUser(ctx context.Context, actor Actor, id int64, form UpdateForm) error {
	current, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if id == actor.ID && !form.IsActive {
		return ErrSelf
	}
	if highest(current.Roles) > actor.Level {
		return ErrOutranked
	}
	roleIDs, err := s.assignable(ctx, actor, form.RoleIDs)
	if err != nil {
		return err
	}
	rec := Record{User: User{ID: id, FullName: strings.TrimSpace(form.FullName), IsActive: form.IsActive}}
	if form.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(form.Password), s.hashCost)
		if err != nil {
			return err
		}
		rec.PasswordHash = string(hash)
	}
	if err := s.repo.UpdateUser(ctx, rec, roleIDs); err != nil {
		return err
	}
	s.record(ctx, actor, "user.updated", id, map[string]any{
		"active":           form.IsActive,
		"roles":            roleIDs,
		"password_changed": form.Password != "",
	})
	return nil
}

// DeleteUser removes an account. Administrators cannot delete themselves.
func (s *Service) DeleteUser(ctx context.Context, actor Actor, id int64) error {
	if id == actor.ID {
		return ErrSelf
	}
	current, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if highest(current.Roles) > actor.Level {
		return ErrOutranked
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "user.deleted", id, map[string]any{"email": current.Email})
	return nil
}

// assignable drops unknown role ids and rejects roles above the actor or
// carrying permissions the actor does not hold.
func (s *Service) assignable(ctx context.Context, actor Actor, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	options, err := s.repo.RoleOptions(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]RoleOption, len(options))
	for _, o := range options {
		byID[o.ID] = o
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		o, ok := byID[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		if o.Level > actor.Level {
			return nil, ErrOutranked
		}
		if !actor.Permissions.ContainsAll(o.Permissions) {
			return nil, ErrUnheldPermission
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func (s *Service) record(ctx context.Context, actor Actor, action string, id int64, meta map[string]any) {
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}

func highest(roles []RoleOption) int {
	level := 0
	for _, r := range roles {
		if r.Level > level {
			level = r.Level
		}
	}
	return level
}
