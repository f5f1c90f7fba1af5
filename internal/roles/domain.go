package roles

import (
	"errors"
	"time"

	"github.com/erp-system/erp/internal/rbac"
)

// AdminRoleName is the seeded role that always holds every permission.
const AdminRoleName = "admin"

var (
	// ErrSystemRole is returned when deleting or renaming the admin role.
	ErrSystemRole = errors.New("roles: system role cannot be removed or renamed")
	// ErrOutranked is returned when the actor manages a role above their own level.
	ErrOutranked = errors.New("roles: role level exceeds actor level")
	// ErrUnheldPermission is returned when a role would carry a permission the actor lacks.
	ErrUnheldPermission = errors.New("roles: permission not held by actor")
)

// Role represents a role for management.
type Role struct {
	ID          int64
	Name        string
	Description string
	Level       int
	Permissions rbac.Set
	UserCount   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// System reports whether the role is the protected admin role.
func (r Role) System() bool {
	return r.Name == AdminRoleName
}

// RoleForm is the create/edit form.
type RoleForm struct {
	Name        string `validate:"required,max=50"`
	Description string `validate:"max=200"`
	Level       int    `validate:"gte=0,lte=100"`
	Permissions []string
}

// Selected reports whether the form ticks perm.
func (f RoleForm) Selected(perm rbac.Permission) bool {
	for _, name := range f.Permissions {
		if name == string(perm) {
			return true
		}
	}
	return false
}

func formFrom(r Role) RoleForm {
	return RoleForm{Name: r.Name, Description: r.Description, Level: r.Level, Permissions: r.Permissions.Names()}
}

// Actor is the user performing a role change.
type Actor struct {
	ID          int64
	Level       int
	Permissions rbac.Set
}
