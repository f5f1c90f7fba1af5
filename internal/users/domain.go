package users

import (
	"errors"
	"time"

	"github.com/erp-system/erp/internal/rbac"
)

var (
	// ErrSelf is returned when an administrator deletes or deactivates their own account.
	ErrSelf = errors.New("users: cannot remove own account")
	// ErrOutranked is returned when assigning a role above the actor's level.
	ErrOutranked = errors.New("users: role above actor level")
	// ErrUnheldPermission is returned when a role carries a permission the actor lacks.
	ErrUnheldPermission = errors.New("users: role grants permission not held by actor")
)

// RoleOption is a role that can be assigned to a user.
type RoleOption struct {
	ID          int64
	Name        string
	Level       int
	Permissions rbac.Set
}

// User represents a user account for management.
type User struct {
	ID        int64
	Email     string
	FullName  string
	IsActive  bool
	Roles     []RoleOption
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasRole reports whether the user holds the role.
func (u User) HasRole(id int64) bool {
	for _, r := range u.Roles {
		if r.ID == id {
			return true
		}
	}
	return false
}

// RoleIDs lists the ids of the user's roles.
func (u User) RoleIDs() []int64 {
	ids := make([]int64, 0, len(u.Roles))
	for _, r := range u.Roles {
		ids = append(ids, r.ID)
	}
	return ids
}

// CreateForm is submitted when adding a user.
type CreateForm struct {
	Email    string `validate:"required,email,max=200"`
	FullName string `validate:"required,max=150"`
	Password string `validate:"required,min=8,max=72"`
	Confirm  string `validate:"eqfield=Password"`
	IsActive bool
	RoleIDs  []int64
}

// UpdateForm is submitted when editing a user. An empty Password keeps the
// current one.
type UpdateForm struct {
	FullName string `validate:"required,max=150"`
	Password string `validate:"omitempty,min=8,max=72"`
	IsActive bool
	RoleIDs  []int64
}

// Selected reports whether the role is ticked in the form.
func (f UpdateForm) Selected(id int64) bool {
	for _, v := range f.RoleIDs {
		if v == id {
			return true
		}
	}
	return false
}

// Selected reports whether the role is ticked in the form.
func (f CreateForm) Selected(id int64) bool {
	return UpdateForm{RoleIDs: f.RoleIDs}.Selected(id)
}

// Actor is the administrator performing a change.
type Actor struct {
	ID          int64
	Level       int
	Permissions rbac.Set
}
