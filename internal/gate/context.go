package gate

import (
	"context"

	"github.com/erp-system/erp/internal/rbac"
)

// Identity is what the identity provider resolved from the request credential.
type Identity struct {
	UserID int64
	Email  string
	// Source is "session" or "token".
	Source string
}

// Profile is the application-side user record.
type Profile struct {
	ID       int64
	Email    string
	FullName string
	IsActive bool
}

// DisplayName prefers the full name over the email address.
func (p Profile) DisplayName() string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.Email
}

// Principal is the fully resolved context handed to protected handlers.
type Principal struct {
	Identity    Identity
	Profile     Profile
	Roles       []rbac.RoleRef
	Permissions rbac.Set
	State       State
}

// Can reports whether the principal holds every permission in perms.
func (p *Principal) Can(perms ...rbac.Permission) bool {
	if p == nil {
		return false
	}
	return rbac.Authorized(p.Permissions, perms...)
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}

// UserIDFromContext returns the principal's user id, or 0 without a principal.
func UserIDFromContext(ctx context.Context) int64 {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.Identity.UserID
	}
	return 0
}
