package gate

import (
	"log/slog"
	"net/http"

	"github.com/erp-system/erp/internal/navigation"
	"github.com/erp-system/erp/internal/platform/httpx"
	"github.com/erp-system/erp/internal/rbac"
)

// Require rejects HTML requests whose principal lacks any of perms.
func (g *Gate) Require(perms ...rbac.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !g.allowed(r, perms) {
				g.forbidden(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAPI is Require for JSON routes.
func (g *Gate) RequireAPI(perms ...rbac.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !g.allowed(r, perms) {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", ErrInsufficientPermission.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRoute enforces the permissions of the catalog item owning the
// request path, so a route hidden from the menu cannot be reached directly.
// Paths not covered by the catalog pass through.
func (g *Gate) RequireRoute(catalog *navigation.Catalog) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			item, ok := catalog.ItemForRoute(r.URL.Path)
			if ok && !g.allowed(r, item.Required) {
				g.forbidden(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Gate) allowed(r *http.Request, perms []rbac.Permission) bool {
	p := PrincipalFromContext(r.Context())
	if p == nil {
		return false
	}
	if p.Can(perms...) {
		return true
	}
	g.logger.Info("permission denied",
		slog.Int64("user_id", p.Identity.UserID),
		slog.String("path", r.URL.Path),
		slog.Any("required", perms),
	)
	return false
}
