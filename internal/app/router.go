package app

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/erp-system/erp/internal/auth"
	"github.com/erp-system/erp/internal/betonara"
	"github.com/erp-system/erp/internal/companies"
	"github.com/erp-system/erp/internal/dashboard"
	"github.com/erp-system/erp/internal/gate"
	"github.com/erp-system/erp/internal/navigation"
	"github.com/erp-system/erp/internal/observability"
	"github.com/erp-system/erp/internal/platform/httpx"
	"github.com/erp-system/erp/internal/profile"
	"github.com/erp-system/erp/internal/rbac"
	"github.com/erp-system/erp/internal/roles"
	"github.com/erp-system/erp/internal/settings"
	"github.com/erp-system/erp/internal/shared"
	"github.com/erp-system/erp/internal/users"
	"github.com/erp-system/erp/internal/view"
	"github.com/erp-system/erp/jobs"
	"github.com/erp-system/erp/web"
)

// ReadinessCheck reports whether a backing service answers.
type ReadinessCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Renderer       *view.Renderer
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Gate           *gate.Gate
	Catalog        *navigation.Catalog
	Metrics        *observability.Metrics
	Readiness      map[string]ReadinessCheck

	AuthHandler      *auth.Handler
	AuthAPI          *auth.APIHandler
	DashboardHandler *dashboard.Handler
	CompaniesHandler *companies.Handler
	UsersHandler     *users.Handler
	RolesHandler     *roles.Handler
	SettingsHandler  *settings.Handler
	ProfileHandler   *profile.Handler
	BetonaraHandler  *betonara.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router: public endpoints, the JSON API and the
// gated HTML application.
func NewRouter(params RouterParams) http.Handler {
	catalog := params.Catalog
	if catalog == nil {
		catalog = navigation.Default
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readinessHandler(params.Logger, params.Readiness))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	mount(r, "/auth", params.AuthHandler)

	if params.AuthAPI != nil {
		r.Route("/api/v1", func(r chi.Router) {
			if params.Config != nil && len(params.Config.CORSOrigins) > 0 {
				r.Use(cors.Handler(cors.Options{
					AllowedOrigins:   params.Config.CORSOrigins,
					AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
					AllowedHeaders:   []string{"Authorization", "Content-Type"},
					AllowCredentials: false,
					MaxAge:           300,
				}))
			}
			r.Route("/auth", params.AuthAPI.MountTokenRoutes)
			r.Group(func(r chi.Router) {
				r.Use(params.Gate.APIMiddleware)
				r.Get("/me", params.AuthAPI.Me)
			})
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(params.Gate.Middleware)
		r.Use(params.Gate.RequireRoute(catalog))

		r.Get("/", homeHandler(params.Renderer, catalog))
		mount(r, "/dashboard", params.DashboardHandler)
		mount(r, "/companies", params.CompaniesHandler)
		mount(r, "/users", params.UsersHandler)
		mount(r, "/roles", params.RolesHandler)
		mount(r, "/settings", params.SettingsHandler)
		mount(r, "/profile", params.ProfileHandler)
		mount(r, "/betonara", params.BetonaraHandler)
		if params.JobHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Use(params.Gate.Require(rbac.PermSettingsView))
				params.JobHandler.MountRoutes(r)
			})
		}
	})

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// routeMounter is implemented by every screen handler.
type routeMounter interface {
	MountRoutes(r chi.Router)
}

func mount[H routeMounter](r chi.Router, prefix string, h H) {
	var zero H
	if any(h) == any(zero) {
		return
	}
	r.Route(prefix, h.MountRoutes)
}

// homeHandler sends the principal to the first screen their permissions
// unlock, or shows a notice when none does.
func homeHandler(renderer *view.Renderer, catalog *navigation.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p := gate.PrincipalFromContext(r.Context()); p != nil {
			if item, ok := catalog.FirstItem(p.Permissions); ok {
				http.Redirect(w, r, item.Path, http.StatusSeeOther)
				return
			}
		}
		renderer.Render(w, r, "pages/home.html", "Početna", nil, http.StatusOK)
	}
}

func readinessHandler(logger *slog.Logger, checks map[string]ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := make(map[string]string, len(checks))
		code := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn("readiness check failed", slog.String("check", name), slog.Any("error", err))
				status[name] = "unavailable"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		httpx.JSON(w, code, status)
	}
}

// staticCacheHandler sets a one hour browser cache on embedded assets.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
