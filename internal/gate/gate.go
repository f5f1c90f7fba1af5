// Package gate resolves the caller's identity, assurance level and permissions
// on every protected request and decides whether the request may proceed.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/erp-system/erp/internal/platform/httpx"
	"github.com/erp-system/erp/internal/rbac"
)

// IdentityProvider is the boundary to the authentication backend.
type IdentityProvider interface {
	// CurrentUser resolves the request credential. ok is false when no
	// credential is present.
	CurrentUser(r *http.Request) (id Identity, ok bool, err error)
	AssuranceLevels(r *http.Request, id Identity) (Levels, error)
}

// ProfileLoader loads the application profile of a user. It returns
// ErrProfileNotFound for unknown users.
type ProfileLoader interface {
	LoadProfile(ctx context.Context, userID int64) (Profile, error)
}

// RoleResolver loads role assignments with their permissions.
type RoleResolver interface {
	UserRoles(ctx context.Context, userID int64) ([]rbac.RoleRef, error)
}

// Responder renders the terminal responses of the HTML gate.
type Responder interface {
	Forbidden(w http.ResponseWriter, r *http.Request)
	Failure(w http.ResponseWriter, r *http.Request, err error)
}

// Paths are the entry points the gate redirects to.
type Paths struct {
	SignIn string
	StepUp string
}

// Config wires a Gate.
type Config struct {
	Identity   IdentityProvider
	Profiles   ProfileLoader
	Roles      RoleResolver
	Responder  Responder
	Paths      Paths
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// Gate evaluates protected requests. It holds no per-request state.
type Gate struct {
	identity  IdentityProvider
	profiles  ProfileLoader
	roles     RoleResolver
	responder Responder
	paths     Paths
	logger    *slog.Logger
	decisions *prometheus.CounterVec
}

// Result is the outcome of Evaluate. Principal is set only when the decision
// is Proceed.
type Result struct {
	Decision  Decision
	Principal *Principal
}

// New constructs a Gate.
func New(cfg Config) *Gate {
	paths := cfg.Paths
	if paths.SignIn == "" {
		paths.SignIn = "/auth/login"
	}
	if paths.StepUp == "" {
		paths.StepUp = "/auth/mfa"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{
		identity:  cfg.Identity,
		profiles:  cfg.Profiles,
		roles:     cfg.Roles,
		responder: cfg.Responder,
		paths:     paths,
		logger:    logger,
	}
	if cfg.Registerer != nil {
		g.decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "erp_gate_decisions_total",
			Help: "Session gate decisions by resulting state.",
		}, []string{"state"})
		if err := cfg.Registerer.Register(g.decisions); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				g.decisions = already.ExistingCollector.(*prometheus.CounterVec)
			} else {
				logger.Warn("register gate metrics", slog.Any("error", err))
				g.decisions = nil
			}
		}
	}
	return g
}

// Evaluate runs the gate for r. Failures to resolve identity or assurance are
// reported as Unauthenticated decisions; failures loading the profile or
// permissions of an assured session are returned wrapped in ErrUpstream.
func (g *Gate) Evaluate(r *http.Request) (Result, error) {
	id, ok, err := g.identity.CurrentUser(r)
	if err != nil {
		g.logger.Warn("gate resolve identity", slog.Any("error", err))
		ok = false
	}
	if !ok {
		return g.finish(Result{Decision: Decide(false, Levels{})}), nil
	}

	levels, err := g.identity.AssuranceLevels(r, id)
	if err != nil {
		g.logger.Warn("gate assurance levels", slog.Int64("user_id", id.UserID), slog.Any("error", err))
		return g.finish(Result{Decision: Decide(false, Levels{})}), nil
	}

	decision := Decide(true, levels)
	if decision.Action != Proceed {
		return g.finish(Result{Decision: decision}), nil
	}

	ctx := r.Context()
	profile, err := g.profiles.LoadProfile(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return g.finish(Result{Decision: Decide(false, Levels{})}), nil
		}
		return Result{}, fmt.Errorf("%w: load profile: %w", ErrUpstream, err)
	}
	if !profile.IsActive {
		return g.finish(Result{Decision: Decide(false, Levels{})}), nil
	}
	roles, err := g.roles.UserRoles(ctx, id.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: load roles: %w", ErrUpstream, err)
	}

	principal := &Principal{
		Identity:    id,
		Profile:     profile,
		Roles:       roles,
		Permissions: rbac.Effective(roles),
		State:       decision.State,
	}
	return g.finish(Result{Decision: decision, Principal: principal}), nil
}

func (g *Gate) finish(res Result) Result {
	if g.decisions != nil {
		g.decisions.WithLabelValues(res.Decision.State.String()).Inc()
	}
	return res
}

// Middleware guards HTML routes: it redirects unauthenticated and
// under-assured sessions and stores the principal for downstream handlers.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := g.Evaluate(r)
		if err != nil {
			g.logger.Error("gate evaluate", slog.String("path", r.URL.Path), slog.Any("error", err))
			g.failure(w, r, err)
			return
		}
		switch res.Decision.Action {
		case RedirectSignIn:
			http.Redirect(w, r, g.signInURL(r), http.StatusSeeOther)
		case RedirectStepUp:
			http.Redirect(w, r, g.paths.StepUp, http.StatusSeeOther)
		default:
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), res.Principal)))
		}
	})
}

// APIMiddleware guards JSON routes, answering problems instead of redirects.
func (g *Gate) APIMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := g.Evaluate(r)
		if err != nil {
			g.logger.Error("gate evaluate api", slog.String("path", r.URL.Path), slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		switch res.Decision.Action {
		case RedirectSignIn:
			httpx.ProblemWithType(w, http.StatusUnauthorized, "unauthenticated", "Unauthorized", "sign in required")
		case RedirectStepUp:
			httpx.ProblemWithType(w, http.StatusUnauthorized, "step_up_required", "Unauthorized", "second factor required")
		default:
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), res.Principal)))
		}
	})
}

func (g *Gate) signInURL(r *http.Request) string {
	if r.Method != http.MethodGet || r.URL.Path == "/" {
		return g.paths.SignIn
	}
	return g.paths.SignIn + "?next=" + url.QueryEscape(r.URL.RequestURI())
}

func (g *Gate) forbidden(w http.ResponseWriter, r *http.Request) {
	if g.responder != nil {
		g.responder.Forbidden(w, r)
		return
	}
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

func (g *Gate) failure(w http.ResponseWriter, r *http.Request, err error) {
	if g.responder != nil {
		g.responder.Failure(w, r, err)
		return
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
