package view

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/erp-system/erp/internal/gate"
	"github.com/erp-system/erp/internal/navigation"
	"github.com/erp-system/erp/internal/shared"
)

// SystemNamer supplies the installation name shown in the page header.
type SystemNamer interface {
	SystemName(ctx context.Context) (string, error)
}

// Renderer builds the page chrome (menu, breadcrumbs, flash, CSRF token)
// around handler data. It also renders the gate's terminal pages.
type Renderer struct {
	logger   *slog.Logger
	engine   *Engine
	csrf     *shared.CSRFManager
	catalog  *navigation.Catalog
	settings SystemNamer
}

// NewRenderer constructs a Renderer. settings may be nil.
func NewRenderer(logger *slog.Logger, engine *Engine, csrf *shared.CSRFManager, catalog *navigation.Catalog, settings SystemNamer) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	if catalog == nil {
		catalog = navigation.Default
	}
	return &Renderer{logger: logger, engine: engine, csrf: csrf, catalog: catalog, settings: settings}
}

// Page assembles TemplateData for the request. It pops at most one flash.
// A failing system name lookup is returned as an error.
func (r *Renderer) Page(req *http.Request, title string, data any) (TemplateData, error) {
	td := r.chrome(req, title, data)
	if r.settings != nil {
		name, err := r.settings.SystemName(req.Context())
		if err != nil {
			return td, err
		}
		td.SystemName = name
	}
	return td, nil
}

func (r *Renderer) chrome(req *http.Request, title string, data any) TemplateData {
	ctx := req.Context()
	sess := shared.SessionFromContext(ctx)
	var token string
	if r.csrf != nil && sess != nil {
		token, _ = r.csrf.EnsureToken(ctx, sess)
	}
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	td := TemplateData{
		Title:       title,
		CSRFToken:   token,
		Flash:       flash,
		CurrentPath: req.URL.Path,
		Data:        data,
	}
	if principal := gate.PrincipalFromContext(ctx); principal != nil {
		td.Principal = principal
		td.Menu = r.catalog.Menu(principal.Permissions)
		td.Breadcrumbs = r.catalog.Breadcrumbs(req.URL.Path)
	}
	if td.Title == "" {
		td.Title = r.catalog.Label(req.URL.Path)
	}
	return td
}

// Render writes the named page with status.
func (r *Renderer) Render(w http.ResponseWriter, req *http.Request, name, title string, data any, status int) {
	td, err := r.Page(req, title, data)
	if err != nil {
		r.Failure(w, req, err)
		return
	}
	r.write(w, name, td, status)
}

func (r *Renderer) write(w http.ResponseWriter, name string, td TemplateData, status int) {
	if err := r.engine.RenderStatus(w, name, td, status); err != nil {
		r.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// RedirectWithFlash queues a flash message and redirects with 303.
func (r *Renderer) RedirectWithFlash(w http.ResponseWriter, req *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(req.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, req, location, http.StatusSeeOther)
}

// Forbidden renders the 403 page.
func (r *Renderer) Forbidden(w http.ResponseWriter, req *http.Request) {
	r.Render(w, req, "pages/forbidden.html", "Pristup odbijen", nil, http.StatusForbidden)
}

// Failure logs err and renders the generic 500 page.
func (r *Renderer) Failure(w http.ResponseWriter, req *http.Request, err error) {
	r.logger.Error("request failed", slog.String("path", req.URL.Path), slog.Any("error", err))
	td := r.chrome(req, "Greška", map[string]any{"Message": shared.UserSafeMessage(err)})
	r.write(w, "pages/error.html", td, http.StatusInternalServerError)
}

var _ gate.Responder = (*Renderer)(nil)
