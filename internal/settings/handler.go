package settings

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/erp-system/erp/internal/gate"
	"github.com/erp-system/erp/internal/rbac"
	"github.com/erp-system/erp/internal/shared"
	"github.com/erp-system/erp/internal/view"
)

// Handler serves /settings.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	renderer  *view.Renderer
	gate      *gate.Gate
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, renderer *view.Renderer, g *gate.Gate) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, renderer: renderer, gate: g, validator: validator.New()}
}

// MountRoutes registers settings routes. Viewing is guarded by the route
// catalog; saving additionally needs settings.edit.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.show)
	r.With(h.gate.Require(rbac.PermSettingsEdit)).Post("/", h.save)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	form, err := h.service.Values(r.Context())
	if err != nil {
		h.renderer.Failure(w, r, err)
		return
	}
	h.render(w, r, form, shared.FormErrors{}, http.StatusOK)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := Form{SystemName: r.PostFormValue("system_name")}
	if errs := shared.FieldErrors(h.validator.Struct(form)); len(errs) > 0 {
		h.render(w, r, form, errs, http.StatusBadRequest)
		return
	}
	if err := h.service.Update(r.Context(), gate.UserIDFromContext(r.Context()), form); err != nil {
		h.renderer.Failure(w, r, err)
		return
	}
	h.logger.Info("settings updated", slog.Int64("user_id", gate.UserIDFromContext(r.Context())))
	h.renderer.RedirectWithFlash(w, r, "/settings", "success", "Postavke su sačuvane.")
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, form Form, errs shared.FormErrors, status int) {
	h.renderer.Render(w, r, "pages/settings/index.html", "Postavke", map[string]any{
		"Form":    form,
		"Errors":  errs,
		"Default": DefaultSystemName,
	}, status)
}
