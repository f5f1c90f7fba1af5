package roles

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/erp-system/erp/internal/gate"
	"github.com/erp-system/erp/internal/rbac"
	"github.com/erp-system/erp/internal/shared"
	"github.com/erp-system/erp/internal/view"
)

// Handler manages role management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	renderer  *view.Renderer
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, renderer *view.Renderer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, renderer: renderer, validator: validator.New()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listRoles)
	r.Get("/new", h.showCreateRoleForm)
	r.Post("/", h.createRole)
	r.Get("/{id}/edit", h.showEditRoleForm)
	r.Post("/{id}", h.updateRole)
	r.Post("/{id}/delete", h.deleteRole)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.renderer.Failure(w, r, err)
		return
	}
	h.renderer.Render(w, r, "pages/roles/list.html", "Uloge i dozvole", map[string]any{"Roles": roles}, http.StatusOK)
}

func (h *Handler) showCreateRoleForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, 0, RoleForm{}, shared.FormErrors{}, http.StatusOK)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	form, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	if errs := shared.FieldErrors(h.validator.Struct(form)); len(errs) > 0 {
		h.renderForm(w, r, 0, form, errs, http.StatusBadRequest)
		return
	}
	if _, err := h.service.CreateRole(r.Context(), actorFrom(r), form); err != nil {
		h.formFailure(w, r, 0, form, err)
		return
	}
	h.renderer.RedirectWithFlash(w, r, "/roles", "success", "Uloga je kreirana.")
}

func (h *Handler) showEditRoleForm(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.renderer.Failure(w, r, err)
		return
	}
	h.renderForm(w, r, id, formFrom(role), shared.FormErrors{}, http.StatusOK)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	form, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	if errs := shared.FieldErrors(h.validator.Struct(form)); len(errs) > 0 {
		h.renderForm(w, r, id, form, errs, http.StatusBadRequest)
		return
	}
	if err := h.service.UpdateRole(r.Context(), actorFrom(r), id, form); err != nil {
		h.formFailure(w, r, id, form, err)
		return
	}
	h.renderer.RedirectWithFlash(w, r, "/roles", "success", "Uloga je ažurirana.")
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), actorFrom(r), id); err != nil {
		h.logger.Warn("delete role failed", slog.Int64("id", id), slog.Any("error", err))
		h.renderer.RedirectWithFlash(w, r, "/roles", "error", roleMessage(err))
		return
	}
	h.renderer.RedirectWithFlash(w, r, "/roles", "success", "Uloga je obrisana.")
}

func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) (RoleForm, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return RoleForm{}, false
	}
	level, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("level")))
	if err != nil {
		level = -1
	}
	return RoleForm{
		Name:        strings.TrimSpace(r.PostFormValue("name")),
		Description: strings.TrimSpace(r.PostFormValue("description")),
		Level:       level,
		Permissions: r.PostForm["permissions"],
	}, true
}

func (h *Handler) formFailure(w http.ResponseWriter, r *http.Request, id int64, form RoleForm, err error) {
	switch {
	case errors.Is(err, shared.ErrDuplicate):
		h.renderForm(w, r, id, form, shared.FormErrors{"Name": "Uloga s tim nazivom već postoji."}, http.StatusConflict)
	case errors.Is(err, ErrOutranked), errors.Is(err, ErrSystemRole), errors.Is(err, ErrUnheldPermission):
		h.renderForm(w, r, id, form, shared.FormErrors{"general": roleMessage(err)}, http.StatusForbidden)
	case errors.Is(err, shared.ErrNotFound):
		http.NotFound(w, r)
	default:
		h.renderer.Failure(w, r, err)
	}
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, id int64, form RoleForm, errs shared.FormErrors, status int) {
	title := "Nova uloga"
	if id > 0 {
		title = "Uredi ulogu"
	}
	h.renderer.Render(w, r, "pages/roles/form.html", title, map[string]any{
		"ID":          id,
		"Form":        form,
		"Errors":      errs,
		"Permissions": rbac.All(),
	}, status)
}

func roleMessage(err error) string {
	switch {
	case errors.Is(err, ErrSystemRole):
		return "Sistemska uloga admin se ne može obrisati ni preimenovati."
	case errors.Is(err, ErrOutranked):
		return "Ne možete upravljati ulogom višeg nivoa od vlastitog."
	case errors.Is(err, ErrUnheldPermission):
		return "Ne možete dodijeliti dozvolu koju sami nemate."
	case errors.Is(err, shared.ErrInUse):
		return "Uloga je dodijeljena korisnicima i ne može se obrisati."
	default:
		return shared.UserSafeMessage(err)
	}
}

func actorFrom(r *http.Request) Actor {
	p := gate.PrincipalFromContext(r.Context())
	if p == nil {
		return Actor{}
	}
	return Actor{ID: p.Identity.UserID, Level: rbac.HighestLevel(p.Roles), Permissions: p.Permissions}
}

func roleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}
