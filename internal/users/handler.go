package users

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

// Handler manages user management endpoints.
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

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listUsers)
	r.Get("/new", h.showCreateUserForm)
	r.Post("/", h.createUser)
	r.Get("/{id}/edit", h.showEditUserForm)
	r.Post("/{id}", h.updateUser)
	r.Post("/{id}/delete", h.deleteUser)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	filters := shared.ParseListFilters(r)
	users, total, err := h.service.ListUsers(r.Context(), filters)
	if err != nil {
		h.renderer.Failure(w, r, err)
		return
	}
	h.renderer.Render(w, r, "pages/users/list.html", "Korisnici", map[string]any{
		"Users":   users,
		"Filters": filters,
		"Page":    filters.Paginate(total),
	}, http.StatusOK)
}

func (h *Handler) showCreateUserForm(w http.ResponseWriter, r *http.Request) {
	h.renderCreate(w, r, CreateForm{IsActive: true}, shared.FormErrors{}, http.StatusOK)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := CreateForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		FullName: strings.TrimSpace(r.PostFormValue("full_name")),
		Password: r.PostFormValue("password"),
		Confirm:  r.PostFormValue("confirm"),
		IsActive: r.PostFormValue("is_active") != "",
		RoleIDs:  parseIDs(r.PostForm["roles"]),
	}
	if errs := shared.FieldErrors(h.validator.Struct(form)); len(errs) > 0 {
		h.renderCreate(w, r, form, errs, http.StatusBadRequest)
		return
	}
	created, err := h.service.CreateUser(r.Context(), actorFrom(r), form)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrDuplicate):
			h.renderCreate(w, r, form, shared.FormErrors{"Email": "Korisnik s ovom email adresom već postoji."}, http.StatusConflict)
		case errors.Is(err, ErrOutranked), errors.Is(err, ErrUnheldPermission):
			h.renderCreate(w, r, form, shared.FormErrors{"general": userMessage(err)}, http.StatusForbidden)
		default:
			h.renderer.Failure(w, r, err)
		}
		return
	}
	h.logger.Info("user created", slog.Int64("id", created.ID))
	h.renderer.RedirectWithFlash(w, r, "/users", "success", "Korisnik je kreiran.")
}

func (h *Handler) showEditUserForm(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.renderer.Failure(w, r, err)
		return
	}
	form := UpdateForm{FullName: user.FullName, IsActive: user.IsActive, RoleIDs: user.RoleIDs()}
	h.renderEdit(w, r, user, form, shared.FormErrors{}, http.StatusOK)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.renderer.Failure(w, r, err)
		return
	}
	form := UpdateForm{
		FullName: strings.TrimSpace(r.PostFormValue("full_name")),
		Password: r.PostFormValue("password"),
		IsActive: r.PostFormValue("is_active") != "",
		RoleIDs:  parseIDs(r.PostForm["roles"]),
	}
	if errs := shared.FieldErrors(h.validator.Struct(form)); len(errs) > 0 {
		h.renderEdit(w, r, user, form, errs, http.StatusBadRequest)
		return
	}
	if err := h.service.UpdateUser(r.Context(), actorFrom(r), id, form); err != nil {
		switch {
		case errors.Is(err, ErrSelf), errors.Is(err, ErrOutranked), errors.Is(err, ErrUnheldPermission):
			h.renderEdit(w, r, user, form, shared.FormErrors{"general": userMessage(err)}, http.StatusForbidden)
		default:
			h.renderer.Failure(w, r, err)
		}
		return
	}
	h.renderer.RedirectWithFlash(w, r, "/users", "success", "Korisnik je ažuriran.")
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteUser(r.Context(), actorFrom(r), id); err != nil {
		h.logger.Warn("delete user failed", slog.Int64("id", id), slog.Any("error", err))
		h.renderer.RedirectWithFlash(w, r, "/users", "error", userMessage(err))
		return
	}
	h.renderer.RedirectWithFlash(w, r, "/users", "success", "Korisnik je obrisan.")
}

func (h *Handler) renderCreate(w http.ResponseWriter, r *http.Request, form CreateForm, errs shared.FormErrors, status int) {
	roles, err := h.service.RoleOptions(r.Context())
	if err != nil {
		h.renderer.Failure(w, r, err)
		return
	}
	h.renderer.Render(w, r, "pages/users/form.html", "Novi korisnik", map[string]any{
		"ID":     int64(0),
		"Form":   form,
		"Errors": errs,
		"Roles":  roles,
	}, status)
}

func (h *Handler) renderEdit(w http.ResponseWriter, r *http.Request, user User, form UpdateForm, errs shared.FormErrors, status int) {
	roles, err := h.service.RoleOptions(r.Context())
	if err != nil {
		h.renderer.Failure(w, r, err)
		return
	}
	h.renderer.Render(w, r, "pages/users/form.html", "Uredi korisnika", map[string]any{
		"ID":     user.ID,
		"User":   user,
		"Form":   form,
		"Errors": errs,
		"Roles":  roles,
	}, status)
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrSelf):
		return "Ne možete obrisati ni deaktivirati vlastiti račun."
	case errors.Is(err, ErrOutranked):
		return "Ne možete upravljati korisnikom ili ulogom višeg nivoa od vlastitog."
	case errors.Is(err, ErrUnheldPermission):
		return "Ne možete dodijeliti ulogu s dozvolama koje sami nemate."
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

func parseIDs(values []string) []int64 {
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}
