package companies

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/erp-system/erp/internal/gate"
	"github.com/erp-system/erp/internal/shared"
	"github.com/erp-system/erp/internal/view"
)

// Handler serves the company screens. Routes are expected behind the gate's
// companies.manage guard.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	renderer  *view.Renderer
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, renderer *view.Renderer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, renderer: renderer, validator: validator.New()}
}

// MountRoutes registers company routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/new", h.Form)
	r.Post("/", h.Create)
	r.Get("/{id}/edit", h.EditForm)
	r.Post("/{id}", h.Update)
	r.Post("/{id}/delete", h.Delete)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filters := shared.ParseListFilters(r)
	companies, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.renderer.Failure(w, r, err)
		return
	}
	h.renderer.Render(w, r, "pages/companies/list.html", "Kompanije", map[string]any{
		"Companies": companies,
		"Filters":   filters,
		"Page":      filters.Paginate(total),
	}, http.StatusOK)
}

func (h *Handler) Form(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, 0, CompanyForm{}, shared.FormErrors{}, http.StatusOK)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	form, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	if errs := shared.FieldErrors(h.validator.Struct(form)); len(errs) > 0 {
		h.renderForm(w, r, 0, form, errs, http.StatusBadRequest)
		return
	}
	created, err := h.service.Create(r.Context(), gate.UserIDFromContext(r.Context()), form.company())
	if err != nil {
		h.formFailure(w, r, 0, form, err)
		return
	}
	h.logger.Info("company created", slog.Int64("id", created.ID), slog.String("code", created.Code))
	h.renderer.RedirectWithFlash(w, r, "/companies", "success", "Kompanija je kreirana.")
}

func (h *Handler) EditForm(w http.ResponseWriter, r *http.Request) {
	id, ok := companyID(w, r)
	if !ok {
		return
	}
	company, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.notFoundOrFailure(w, r, err)
		return
	}
	h.renderForm(w, r, id, formFrom(company), shared.FormErrors{}, http.StatusOK)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := companyID(w, r)
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
	if err := h.service.Update(r.Context(), gate.UserIDFromContext(r.Context()), id, form.company()); err != nil {
		h.formFailure(w, r, id, form, err)
		return
	}
	h.renderer.RedirectWithFlash(w, r, "/companies", "success", "Kompanija je ažurirana.")
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := companyID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), gate.UserIDFromContext(r.Context()), id); err != nil {
		h.logger.Warn("delete company failed", slog.Int64("id", id), slog.Any("error", err))
		h.renderer.RedirectWithFlash(w, r, "/companies", "error", shared.UserSafeMessage(err))
		return
	}
	h.renderer.RedirectWithFlash(w, r, "/companies", "success", "Kompanija je obrisana.")
}

func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) (CompanyForm, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return CompanyForm{}, false
	}
	return CompanyForm{
		Code:    strings.TrimSpace(r.PostFormValue("code")),
		Name:    strings.TrimSpace(r.PostFormValue("name")),
		Address: strings.TrimSpace(r.PostFormValue("address")),
		TaxID:   strings.TrimSpace(r.PostFormValue("tax_id")),
	}, true
}

func (h *Handler) formFailure(w http.ResponseWriter, r *http.Request, id int64, form CompanyForm, err error) {
	switch {
	case errors.Is(err, shared.ErrDuplicate):
		h.renderForm(w, r, id, form, shared.FormErrors{"Code": "Šifra je već u upotrebi."}, http.StatusConflict)
	case errors.Is(err, shared.ErrNotFound):
		http.NotFound(w, r)
	default:
		h.renderer.Failure(w, r, err)
	}
}

func (h *Handler) notFoundOrFailure(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	h.renderer.Failure(w, r, err)
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, id int64, form CompanyForm, errs shared.FormErrors, status int) {
	title := "Nova kompanija"
	if id > 0 {
		title = "Uredi kompaniju"
	}
	h.renderer.Render(w, r, "pages/companies/form.html", title, map[string]any{
		"ID":     id,
		"Form":   form,
		"Errors": errs,
	}, status)
}

func companyID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}
