package profile

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/erp-system/erp/internal/auth"
	"github.com/erp-system/erp/internal/gate"
	"github.com/erp-system/erp/internal/shared"
	"github.com/erp-system/erp/internal/view"
)

// SessionElevator raises the current session to aal2 after a verified code.
type SessionElevator interface {
	ElevateSession(r *http.Request, sess *shared.Session, userID int64)
}

// Handler serves /profile.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	renderer  *view.Renderer
	elevator  SessionElevator
	validator *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service, renderer *view.Renderer, elevator SessionElevator) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, renderer: renderer, elevator: elevator, validator: validator.New()}
}

// MountRoutes registers profile routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showProfile)
	r.Post("/", h.updateName)
	r.Post("/password", h.changePassword)
	r.Get("/security", h.showSecurity)
	r.Post("/security/enroll", h.beginEnrollment)
	r.Post("/security/confirm", h.confirmEnrollment)
	r.Post("/security/{id}/delete", h.removeFactor)
}

type profilePageData struct {
	User           *auth.User
	Name           NameForm
	Errors         shared.FormErrors
	PasswordErrors shared.FormErrors
}

type securityPageData struct {
	Factors    []auth.Factor
	Enrollment *Enrollment
	Errors     shared.FormErrors
}

func (h *Handler) showProfile(w http.ResponseWriter, r *http.Request) {
	h.renderProfile(w, r, nil, shared.FormErrors{}, shared.FormErrors{}, http.StatusOK)
}

func (h *Handler) updateName(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := NameForm{FullName: strings.TrimSpace(r.PostFormValue("full_name"))}
	if errs := shared.FieldErrors(h.validator.Struct(form)); len(errs) > 0 {
		h.renderProfile(w, r, &form, errs, shared.FormErrors{}, http.StatusBadRequest)
		return
	}
	if err := h.service.UpdateName(r.Context(), gate.UserIDFromContext(r.Context()), form); err != nil {
		h.renderer.Failure(w, r, err)
		return
	}
	h.renderer.RedirectWithFlash(w, r, "/profile", "success", "Profil je ažuriran.")
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := PasswordForm{
		Current: r.PostFormValue("current"),
		New:     r.PostFormValue("new"),
		Confirm: r.PostFormValue("confirm"),
	}
	if errs := shared.FieldErrors(h.validator.Struct(form)); len(errs) > 0 {
		h.renderProfile(w, r, nil, shared.FormErrors{}, errs, http.StatusBadRequest)
		return
	}
	userID := gate.UserIDFromContext(r.Context())
	if err := h.service.ChangePassword(r.Context(), userID, form); err != nil {
		if errors.Is(err, ErrWrongPassword) {
			h.logger.Warn("password change rejected", slog.Int64("user_id", userID))
			h.renderProfile(w, r, nil, shared.FormErrors{}, shared.FormErrors{"Current": "Trenutna lozinka nije ispravna."}, http.StatusBadRequest)
			return
		}
		h.renderer.Failure(w, r, err)
		return
	}
	h.renderer.RedirectWithFlash(w, r, "/profile", "success", "Lozinka je promijenjena.")
}

func (h *Handler) renderProfile(w http.ResponseWriter, r *http.Request, name *NameForm, errs, pwErrs shared.FormErrors, status int) {
	user, err := h.service.User(r.Context(), gate.UserIDFromContext(r.Context()))
	if err != nil {
		h.renderer.Failure(w, r, err)
		return
	}
	data := profilePageData{User: user, Name: NameForm{FullName: user.FullName}, Errors: errs, PasswordErrors: pwErrs}
	if name != nil {
		data.Name = *name
	}
	h.renderer.Render(w, r, "pages/profile/index.html", "Profil", data, status)
}

func (h *Handler) showSecurity(w http.ResponseWriter, r *http.Request) {
	h.renderSecurity(w, r, nil, shared.FormErrors{}, http.StatusOK)
}

func (h *Handler) beginEnrollment(w http.ResponseWriter, r *http.Request) {
	enrollment, err := h.service.BeginEnrollment(r.Context(), gate.UserIDFromContext(r.Context()))
	if err != nil {
		h.renderer.Failure(w, r, err)
		return
	}
	h.renderSecurity(w, r, &enrollment, shared.FormErrors{}, http.StatusOK)
}

func (h *Handler) confirmEnrollment(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	userID := gate.UserIDFromContext(r.Context())
	factorID, _ := strconv.ParseInt(r.PostFormValue("factor_id"), 10, 64)
	err := h.service.ConfirmEnrollment(r.Context(), userID, factorID, r.PostFormValue("code"))
	switch {
	case err == nil:
		if sess := shared.SessionFromContext(r.Context()); sess != nil && h.elevator != nil {
			h.elevator.ElevateSession(r, sess, userID)
		}
		h.logger.Info("factor enrolled", slog.Int64("user_id", userID), slog.Int64("factor_id", factorID))
		h.renderer.RedirectWithFlash(w, r, "/profile/security", "success", "Dvofaktorska potvrda je uključena.")
	case errors.Is(err, auth.ErrInvalidCode):
		pending := &Enrollment{Enrollment: auth.Enrollment{
			FactorID: factorID,
			Secret:   r.PostFormValue("secret"),
			URL:      r.PostFormValue("url"),
		}}
		if qr, qerr := qrDataURI(pending.URL); qerr == nil {
			pending.QRCode = qr
		}
		h.renderSecurity(w, r, pending, shared.FormErrors{"code": "Kod nije ispravan."}, http.StatusBadRequest)
	case errors.Is(err, shared.ErrNotFound):
		h.renderer.RedirectWithFlash(w, r, "/profile/security", "error", "Zahtjev za uključivanje je istekao. Pokušajte ponovo.")
	default:
		h.renderer.Failure(w, r, err)
	}
}

func (h *Handler) removeFactor(w http.ResponseWriter, r *http.Request) {
	factorID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || factorID <= 0 {
		http.NotFound(w, r)
		return
	}
	if err := h.service.RemoveFactor(r.Context(), gate.UserIDFromContext(r.Context()), factorID); err != nil {
		h.renderer.RedirectWithFlash(w, r, "/profile/security", "error", shared.UserSafeMessage(err))
		return
	}
	h.renderer.RedirectWithFlash(w, r, "/profile/security", "success", "Faktor je uklonjen.")
}

func (h *Handler) renderSecurity(w http.ResponseWriter, r *http.Request, enrollment *Enrollment, errs shared.FormErrors, status int) {
	factors, err := h.service.Factors(r.Context(), gate.UserIDFromContext(r.Context()))
	if err != nil {
		h.renderer.Failure(w, r, err)
		return
	}
	h.renderer.Render(w, r, "pages/profile/security.html", "Sigurnost", securityPageData{
		Factors:    factors,
		Enrollment: enrollment,
		Errors:     errs,
	}, status)
}
