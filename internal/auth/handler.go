package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/erp-system/erp/internal/gate"
	"github.com/erp-system/erp/internal/shared"
	"github.com/erp-system/erp/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	renderer       *view.Renderer
	sessionManager *shared.SessionManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, renderer *view.Renderer, sessions *shared.SessionManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		renderer:       renderer,
		sessionManager: sessions,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/mfa", h.showMFA)
	r.Post("/mfa", h.handleMFA)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type loginPageData struct {
	Form   loginForm
	Errors shared.FormErrors
	Next   string
}

type mfaPageData struct {
	Errors shared.FormErrors
	Next   string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.URL.Query().Get("next"))
	if sess := shared.SessionFromContext(r.Context()); sess != nil && sess.User() != "" && sess.Get(SessionKeyAAL) != "" {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	h.renderer.Render(w, r, "pages/auth/login.html", "Prijava", loginPageData{Next: next}, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	next := safeNext(r.PostFormValue("next"))
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	errs := shared.FieldErrors(h.validator.Struct(form))
	status := http.StatusBadRequest

	if len(errs) == 0 {
		user, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
		if err == nil && sess == nil {
			h.logger.Error("session missing during login")
			err = errors.New("session missing")
		}
		if err != nil {
			errs["general"] = shared.UserSafeMessage(shared.ErrInvalidCredentials)
		} else if stepUp, err := h.service.RequiresStepUp(r.Context(), user.ID); err != nil {
			h.logger.Error("check step-up", slog.Int64("user_id", user.ID), slog.Any("error", err))
			errs["general"] = shared.UserSafeMessage(err)
			status = http.StatusInternalServerError
		} else {
			h.signIn(r, sess, user)
			if stepUp {
				http.Redirect(w, r, "/auth/mfa?next="+url.QueryEscape(next), http.StatusSeeOther)
				return
			}
			http.Redirect(w, r, next, http.StatusSeeOther)
			return
		}
	}

	form.Password = ""
	h.renderer.Render(w, r, "pages/auth/login.html", "Prijava", loginPageData{Form: form, Errors: errs, Next: next}, status)
}

// signIn rotates the session and records a password-level assurance.
func (h *Handler) signIn(r *http.Request, sess *shared.Session, user *User) {
	previous := sess.ID
	h.sessionManager.Renew(sess)
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	sess.Set(SessionKeyAAL, string(gate.AAL1))
	sess.Set(SessionKeyAMR, MethodPassword)

	if err := h.service.RemoveSession(r.Context(), previous); err != nil {
		h.logger.Warn("remove previous session", slog.Any("error", err))
	}
	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	h.logger.Info("user signed in", slog.Int64("user_id", user.ID))
}

func (h *Handler) showMFA(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	next := safeNext(r.URL.Query().Get("next"))
	if sess == nil || sess.User() == "" {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	if gate.AAL(sess.Get(SessionKeyAAL)) == gate.AAL2 {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	h.renderer.Render(w, r, "pages/auth/mfa.html", "Potvrda identiteta", mfaPageData{Next: next}, http.StatusOK)
}

func (h *Handler) handleMFA(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	next := safeNext(r.PostFormValue("next"))
	if sess == nil || sess.User() == "" {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	userID, _, err := shared.SessionUserID(r.Context())
	if err != nil {
		h.sessionManager.Destroy(sess)
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}

	err = h.service.VerifyCode(r.Context(), userID, r.PostFormValue("code"))
	switch {
	case err == nil:
		h.ElevateSession(r, sess, userID)
		http.Redirect(w, r, next, http.StatusSeeOther)
	case errors.Is(err, ErrNoFactor):
		http.Redirect(w, r, next, http.StatusSeeOther)
	case errors.Is(err, ErrInvalidCode):
		h.logger.Warn("step-up code rejected", slog.Int64("user_id", userID))
		h.renderer.Render(w, r, "pages/auth/mfa.html", "Potvrda identiteta",
			mfaPageData{Next: next, Errors: shared.FormErrors{"code": "Kod nije ispravan."}}, http.StatusBadRequest)
	default:
		h.renderer.Failure(w, r, err)
	}
}

// ElevateSession marks the session as fully assured after a verified factor
// and moves the session audit row to the rotated id.
func (h *Handler) ElevateSession(r *http.Request, sess *shared.Session, userID int64) {
	previous := sess.ID
	Elevate(h.sessionManager, sess)
	if err := h.service.RemoveSession(r.Context(), previous); err != nil {
		h.logger.Warn("remove previous session", slog.Any("error", err))
	}
	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, userID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
}

// Elevate rotates the session and records a second-factor assurance.
func Elevate(sessions *shared.SessionManager, sess *shared.Session) {
	sessions.Renew(sess)
	sess.Set(SessionKeyAAL, string(gate.AAL2))
	sess.Set(SessionKeyAMR, MethodPassword+" "+MethodOTP)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

// safeNext only accepts local absolute paths.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	if strings.HasPrefix(next, "/auth/") {
		return "/"
	}
	return next
}
