package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/erp-system/erp/internal/gate"
	"github.com/erp-system/erp/internal/navigation"
	"github.com/erp-system/erp/internal/platform/httpx"
)

// APIHandler serves the token endpoints and the resolved-context endpoint.
type APIHandler struct {
	logger    *slog.Logger
	service   *Service
	tokens    *TokenIssuer
	catalog   *navigation.Catalog
	validator *validator.Validate
}

// NewAPIHandler constructs an APIHandler.
func NewAPIHandler(logger *slog.Logger, service *Service, tokens *TokenIssuer, catalog *navigation.Catalog) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if catalog == nil {
		catalog = navigation.Default
	}
	return &APIHandler{logger: logger, service: service, tokens: tokens, catalog: catalog, validator: validator.New()}
}

// MountTokenRoutes registers the unauthenticated token endpoints.
func (h *APIHandler) MountTokenRoutes(r chi.Router) {
	r.Post("/token", h.issueToken)
	r.Post("/token/mfa", h.stepUpToken)
}

type tokenRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type stepUpRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

type tokenResponse struct {
	AccessToken    string    `json:"access_token"`
	TokenType      string    `json:"token_type"`
	ExpiresAt      time.Time `json:"expires_at"`
	AAL            gate.AAL  `json:"aal"`
	StepUpRequired bool      `json:"step_up_required"`
}

func (h *APIHandler) issueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.ProblemWithType(w, http.StatusUnauthorized, "invalid_credentials", "Unauthorized", "invalid email or password")
		return
	}
	stepUp, err := h.service.RequiresStepUp(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("check step-up", slog.Int64("user_id", user.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.respondToken(w, user, gate.AAL1, []string{MethodPassword}, stepUp)
}

func (h *APIHandler) stepUpToken(w http.ResponseWriter, r *http.Request) {
	raw, ok := bearerToken(r)
	if !ok {
		httpx.ProblemWithType(w, http.StatusUnauthorized, "unauthenticated", "Unauthorized", "bearer token required")
		return
	}
	claims, err := h.tokens.Parse(raw)
	if err != nil {
		httpx.ProblemWithType(w, http.StatusUnauthorized, "unauthenticated", "Unauthorized", "invalid or expired token")
		return
	}
	var req stepUpRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	userID, _ := claims.UserID()
	user, err := h.service.User(r.Context(), userID)
	if err != nil || !user.IsActive {
		httpx.ProblemWithType(w, http.StatusUnauthorized, "unauthenticated", "Unauthorized", "unknown user")
		return
	}
	switch err := h.service.VerifyCode(r.Context(), userID, req.Code); {
	case err == nil:
		h.respondToken(w, user, gate.AAL2, []string{MethodPassword, MethodOTP}, false)
	case errors.Is(err, ErrInvalidCode), errors.Is(err, ErrNoFactor):
		httpx.ProblemWithType(w, http.StatusUnauthorized, "invalid_code", "Unauthorized", "one-time code rejected")
	default:
		h.logger.Error("verify step-up code", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *APIHandler) respondToken(w http.ResponseWriter, user *User, aal gate.AAL, amr []string, stepUp bool) {
	token, expires, err := h.tokens.Issue(user, aal, amr)
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tokenResponse{
		AccessToken:    token,
		TokenType:      "Bearer",
		ExpiresAt:      expires.UTC(),
		AAL:            aal,
		StepUpRequired: stepUp,
	})
}

type meUser struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

type meRole struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

type meMenuItem struct {
	Label string `json:"label"`
	Path  string `json:"path"`
	Icon  string `json:"icon,omitempty"`
}

type meMenuGroup struct {
	Label string       `json:"label"`
	Items []meMenuItem `json:"items"`
}

type meResponse struct {
	User        meUser        `json:"user"`
	Roles       []meRole      `json:"roles"`
	Permissions []string      `json:"permissions"`
	State       string        `json:"state"`
	Menu        []meMenuGroup `json:"menu"`
}

// Me returns the resolved principal with its filtered menu.
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := gate.PrincipalFromContext(r.Context())
	if p == nil {
		httpx.ProblemWithType(w, http.StatusUnauthorized, "unauthenticated", "Unauthorized", "sign in required")
		return
	}
	resp := meResponse{
		User:        meUser{ID: p.Profile.ID, Email: p.Profile.Email, FullName: p.Profile.FullName},
		Roles:       make([]meRole, 0, len(p.Roles)),
		Permissions: p.Permissions.Names(),
		State:       p.State.String(),
		Menu:        []meMenuGroup{},
	}
	if resp.Permissions == nil {
		resp.Permissions = []string{}
	}
	for _, role := range p.Roles {
		resp.Roles = append(resp.Roles, meRole{Name: role.Name, Level: role.Level})
	}
	for _, g := range h.catalog.Menu(p.Permissions) {
		group := meMenuGroup{Label: g.Label}
		for _, item := range g.Items {
			group.Items = append(group.Items, meMenuItem{Label: item.Label, Path: item.Path, Icon: item.Icon})
		}
		resp.Menu = append(resp.Menu, group)
	}
	httpx.JSON(w, http.StatusOK, resp)
}
