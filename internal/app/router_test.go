package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp-system/erp/internal/dashboard"
	"github.com/erp-system/erp/internal/gate"
	"github.com/erp-system/erp/internal/navigation"
	"github.com/erp-system/erp/internal/rbac"
	"github.com/erp-system/erp/internal/shared"
	"github.com/erp-system/erp/internal/view"
)

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type anonymous struct{}

func (anonymous) CurrentUser(r *http.Request) (gate.Identity, bool, error) {
	return gate.Identity{}, false, nil
}

func (anonymous) AssuranceLevels(r *http.Request, id gate.Identity) (gate.Levels, error) {
	return gate.Levels{}, nil
}

func testParams(t *testing.T) RouterParams {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	engine, err := view.NewEngine()
	require.NoError(t, err)
	renderer := view.NewRenderer(nil, engine, nil, nil, nil)
	return RouterParams{
		Logger:         slogDiscard(),
		Config:         &Config{RateLimit: 1000, AppRequestTimeout: time.Second},
		Renderer:       renderer,
		SessionManager: shared.NewSessionManager(client, "erp_session", "secret", time.Hour, false),
		CSRFManager:    shared.NewCSRFManager("csrf"),
		Gate:           gate.New(gate.Config{Identity: anonymous{}, Responder: renderer}),
	}
}

func TestHealthAndStaticArePublic(t *testing.T) {
	router := NewRouter(testParams(t))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/css/app.css", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "public, max-age=3600", rr.Header().Get("Cache-Control"))
	assert.Contains(t, rr.Header().Get("Content-Security-Policy"), "img-src 'self' data:")
}

func TestProtectedRoutesRedirectToSignIn(t *testing.T) {
	params := testParams(t)
	params.DashboardHandler = dashboard.NewHandler(nil, dashboard.NewService(dashboard.Sources{}), params.Renderer)
	router := NewRouter(params)
	for path, location := range map[string]string{
		"/":              "/auth/login",
		"/dashboard":     "/auth/login?next=%2Fdashboard",
		"/dashboard?x=1": "/auth/login?next=%2Fdashboard%3Fx%3D1",
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusSeeOther, rr.Code, path)
		assert.Equal(t, location, rr.Header().Get("Location"), path)
	}
}

func TestReadinessReportsFailingChecks(t *testing.T) {
	params := testParams(t)
	params.Readiness = map[string]ReadinessCheck{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
	}
	rr := httptest.NewRecorder()
	NewRouter(params).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "unavailable"}, body)
}

func TestCSRFExemptsAPIOnly(t *testing.T) {
	params := testParams(t)
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	stack := MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
	})
	for i := len(stack) - 1; i >= 0; i-- {
		handler = stack[i](handler)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNoContent, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/companies", strings.NewReader("name=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHomeRedirectsToFirstPermittedScreen(t *testing.T) {
	params := testParams(t)
	home := homeHandler(params.Renderer, navigation.Default)

	withPerms := func(perms ...rbac.Permission) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		p := &gate.Principal{Identity: gate.Identity{UserID: 1}, Permissions: rbac.SetOf(perms...)}
		return req.WithContext(gate.ContextWithPrincipal(req.Context(), p))
	}

	rr := httptest.NewRecorder()
	home(rr, withPerms(rbac.PermBetonaraView, rbac.PermCompaniesManage))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/betonara/production", rr.Header().Get("Location"))

	rr = httptest.NewRecorder()
	home(rr, withPerms())
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Obratite se administratoru")
}
