package view

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp-system/erp/internal/gate"
	"github.com/erp-system/erp/internal/rbac"
	"github.com/erp-system/erp/internal/shared"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err, "Templates should parse without error")
	for _, name := range []string{
		"pages/auth/login.html",
		"pages/auth/mfa.html",
		"pages/home.html",
		"pages/forbidden.html",
		"pages/error.html",
		"pages/dashboard/index.html",
		"pages/companies/list.html",
		"pages/users/form.html",
		"pages/roles/form.html",
		"pages/settings/index.html",
		"pages/profile/security.html",
		"pages/betonara/production.html",
		"pages/betonara/reports.html",
	} {
		assert.True(t, engine.Has(name), name)
	}
	assert.False(t, engine.Has("pages/missing.html"))
}

type fixedName string

func (n fixedName) SystemName(ctx context.Context) (string, error) { return string(n), nil }

func withPrincipal(req *http.Request, perms ...rbac.Permission) *http.Request {
	p := &gate.Principal{
		Identity:    gate.Identity{UserID: 3},
		Profile:     gate.Profile{ID: 3, Email: "ana@firma.ba", FullName: "Ana Anić", IsActive: true},
		Permissions: rbac.SetOf(perms...),
	}
	return req.WithContext(gate.ContextWithPrincipal(req.Context(), p))
}

func TestPageBuildsMenuAndBreadcrumbs(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	renderer := NewRenderer(nil, engine, nil, nil, fixedName("Betonara Kakanj"))

	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/users/4/edit", nil), rbac.PermUsersManage, rbac.PermDashboardView)
	td, err := renderer.Page(req, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "Betonara Kakanj", td.SystemName)
	assert.Equal(t, "/users/4/edit", td.CurrentPath)
	require.Len(t, td.Menu, 2)
	assert.Equal(t, "Glavni meni", td.Menu[0].Label)
	require.Len(t, td.Breadcrumbs, 1)
	assert.Equal(t, "/users", td.Breadcrumbs[0].Path)

	td, err = renderer.Page(httptest.NewRequest(http.MethodGet, "/roles", nil), "", nil)
	require.NoError(t, err)
	assert.Equal(t, "Uloge i dozvole", td.Title)
	assert.Empty(t, td.Menu)
}

func TestPagePopsFlashOnce(t *testing.T) {
	renderer := NewRenderer(nil, nil, nil, nil, nil)
	sess := &shared.Session{ID: "s1"}
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Sačuvano"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	td, err := renderer.Page(req, "Početna", nil)
	require.NoError(t, err)
	require.NotNil(t, td.Flash)
	assert.Equal(t, "Sačuvano", td.Flash.Message)
	td, _ = renderer.Page(req, "Početna", nil)
	assert.Nil(t, td.Flash)
}

type failingName struct{}

func (failingName) SystemName(ctx context.Context) (string, error) {
	return "", errors.New("settings store unavailable")
}

func TestRenderFailsWhenSystemNameUnavailable(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	renderer := NewRenderer(nil, engine, nil, nil, failingName{})
	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/dashboard", nil), rbac.PermDashboardView)

	_, err = renderer.Page(req, "", nil)
	assert.Error(t, err)

	rr := httptest.NewRecorder()
	renderer.Render(rr, req, "pages/home.html", "Početna", nil, http.StatusOK)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "Pokušajte ponovo.")
	assert.NotContains(t, rr.Body.String(), "settings store unavailable")
}

func TestForbiddenAndFailurePages(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	renderer := NewRenderer(nil, engine, nil, nil, nil)
	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/settings", nil), rbac.PermDashboardView)

	rr := httptest.NewRecorder()
	renderer.Forbidden(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "Nemate dozvolu")
	assert.Contains(t, rr.Body.String(), "Kontrolna tabla")

	rr = httptest.NewRecorder()
	renderer.Failure(rr, req, errors.New("pq: password authentication failed"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "pq:")
	assert.Contains(t, rr.Body.String(), "Pokušajte ponovo.")
}

func TestRedirectWithFlashQueuesMessage(t *testing.T) {
	renderer := NewRenderer(nil, nil, nil, nil, nil)
	sess := &shared.Session{ID: "s1"}
	req := httptest.NewRequest(http.MethodPost, "/companies", nil)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	rr := httptest.NewRecorder()
	renderer.RedirectWithFlash(rr, req, "/companies", "success", "Kompanija je kreirana.")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/companies", rr.Header().Get("Location"))
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "success", flash.Kind)
}

func TestFuncMapHelpers(t *testing.T) {
	funcs := FuncMap()
	dict := funcs["dict"].(func(...any) (map[string]any, error))
	m, err := dict("Action", "/x", "N", 2)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Action": "/x", "N": 2}, m)
	_, err = dict("odd")
	assert.Error(t, err)

	active := funcs["active"].(func(string, string) bool)
	assert.True(t, active("/profile/security", "/profile"))
	assert.False(t, active("/profiles", "/profile"))

	can := funcs["can"].(func(*gate.Principal, string) bool)
	assert.False(t, can(nil, "users.manage"))
	assert.False(t, can(&gate.Principal{Permissions: rbac.SetOf(rbac.PermUsersManage)}, "nope"))
	assert.True(t, can(&gate.Principal{Permissions: rbac.SetOf(rbac.PermUsersManage)}, "users.manage"))
}
