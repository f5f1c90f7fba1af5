package roles

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp-system/erp/internal/gate"
	"github.com/erp-system/erp/internal/rbac"
	"github.com/erp-system/erp/internal/shared"
	"github.com/erp-system/erp/internal/view"
)

type memRepo struct {
	roles   []Role
	deleted []int64
}

func (m *memRepo) ListRoles(ctx context.Context) ([]Role, error) { return m.roles, nil }
func (m *memRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	for _, r := range m.roles {
		if r.ID == id {
			return r, nil
		}
	}
	return Role{}, shared.ErrNotFound
}
func (m *memRepo) CreateRole(ctx context.Context, role Role) (Role, error) {
	for _, r := range m.roles {
		if r.Name == role.Name {
			return Role{}, shared.ErrDuplicate
		}
	}
	role.ID = int64(len(m.roles) + 1)
	m.roles = append(m.roles, role)
	return role, nil
}
func (m *memRepo) UpdateRole(ctx context.Context, role Role) error {
	for i := range m.roles {
		if m.roles[i].ID == role.ID {
			m.roles[i] = role
			return nil
		}
	}
	return shared.ErrNotFound
}
func (m *memRepo) DeleteRole(ctx context.Context, id int64) error {
	m.deleted = append(m.deleted, id)
	return nil
}
func (m *memRepo) CountRoles(ctx context.Context) (int, error) { return len(m.roles), nil }

func seeded() *memRepo {
	return &memRepo{roles: []Role{
		{ID: 1, Name: AdminRoleName, Level: 100, Permissions: rbac.SetOf(rbac.All()...)},
		{ID: 2, Name: "operater", Level: 10, Permissions: rbac.SetOf(rbac.PermBetonaraView)},
		{ID: 3, Name: "direktor", Level: 80, UserCount: 2},
	}}
}

var everything = rbac.SetOf(rbac.All()...)

func TestAdminRoleCannotBeDeleted(t *testing.T) {
	repo := seeded()
	svc := NewService(repo, nil)
	err := svc.DeleteRole(context.Background(), Actor{ID: 1, Level: 100}, 1)
	assert.ErrorIs(t, err, ErrSystemRole)
	assert.Empty(t, repo.deleted)
}

func TestAdminRoleKeepsEveryPermission(t *testing.T) {
	repo := seeded()
	svc := NewService(repo, nil)
	err := svc.UpdateRole(context.Background(), Actor{Level: 100, Permissions: everything}, 1, RoleForm{Name: "admin", Level: 100, Permissions: []string{"users.manage"}})
	require.NoError(t, err)
	assert.Equal(t, len(rbac.All()), repo.roles[0].Permissions.Len())

	err = svc.UpdateRole(context.Background(), Actor{Level: 100, Permissions: everything}, 1, RoleForm{Name: "superuser", Level: 100})
	assert.ErrorIs(t, err, ErrSystemRole)
}

func TestRoleHierarchyIsEnforced(t *testing.T) {
	svc := NewService(seeded(), nil)
	ctx := context.Background()
	_, err := svc.CreateRole(ctx, Actor{Level: 50}, RoleForm{Name: "šef", Level: 60})
	assert.ErrorIs(t, err, ErrOutranked)
	assert.ErrorIs(t, svc.UpdateRole(ctx, Actor{Level: 50}, 3, RoleForm{Name: "direktor", Level: 40}), ErrOutranked)
	assert.ErrorIs(t, svc.DeleteRole(ctx, Actor{Level: 50}, 3), ErrOutranked)
}

func TestRoleGrantsLimitedToHeldPermissions(t *testing.T) {
	repo := seeded()
	svc := NewService(repo, nil)
	ctx := context.Background()
	actor := Actor{ID: 7, Level: 10, Permissions: rbac.SetOf(rbac.PermRolesManage, rbac.PermBetonaraView)}

	err := svc.UpdateRole(ctx, actor, 2, RoleForm{
		Name: "operater", Level: 10, Permissions: []string{"roles.manage", "users.manage", "settings.edit"},
	})
	assert.ErrorIs(t, err, ErrUnheldPermission)
	assert.Equal(t, rbac.SetOf(rbac.PermBetonaraView), repo.roles[1].Permissions)

	_, err = svc.CreateRole(ctx, actor, RoleForm{Name: "pomoćnik", Level: 5, Permissions: []string{"companies.manage"}})
	assert.ErrorIs(t, err, ErrUnheldPermission)
	assert.Len(t, repo.roles, 3)

	require.NoError(t, svc.UpdateRole(ctx, actor, 2, RoleForm{
		Name: "operater", Level: 10, Permissions: []string{"betonara.view", "roles.manage"},
	}))
	assert.Equal(t, rbac.SetOf(rbac.PermBetonaraView, rbac.PermRolesManage), repo.roles[1].Permissions)

	err = svc.UpdateRole(ctx, Actor{Level: 100, Permissions: rbac.SetOf(rbac.PermRolesManage)}, 1, RoleForm{Name: "admin", Level: 100})
	assert.ErrorIs(t, err, ErrUnheldPermission)
}

func TestRolesEscalationRejectedViaForm(t *testing.T) {
	repo := seeded()
	router := rolesRouterWith(t, repo, 10, rbac.SetOf(rbac.PermRolesManage))
	form := url.Values{"name": {"operater"}, "level": {"10"}, "permissions": {"roles.manage", "users.manage"}}
	req := httptest.NewRequest(http.MethodPost, "/roles/2", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "Ne možete dodijeliti dozvolu koju sami nemate.")
	assert.False(t, repo.roles[1].Permissions.Has(rbac.PermUsersManage))
}

func TestDeleteAssignedRoleIsInUse(t *testing.T) {
	svc := NewService(seeded(), nil)
	assert.ErrorIs(t, svc.DeleteRole(context.Background(), Actor{Level: 100}, 3), shared.ErrInUse)
}

func TestCreateRoleDropsUnknownPermissions(t *testing.T) {
	repo := seeded()
	svc := NewService(repo, nil)
	role, err := svc.CreateRole(context.Background(), Actor{Level: 100, Permissions: everything}, RoleForm{
		Name: " Dispečer ", Level: 20, Permissions: []string{"betonara.view", "betonara.manage", "reports.delete"},
	})
	require.NoError(t, err)
	assert.Equal(t, "dispečer", role.Name)
	assert.Equal(t, []string{"betonara.view", "betonara.manage"}, role.Permissions.Names())
}

func rolesRouter(t *testing.T, repo *memRepo, level int) http.Handler {
	t.Helper()
	return rolesRouterWith(t, repo, level, everything)
}

func rolesRouterWith(t *testing.T, repo *memRepo, level int, held rbac.Set) http.Handler {
	t.Helper()
	engine, err := view.NewEngine()
	require.NoError(t, err)
	h := NewHandler(nil, NewService(repo, nil), view.NewRenderer(nil, engine, nil, nil, nil))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := &gate.Principal{
				Identity:    gate.Identity{UserID: 1},
				Roles:       []rbac.RoleRef{{Name: "x", Level: level}},
				Permissions: held,
			}
			next.ServeHTTP(w, req.WithContext(gate.ContextWithPrincipal(req.Context(), p)))
		})
	})
	r.Route("/roles", h.MountRoutes)
	return r
}

func TestRolesListAndForm(t *testing.T) {
	router := rolesRouter(t, seeded(), 100)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/roles", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Less(t, strings.Index(body, "admin"), strings.Index(body, "operater"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/roles/2/edit", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), rbac.Describe(rbac.PermBetonaraExport))
	assert.Contains(t, rr.Body.String(), `value="betonara.view" checked`)
}

func TestRolesCreateViaForm(t *testing.T) {
	repo := seeded()
	router := rolesRouter(t, repo, 100)
	form := url.Values{"name": {"dispečer"}, "level": {"20"}, "permissions": {"betonara.view", "betonara.manage"}}
	req := httptest.NewRequest(http.MethodPost, "/roles", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	require.Len(t, repo.roles, 4)
	assert.True(t, repo.roles[3].Permissions.ContainsAll(rbac.SetOf(rbac.PermBetonaraView, rbac.PermBetonaraManage)))
}
