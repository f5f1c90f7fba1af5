package navigation

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp-system/erp/internal/rbac"
)

func labels(groups []Group) map[string][]string {
	out := make(map[string][]string)
	for _, g := range groups {
		for _, item := range g.Items {
			out[g.Label] = append(out[g.Label], item.Label)
		}
	}
	return out
}

func TestMenuDashboardOnly(t *testing.T) {
	menu := Default.Menu(rbac.SetOf(rbac.PermDashboardView))
	require.Len(t, menu, 1)
	assert.Equal(t, "Glavni meni", menu[0].Label)
	require.Len(t, menu[0].Items, 1)
	assert.Equal(t, "Kontrolna tabla", menu[0].Items[0].Label)
	assert.Equal(t, "/dashboard", menu[0].Items[0].Path)
}

func TestMenuUsersAndRoles(t *testing.T) {
	menu := Default.Menu(rbac.SetOf(rbac.PermUsersManage, rbac.PermRolesManage))
	got := labels(menu)
	assert.Equal(t, []string{"Korisnici", "Uloge i dozvole"}, got["Administracija"])
	assert.NotContains(t, got["Administracija"], "Postavke")
	assert.NotContains(t, got, "Glavni meni")
}

func TestMenuEmptyPermissions(t *testing.T) {
	assert.Empty(t, Default.Menu(0))
	_, ok := Default.FirstItem(0)
	assert.False(t, ok)
}

func TestMenuItemsWithoutRequirementsAlwaysVisible(t *testing.T) {
	c := NewCatalog([]Group{
		{Label: "Opšte", Items: []Item{{Label: "Pomoć", Path: "/help"}}},
		{Label: "Admin", Items: []Item{{Label: "Korisnici", Path: "/users", Required: []rbac.Permission{rbac.PermUsersManage}}}},
	})
	menu := c.Menu(0)
	require.Len(t, menu, 1)
	assert.Equal(t, "Pomoć", menu[0].Items[0].Label)
}

func TestMenuIsIdempotent(t *testing.T) {
	held := rbac.SetOf(rbac.PermBetonaraView, rbac.PermSettingsView, rbac.PermProfileEdit)
	assert.Equal(t, Default.Menu(held), Default.Menu(held))
}

func TestMenuPreservesDeclaredOrder(t *testing.T) {
	var declared []string
	for _, g := range Default.Groups() {
		for _, item := range g.Items {
			declared = append(declared, g.Label+"|"+item.Path)
		}
	}
	prop := func(mask uint16) bool {
		var perms []rbac.Permission
		for i, p := range rbac.All() {
			if mask&(1<<uint(i)) != 0 {
				perms = append(perms, p)
			}
		}
		j := 0
		for _, g := range Default.Menu(rbac.SetOf(perms...)) {
			for _, item := range g.Items {
				key := g.Label + "|" + item.Path
				for j < len(declared) && declared[j] != key {
					j++
				}
				if j == len(declared) {
					return false
				}
				j++
			}
		}
		return true
	}
	require.NoError(t, quick.Check(prop, nil))
}

func TestGroupsReturnsCopy(t *testing.T) {
	groups := Default.Groups()
	groups[0].Items[0].Label = "changed"
	groups[0].Items[0].Required[0] = rbac.PermUsersManage
	fresh := Default.Groups()
	assert.Equal(t, "Kontrolna tabla", fresh[0].Items[0].Label)
	assert.Equal(t, rbac.PermDashboardView, fresh[0].Items[0].Required[0])
}

func TestFindItemByPath(t *testing.T) {
	item, ok := Default.FindItemByPath("/roles/")
	require.True(t, ok)
	assert.Equal(t, "Uloge i dozvole", item.Label)

	_, ok = Default.FindItemByPath("/users/42")
	assert.False(t, ok)
	assert.Equal(t, "", Default.Label("/nowhere"))
}

func TestItemForRoute(t *testing.T) {
	item, ok := Default.ItemForRoute("/users/7/edit")
	require.True(t, ok)
	assert.Equal(t, "/users", item.Path)

	item, ok = Default.ItemForRoute("/profile/security/enroll")
	require.True(t, ok)
	assert.Equal(t, "/profile/security", item.Path)

	_, ok = Default.ItemForRoute("/auth/login")
	assert.False(t, ok)
	_, ok = Default.ItemForRoute("/")
	assert.False(t, ok)
}

func TestBreadcrumbs(t *testing.T) {
	crumbs := Default.Breadcrumbs("/profile/security")
	assert.Equal(t, []Crumb{{Label: "Profil", Path: "/profile"}, {Label: "Sigurnost", Path: "/profile/security"}}, crumbs)

	crumbs = Default.Breadcrumbs("/companies/12/edit")
	assert.Equal(t, []Crumb{{Label: "Kompanije", Path: "/companies"}}, crumbs)
	assert.Nil(t, Default.Breadcrumbs("/"))
}

func TestEveryItemRequiresRegisteredPermissions(t *testing.T) {
	for _, g := range Default.Groups() {
		for _, item := range g.Items {
			require.NotEmpty(t, item.Required, item.Path)
			for _, p := range item.Required {
				_, ok := rbac.Lookup(string(p))
				assert.True(t, ok, "%s requires unregistered %s", item.Path, p)
			}
		}
	}
}
