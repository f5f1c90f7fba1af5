// Package navigation holds the static menu catalog and its permission filtering.
package navigation

import (
	"strings"

	"github.com/erp-system/erp/internal/rbac"
)

// Item is a single menu entry.
type Item struct {
	Label    string
	Path     string
	Icon     string
	Required []rbac.Permission
}

// Group is a labelled, ordered run of items.
type Group struct {
	Label string
	Items []Item
}

// Catalog is an immutable navigation tree.
type Catalog struct {
	groups []Group
	byPath map[string]Item
}

// NewCatalog builds a catalog from declared groups. The input is copied.
func NewCatalog(groups []Group) *Catalog {
	c := &Catalog{groups: cloneGroups(groups), byPath: make(map[string]Item)}
	for _, g := range c.groups {
		for _, item := range g.Items {
			c.byPath[normalize(item.Path)] = item
		}
	}
	return c
}

// Default is the application menu.
var Default = NewCatalog([]Group{
	{
		Label: "Glavni meni",
		Items: []Item{
			{Label: "Kontrolna tabla", Path: "/dashboard", Icon: "layout-dashboard", Required: []rbac.Permission{rbac.PermDashboardView}},
		},
	},
	{
		Label: "Betonara",
		Items: []Item{
			{Label: "Proizvodnja", Path: "/betonara/production", Icon: "factory", Required: []rbac.Permission{rbac.PermBetonaraView}},
			{Label: "Izvještaji", Path: "/betonara/reports", Icon: "file-bar-chart", Required: []rbac.Permission{rbac.PermBetonaraView}},
		},
	},
	{
		Label: "Administracija",
		Items: []Item{
			{Label: "Kompanije", Path: "/companies", Icon: "building-2", Required: []rbac.Permission{rbac.PermCompaniesManage}},
			{Label: "Korisnici", Path: "/users", Icon: "users", Required: []rbac.Permission{rbac.PermUsersManage}},
			{Label: "Uloge i dozvole", Path: "/roles", Icon: "shield-check", Required: []rbac.Permission{rbac.PermRolesManage}},
			{Label: "Postavke", Path: "/settings", Icon: "settings", Required: []rbac.Permission{rbac.PermSettingsView}},
		},
	},
	{
		Label: "Moj račun",
		Items: []Item{
			{Label: "Profil", Path: "/profile", Icon: "user", Required: []rbac.Permission{rbac.PermProfileEdit}},
			{Label: "Sigurnost", Path: "/profile/security", Icon: "key-round", Required: []rbac.Permission{rbac.PermProfileEdit}},
		},
	},
})

// Groups returns the declared groups in order.
func (c *Catalog) Groups() []Group {
	return cloneGroups(c.groups)
}

// FindItemByPath returns the item declared for exactly path.
func (c *Catalog) FindItemByPath(path string) (Item, bool) {
	item, ok := c.byPath[normalize(path)]
	if !ok {
		return Item{}, false
	}
	return cloneItem(item), true
}

// ItemForRoute returns the item owning path by longest segment prefix, so
// /users/7/edit resolves to /users.
func (c *Catalog) ItemForRoute(path string) (Item, bool) {
	p := normalize(path)
	for {
		if item, ok := c.byPath[p]; ok {
			return cloneItem(item), true
		}
		i := strings.LastIndex(p, "/")
		if i <= 0 {
			return Item{}, false
		}
		p = p[:i]
	}
}

func normalize(path string) string {
	path = strings.TrimSpace(path)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}

func cloneGroups(groups []Group) []Group {
	out := make([]Group, len(groups))
	for i, g := range groups {
		items := make([]Item, len(g.Items))
		for j, item := range g.Items {
			items[j] = cloneItem(item)
		}
		out[i] = Group{Label: g.Label, Items: items}
	}
	return out
}

func cloneItem(item Item) Item {
	if item.Required != nil {
		item.Required = append([]rbac.Permission(nil), item.Required...)
	}
	return item
}
