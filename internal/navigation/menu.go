package navigation

import (
	"strings"

	"github.com/erp-system/erp/internal/rbac"
)

// Crumb is one breadcrumb segment.
type Crumb struct {
	Label string
	Path  string
}

// Menu returns the items of the catalog visible to held, preserving declared
// order. Groups with no visible items are omitted.
func (c *Catalog) Menu(held rbac.Set) []Group {
	var out []Group
	for _, g := range c.groups {
		var items []Item
		for _, item := range g.Items {
			if rbac.Authorized(held, item.Required...) {
				items = append(items, cloneItem(item))
			}
		}
		if len(items) > 0 {
			out = append(out, Group{Label: g.Label, Items: items})
		}
	}
	return out
}

// FirstItem returns the first visible menu entry for held.
func (c *Catalog) FirstItem(held rbac.Set) (Item, bool) {
	menu := c.Menu(held)
	if len(menu) == 0 {
		return Item{}, false
	}
	return menu[0].Items[0], true
}

// Label returns the label of the item declared for path, or "".
func (c *Catalog) Label(path string) string {
	if item, ok := c.FindItemByPath(path); ok {
		return item.Label
	}
	return ""
}

// Breadcrumbs resolves every known prefix of path to its label. Unmapped
// segments such as record IDs are skipped.
func (c *Catalog) Breadcrumbs(path string) []Crumb {
	p := normalize(path)
	if p == "/" {
		return nil
	}
	var crumbs []Crumb
	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	prefix := ""
	for _, seg := range segments {
		prefix += "/" + seg
		if item, ok := c.FindItemByPath(prefix); ok {
			crumbs = append(crumbs, Crumb{Label: item.Label, Path: item.Path})
		}
	}
	return crumbs
}
