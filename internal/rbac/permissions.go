package rbac

// Permission is an atomic capability identifier from the closed registry below.
type Permission string

// Registered permissions.
const (
	PermDashboardView   Permission = "dashboard.view"
	PermUsersManage     Permission = "users.manage"
	PermRolesManage     Permission = "roles.manage"
	PermCompaniesManage Permission = "companies.manage"
	PermSettingsView    Permission = "settings.view"
	PermSettingsEdit    Permission = "settings.edit"
	PermProfileEdit     Permission = "profile.edit"
	PermBetonaraView    Permission = "betonara.view"
	PermBetonaraManage  Permission = "betonara.manage"
	PermBetonaraExport  Permission = "betonara.export"
)

type registryEntry struct {
	perm        Permission
	description string
}

// registry order is the enumeration order and the bit index of Set.
var registry = []registryEntry{
	{PermDashboardView, "Pregled kontrolne table"},
	{PermUsersManage, "Upravljanje korisnicima"},
	{PermRolesManage, "Upravljanje ulogama i dozvolama"},
	{PermCompaniesManage, "Upravljanje kompanijama"},
	{PermSettingsView, "Pregled sistemskih postavki"},
	{PermSettingsEdit, "Izmjena sistemskih postavki"},
	{PermProfileEdit, "Uređivanje vlastitog profila"},
	{PermBetonaraView, "Pregled proizvodnje betonare"},
	{PermBetonaraManage, "Unos proizvodnje betonare"},
	{PermBetonaraExport, "Izvoz izvještaja betonare"},
}

var registryIndex = func() map[Permission]int {
	idx := make(map[Permission]int, len(registry))
	for i, entry := range registry {
		idx[entry.perm] = i
	}
	return idx
}()

// All returns every registered permission in registry order.
func All() []Permission {
	out := make([]Permission, len(registry))
	for i, entry := range registry {
		out[i] = entry.perm
	}
	return out
}

// Lookup resolves a permission by its exact registered name.
func Lookup(name string) (Permission, bool) {
	p := Permission(name)
	if _, ok := registryIndex[p]; !ok {
		return "", false
	}
	return p, true
}

// Describe returns the human readable description of p.
func Describe(p Permission) string {
	if i, ok := registryIndex[p]; ok {
		return registry[i].description
	}
	return string(p)
}

// String implements fmt.Stringer.
func (p Permission) String() string {
	return string(p)
}
