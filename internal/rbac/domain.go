package rbac

// RoleRef is the slice of a role needed to derive effective permissions.
type RoleRef struct {
	ID          int64
	Name        string
	Level       int
	Permissions Set
}

// Effective returns the union of permissions across roles. No roles yields
// the empty set.
func Effective(roles []RoleRef) Set {
	var s Set
	for _, role := range roles {
		s = s.Union(role.Permissions)
	}
	return s
}

// HighestLevel returns the most senior level among roles, or 0.
func HighestLevel(roles []RoleRef) int {
	level := 0
	for i, role := range roles {
		if i == 0 || role.Level > level {
			level = role.Level
		}
	}
	return level
}
