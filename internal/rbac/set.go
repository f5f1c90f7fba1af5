package rbac

import "math/bits"

// Set is an immutable permission set keyed by registry index.
type Set uint64

// NewSet builds a Set from permission names. Names outside the registry are
// dropped: they cannot satisfy any requirement.
func NewSet(names ...string) Set {
	var s Set
	for _, name := range names {
		if p, ok := Lookup(name); ok {
			s |= bit(p)
		}
	}
	return s
}

// SetOf builds a Set from typed permissions.
func SetOf(perms ...Permission) Set {
	var s Set
	for _, p := range perms {
		s |= bit(p)
	}
	return s
}

// Has reports whether p is in the set.
func (s Set) Has(p Permission) bool {
	b := bit(p)
	return b != 0 && s&b == b
}

// ContainsAll reports whether other is a subset of s.
func (s Set) ContainsAll(other Set) bool {
	return s&other == other
}

// Union returns s ∪ other.
func (s Set) Union(other Set) Set {
	return s | other
}

// Len returns the number of permissions in the set.
func (s Set) Len() int {
	return bits.OnesCount64(uint64(s))
}

// IsEmpty reports whether the set holds no permissions.
func (s Set) IsEmpty() bool {
	return s == 0
}

// Permissions lists the members in registry order.
func (s Set) Permissions() []Permission {
	out := make([]Permission, 0, s.Len())
	for i, entry := range registry {
		if s&(1<<uint(i)) != 0 {
			out = append(out, entry.perm)
		}
	}
	return out
}

// Names lists the members as strings in registry order.
func (s Set) Names() []string {
	perms := s.Permissions()
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

func bit(p Permission) Set {
	i, ok := registryIndex[p]
	if !ok {
		return 0
	}
	return 1 << uint(i)
}
