package rbac

// Authorized reports whether held satisfies every permission in required.
// An empty requirement is always satisfied. A required permission that is not
// in the registry is never satisfied.
func Authorized(held Set, required ...Permission) bool {
	for _, p := range required {
		if !held.Has(p) {
			return false
		}
	}
	return true
}

// AuthorizedAny reports whether held contains at least one of required.
// It is a separate contract from Authorized and is never implied by it.
func AuthorizedAny(held Set, required ...Permission) bool {
	if len(required) == 0 {
		return true
	}
	for _, p := range required {
		if held.Has(p) {
			return true
		}
	}
	return false
}
