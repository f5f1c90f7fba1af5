package gate

import "errors"

var (
	// ErrUnauthenticated means no valid identity could be resolved.
	ErrUnauthenticated = errors.New("gate: unauthenticated")
	// ErrInsufficientAssurance means a step-up challenge is outstanding.
	ErrInsufficientAssurance = errors.New("gate: insufficient assurance")
	// ErrInsufficientPermission means the principal lacks a required permission.
	ErrInsufficientPermission = errors.New("gate: insufficient permission")
	// ErrUpstream wraps identity provider or data store failures.
	ErrUpstream = errors.New("gate: upstream failure")
	// ErrProfileNotFound is returned by profile loaders for unknown users.
	ErrProfileNotFound = errors.New("gate: profile not found")
)
