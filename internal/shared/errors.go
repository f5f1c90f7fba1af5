package shared

import (
	"errors"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a unique constraint would be violated.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInUse indicates a record is still referenced elsewhere.
	ErrInUse = errors.New("record in use")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
	// ErrInvalidSessionUser occurs when the session carries an unparsable user id.
	ErrInvalidSessionUser = errors.New("invalid session user")
)

// ValidationError carries a message that is safe to show to users.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// UserSafeMessage maps an error to text that can be shown in the UI without
// leaking internals.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Message
	case errors.Is(err, ErrNotFound):
		return "Traženi zapis ne postoji."
	case errors.Is(err, ErrDuplicate):
		return "Zapis s istim podacima već postoji."
	case errors.Is(err, ErrInUse):
		return "Zapis se koristi i ne može se obrisati."
	case errors.Is(err, ErrInvalidCredentials):
		return "Email ili lozinka nisu ispravni."
	default:
		return "Došlo je do greške. Pokušajte ponovo."
	}
}
