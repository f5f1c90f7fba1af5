package auth

import (
	"errors"
	"time"
)

// Session keys written on sign-in and step-up.
const (
	SessionKeyAAL = "aal"
	SessionKeyAMR = "amr"
)

// Authentication method references.
const (
	MethodPassword = "pwd"
	MethodOTP      = "otp"
)

var (
	// ErrInvalidCode is returned when a one-time code does not verify.
	ErrInvalidCode = errors.New("auth: invalid one-time code")
	// ErrNoFactor is returned when a step-up is attempted without a verified factor.
	ErrNoFactor = errors.New("auth: no verified factor")
	// ErrInvalidToken is returned for malformed, expired or forged access tokens.
	ErrInvalidToken = errors.New("auth: invalid access token")
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	FullName     string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Factor is an enrolled TOTP second factor. It only counts towards the
// required assurance level once verified.
type Factor struct {
	ID         int64
	UserID     int64
	Secret     string
	VerifiedAt *time.Time
	CreatedAt  time.Time
}

// Verified reports whether the enrolment was confirmed with a valid code.
func (f Factor) Verified() bool {
	return f.VerifiedAt != nil
}

// Enrollment is returned when a new factor is started.
type Enrollment struct {
	FactorID int64
	Secret   string
	URL      string
}
