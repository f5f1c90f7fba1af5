// Package profile serves the signed-in user's own account pages: name,
// password and second-factor enrolment.
package profile

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"image/png"
	"strconv"
	"strings"

	"github.com/pquerna/otp"
	"golang.org/x/crypto/bcrypt"

	"github.com/erp-system/erp/internal/auth"
	"github.com/erp-system/erp/internal/shared"
)

// ErrWrongPassword is returned when the current password does not match.
var ErrWrongPassword = errors.New("profile: current password mismatch")

// Accounts is the identity backend the profile pages read from.
type Accounts interface {
	User(ctx context.Context, id int64) (*auth.User, error)
	Factors(ctx context.Context, userID int64) ([]auth.Factor, error)
	BeginEnrollment(ctx context.Context, userID int64, account string) (auth.Enrollment, error)
	ConfirmEnrollment(ctx context.Context, userID, factorID int64, code string) error
	RemoveFactor(ctx context.Context, userID, factorID int64) error
}

// Service implements profile use cases.
type Service struct {
	repo     Repository
	accounts Accounts
	audit    shared.AuditRecorder
	hashCost int
}

// NewService builds the service.
func NewService(repo Repository, accounts Accounts, audit shared.AuditRecorder) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	return &Service{repo: repo, accounts: accounts, audit: audit, hashCost: bcrypt.DefaultCost}
}

// NameForm edits the display name.
type NameForm struct {
	FullName string `validate:"required,max=150"`
}

// PasswordForm changes the password.
type PasswordForm struct {
	Current string `validate:"required"`
	New     string `validate:"required,min=8,max=72,nefield=Current"`
	Confirm string `validate:"eqfield=New"`
}

// User loads the account.
func (s *Service) User(ctx context.Context, userID int64) (*auth.User, error) {
	return s.accounts.User(ctx, userID)
}

// UpdateName stores a new display name.
func (s *Service) UpdateName(ctx context.Context, userID int64, form NameForm) error {
	if err := s.repo.UpdateName(ctx, userID, strings.TrimSpace(form.FullName)); err != nil {
		return err
	}
	s.record(ctx, userID, "profile.updated", nil)
	return nil
}

// ChangePassword verifies the current password before storing the new hash.
func (s *Service) ChangePassword(ctx context.Context, userID int64, form PasswordForm) error {
	user, err := s.accounts.User(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(form.Current)) != nil {
		return ErrWrongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(form.New), s.hashCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return err
	}
	s.record(ctx, userID, "profile.password_changed", nil)
	return nil
}

// Factors lists the user's second factors.
func (s *Service) Factors(ctx context.Context, userID int64) ([]auth.Factor, error) {
	return s.accounts.Factors(ctx, userID)
}

// Enrollment is a pending factor with its QR code rendered as a data URI.
type Enrollment struct {
	auth.Enrollment
	QRCode template.URL
}

// BeginEnrollment starts a TOTP enrolment labelled with the user's email.
func (s *Service) BeginEnrollment(ctx context.Context, userID int64) (Enrollment, error) {
	user, err := s.accounts.User(ctx, userID)
	if err != nil {
		return Enrollment{}, err
	}
	enrollment, err := s.accounts.BeginEnrollment(ctx, userID, user.Email)
	if err != nil {
		return Enrollment{}, err
	}
	qr, err := qrDataURI(enrollment.URL)
	if err != nil {
		return Enrollment{}, err
	}
	return Enrollment{Enrollment: enrollment, QRCode: qr}, nil
}

// ConfirmEnrollment verifies the first code of a pending factor.
func (s *Service) ConfirmEnrollment(ctx context.Context, userID, factorID int64, code string) error {
	if err := s.accounts.ConfirmEnrollment(ctx, userID, factorID, code); err != nil {
		return err
	}
	s.record(ctx, userID, "mfa.enrolled", map[string]any{"factor_id": factorID})
	return nil
}

// RemoveFactor deletes a factor.
func (s *Service) RemoveFactor(ctx context.Context, userID, factorID int64) error {
	if err := s.accounts.RemoveFactor(ctx, userID, factorID); err != nil {
		return err
	}
	s.record(ctx, userID, "mfa.removed", map[string]any{"factor_id": factorID})
	return nil
}

func (s *Service) record(ctx context.Context, userID int64, action string, meta map[string]any) {
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  userID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     meta,
	})
}

func qrDataURI(url string) (template.URL, error) {
	key, err := otp.NewKeyFromURL(url)
	if err != nil {
		return "", fmt.Errorf("parse otpauth url: %w", err)
	}
	img, err := key.Image(200, 200)
	if err != nil {
		return "", fmt.Errorf("render qr: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())), nil
}
