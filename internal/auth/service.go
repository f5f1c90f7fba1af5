package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/erp-system/erp/internal/gate"
	"github.com/erp-system/erp/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	issuer string
	now    func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithIssuer sets the issuer label shown by authenticator apps.
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithClock overrides the time source used for one-time codes.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a new Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, issuer: "ERP System", now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// User loads a user by id.
func (s *Service) User(ctx context.Context, id int64) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// LoadProfile resolves the application profile for the session gate.
func (s *Service) LoadProfile(ctx context.Context, userID int64) (gate.Profile, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return gate.Profile{}, gate.ErrProfileNotFound
		}
		return gate.Profile{}, err
	}
	return gate.Profile{ID: user.ID, Email: user.Email, FullName: user.FullName, IsActive: user.IsActive}, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// PurgeExpiredSessions removes audit rows of sessions that expired before now.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.repo.PurgeSessions(ctx, s.now())
}

// Factors lists the user's factors.
func (s *Service) Factors(ctx context.Context, userID int64) ([]Factor, error) {
	return s.repo.ListFactors(ctx, userID)
}

// RequiresStepUp reports whether the user has a verified second factor.
func (s *Service) RequiresStepUp(ctx context.Context, userID int64) (bool, error) {
	factors, err := s.repo.ListFactors(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, f := range factors {
		if f.Verified() {
			return true, nil
		}
	}
	return false, nil
}

// VerifyCode checks a one-time code against any verified factor of the user.
func (s *Service) VerifyCode(ctx context.Context, userID int64, code string) error {
	factors, err := s.repo.ListFactors(ctx, userID)
	if err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	found := false
	for _, f := range factors {
		if !f.Verified() {
			continue
		}
		found = true
		if s.validate(code, f.Secret) {
			return nil
		}
	}
	if !found {
		return ErrNoFactor
	}
	return ErrInvalidCode
}

// BeginEnrollment creates a pending TOTP factor for the user.
func (s *Service) BeginEnrollment(ctx context.Context, userID int64, account string) (Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: account,
		Period:      totpOpts.Period,
		Digits:      totpOpts.Digits,
		Algorithm:   totpOpts.Algorithm,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("generate totp key: %w", err)
	}
	factor, err := s.repo.CreateFactor(ctx, userID, key.Secret())
	if err != nil {
		return Enrollment{}, err
	}
	return Enrollment{FactorID: factor.ID, Secret: key.Secret(), URL: key.URL()}, nil
}

// ConfirmEnrollment verifies the first code of a pending factor.
func (s *Service) ConfirmEnrollment(ctx context.Context, userID, factorID int64, code string) error {
	factors, err := s.repo.ListFactors(ctx, userID)
	if err != nil {
		return err
	}
	for _, f := range factors {
		if f.ID != factorID {
			continue
		}
		if !s.validate(strings.TrimSpace(code), f.Secret) {
			return ErrInvalidCode
		}
		return s.repo.MarkFactorVerified(ctx, userID, factorID, s.now())
	}
	return shared.ErrNotFound
}

// RemoveFactor deletes one of the user's factors.
func (s *Service) RemoveFactor(ctx context.Context, userID, factorID int64) error {
	return s.repo.DeleteFactor(ctx, userID, factorID)
}

func (s *Service) validate(code, secret string) bool {
	if code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, s.now().UTC(), totpOpts)
	return err == nil && ok
}
