// Package settings holds installation-wide key-value settings.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/erp-system/erp/internal/platform/cache"
	"github.com/erp-system/erp/internal/shared"
)

// Known keys.
const (
	KeySystemName = "system_name"
)

// DefaultSystemName is shown when no system name is configured.
const DefaultSystemName = "ERP System"

// Service resolves settings through an optional cache.
type Service struct {
	repo   Repository
	cache  *cache.Store
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService constructs a Service. store and audit may be nil.
func NewService(logger *slog.Logger, repo Repository, store *cache.Store, audit shared.AuditRecorder) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if audit == nil {
		audit = shared.NopAudit{}
	}
	return &Service{repo: repo, cache: store, audit: audit, logger: logger}
}

// SystemName returns the configured installation name. An absent or blank row
// yields DefaultSystemName; store failures are returned.
func (s *Service) SystemName(ctx context.Context) (string, error) {
	if v, err := s.cache.Get(ctx, KeySystemName); err == nil {
		return v, nil
	}
	value, err := s.repo.Get(ctx, KeySystemName)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		value = DefaultSystemName
	case err != nil:
		return "", fmt.Errorf("load system name: %w", err)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		value = DefaultSystemName
	}
	if err := s.cache.Set(ctx, KeySystemName, value); err != nil {
		s.logger.Warn("cache system name", slog.Any("error", err))
	}
	return value, nil
}

// Values returns the editable settings for the settings screen.
func (s *Service) Values(ctx context.Context) (Form, error) {
	value, err := s.repo.Get(ctx, KeySystemName)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return Form{}, err
	}
	return Form{SystemName: value}, nil
}

// Update stores the submitted settings and drops cached copies.
func (s *Service) Update(ctx context.Context, actorID int64, form Form) error {
	if err := s.repo.Set(ctx, KeySystemName, strings.TrimSpace(form.SystemName), actorID); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, KeySystemName); err != nil {
		s.logger.Warn("invalidate system name", slog.Any("error", err))
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "settings.updated",
		Entity:   "setting",
		EntityID: KeySystemName,
		Meta:     map[string]any{"value": form.SystemName},
	})
	return nil
}

// Form is the settings screen form.
type Form struct {
	SystemName string `validate:"max=100"`
}
