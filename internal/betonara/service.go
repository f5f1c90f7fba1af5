package betonara

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/erp-system/erp/internal/companies"
	"github.com/erp-system/erp/internal/shared"
)

const idempotencyModule = "betonara.entry"

// CompanyLister supplies the company select box.
type CompanyLister interface {
	Options(ctx context.Context) ([]companies.Company, error)
}

// RefreshEnqueuer schedules a refresh of the daily totals view.
type RefreshEnqueuer interface {
	EnqueueRefreshTotals(ctx context.Context, entryID int64) error
}

// IdempotencyGuard claims one-time form keys.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Config wires a Service. Jobs, Idempotency and Audit are optional.
type Config struct {
	Repo        Repository
	Companies   CompanyLister
	Jobs        RefreshEnqueuer
	Idempotency IdempotencyGuard
	Audit       shared.AuditRecorder
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Service implements production and report use cases.
type Service struct {
	repo        Repository
	companies   CompanyLister
	jobs        RefreshEnqueuer
	idempotency IdempotencyGuard
	audit       shared.AuditRecorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds the service.
func NewService(cfg Config) *Service {
	s := &Service{
		repo:        cfg.Repo,
		companies:   cfg.Companies,
		jobs:        cfg.Jobs,
		idempotency: cfg.Idempotency,
		audit:       cfg.Audit,
		logger:      cfg.Logger,
		now:         cfg.Clock,
	}
	if s.audit == nil {
		s.audit = shared.NopAudit{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Now is the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

// Companies lists companies for the entry form and filters.
func (s *Service) Companies(ctx context.Context) ([]companies.Company, error) {
	if s.companies == nil {
		return nil, nil
	}
	return s.companies.Options(ctx)
}

// Plants lists plant names seen so far.
func (s *Service) Plants(ctx context.Context) ([]string, error) {
	return s.repo.Plants(ctx)
}

// ListEntries returns a page of entries inside the filter range.
func (s *Service) ListEntries(ctx context.Context, filter ReportFilter, page shared.ListFilters) ([]Entry, int, error) {
	return s.repo.ListEntries(ctx, filter, page)
}

// RecordEntry stores a production entry and schedules a totals refresh. A
// repeated form key yields ErrAlreadyRecorded.
func (s *Service) RecordEntry(ctx context.Context, actorID int64, form EntryForm) (Entry, error) {
	entry, err := form.entry()
	if err != nil {
		return Entry{}, err
	}
	entry.CreatedBy = actorID

	if form.Key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, form.Key, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Entry{}, ErrAlreadyRecorded
			}
			return Entry{}, err
		}
	}

	created, err := s.repo.CreateEntry(ctx, entry)
	if err != nil {
		if form.Key != "" && s.idempotency != nil {
			if derr := s.idempotency.Delete(ctx, form.Key); derr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", derr))
			}
		}
		return Entry{}, err
	}

	if s.jobs != nil {
		if err := s.jobs.EnqueueRefreshTotals(ctx, created.ID); err != nil {
			s.logger.Warn("enqueue totals refresh", slog.Int64("entry_id", created.ID), slog.Any("error", err))
		}
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "betonara.entry_recorded",
		Entity:   "betonara_entry",
		EntityID: strconv.FormatInt(created.ID, 10),
		Meta: map[string]any{
			"company_id": created.CompanyID,
			"plant":      created.Plant,
			"volume_m3":  created.VolumeM3,
		},
	})
	return created, nil
}

// Report loads daily and per-class totals concurrently.
func (s *Service) Report(ctx context.Context, filter ReportFilter) (Report, error) {
	report := Report{Filter: filter}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		daily, err := s.repo.DailyTotals(gctx, filter)
		report.Daily = daily
		return err
	})
	g.Go(func() error {
		classes, err := s.repo.ClassTotals(gctx, filter)
		report.Classes = classes
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	for _, d := range report.Daily {
		report.TotalVolume += d.VolumeM3
		report.TotalEntries += d.Entries
	}
	return report, nil
}

// MonthSummary returns the current month's volume and the latest entries.
func (s *Service) MonthSummary(ctx context.Context, latest int) (MonthSummary, error) {
	now := s.now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)
	summary := MonthSummary{Month: from}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.repo.VolumeBetween(gctx, from, to)
		summary.VolumeM3 = v
		return err
	})
	g.Go(func() error {
		entries, err := s.repo.LatestEntries(gctx, latest)
		summary.Latest = entries
		return err
	})
	if err := g.Wait(); err != nil {
		return MonthSummary{}, err
	}
	return summary, nil
}

// RefreshTotals rebuilds the daily totals view.
func (s *Service) RefreshTotals(ctx context.Context) error {
	return s.repo.RefreshTotals(ctx)
}
