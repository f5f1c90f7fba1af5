package companies

import (
	"context"
	"strconv"
	"strings"

	"github.com/erp-system/erp/internal/shared"
)

// Service applies company rules and records audit entries.
type Service struct {
	repo  Repository
	audit shared.AuditRecorder
}

// NewService constructs a Service. audit may be nil.
func NewService(repo Repository, audit shared.AuditRecorder) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	return &Service{repo: repo, audit: audit}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Company, int, error) {
	return s.repo.List(ctx, filters)
}

// Options returns all companies ordered by name.
func (s *Service) Options(ctx context.Context) ([]Company, error) {
	return s.repo.Options(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (Company, error) {
	if id <= 0 {
		return Company{}, shared.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// Count returns the number of companies.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func (s *Service) Create(ctx context.Context, actorID int64, company Company) (Company, error) {
	company = normalize(company)
	created, err := s.repo.Create(ctx, company)
	if err != nil {
		return Company{}, err
	}
	s.record(ctx, actorID, "company.created", created.ID, map[string]any{"code": created.Code})
	return created, nil
}

func (s *Service) Update(ctx context.Context, actorID, id int64, company Company) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	if err := s.repo.Update(ctx, id, normalize(company)); err != nil {
		return err
	}
	s.record(ctx, actorID, "company.updated", id, nil)
	return nil
}

func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if id <= 0 {
		return shared.ErrNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "company.deleted", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "company",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}

func normalize(c Company) Company {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	c.Name = strings.TrimSpace(c.Name)
	c.Address = strings.TrimSpace(c.Address)
	c.TaxID = strings.TrimSpace(c.TaxID)
	return c
}
