// Package dashboard assembles the landing overview shown after sign-in.
package dashboard

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/erp-system/erp/internal/betonara"
)

// Counter returns the number of rows of one administrative entity.
type Counter func(ctx context.Context) (int, error)

// ProductionSource supplies the Betonara month summary.
type ProductionSource interface {
	MonthSummary(ctx context.Context, latest int) (betonara.MonthSummary, error)
}

// Sources wires the datasets of the overview.
type Sources struct {
	Users      Counter
	Roles      Counter
	Companies  Counter
	Production ProductionSource
}

// Overview is the dashboard content.
type Overview struct {
	Users      int
	Roles      int
	Companies  int
	Production betonara.MonthSummary
}

// LatestEntries is how many production rows the dashboard lists.
const LatestEntries = 5

// Service loads the overview.
type Service struct {
	src Sources
}

// NewService constructs the service.
func NewService(src Sources) *Service {
	return &Service{src: src}
}

// Overview fetches every dataset concurrently. The first failure cancels the
// others and is returned; there is no partial result.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	var out Overview
	g, ctx := errgroup.WithContext(ctx)
	count := func(name string, fn Counter, dst *int) {
		if fn == nil {
			return
		}
		g.Go(func() error {
			n, err := fn(ctx)
			if err != nil {
				return fmt.Errorf("count %s: %w", name, err)
			}
			*dst = n
			return nil
		})
	}
	count("users", s.src.Users, &out.Users)
	count("roles", s.src.Roles, &out.Roles)
	count("companies", s.src.Companies, &out.Companies)
	if s.src.Production != nil {
		g.Go(func() error {
			summary, err := s.src.Production.MonthSummary(ctx, LatestEntries)
			if err != nil {
				return fmt.Errorf("production summary: %w", err)
			}
			out.Production = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return out, nil
}
