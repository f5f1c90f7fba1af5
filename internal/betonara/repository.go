package betonara

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erp-system/erp/internal/shared"
)

// Repository persists production entries and reads the report aggregates.
type Repository interface {
	ListEntries(ctx context.Context, filter ReportFilter, page shared.ListFilters) ([]Entry, int, error)
	CreateEntry(ctx context.Context, entry Entry) (Entry, error)
	DailyTotals(ctx context.Context, filter ReportFilter) ([]DailyTotal, error)
	ClassTotals(ctx context.Context, filter ReportFilter) ([]ClassTotal, error)
	VolumeBetween(ctx context.Context, from, to time.Time) (float64, error)
	LatestEntries(ctx context.Context, limit int) ([]Entry, error)
	Plants(ctx context.Context) ([]string, error)
	RefreshTotals(ctx context.Context) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const entrySelect = `SELECT e.id, e.company_id, c.name, e.plant, e.produced_on, e.concrete_class,
       e.volume_m3, e.customer, e.delivery_note, COALESCE(e.created_by, 0), e.created_at
FROM betonara_entries e
JOIN companies c ON c.id = e.company_id`

// filterClause builds the WHERE clause shared by entries and totals. alias
// names the table carrying the columns.
func filterClause(filter ReportFilter, alias, dayColumn string) (string, []any) {
	args := []any{filter.From, filter.To}
	where := ` WHERE ` + alias + `.` + dayColumn + ` BETWEEN $1 AND $2`
	if filter.CompanyID > 0 {
		args = append(args, filter.CompanyID)
		where += ` AND ` + alias + `.company_id = $` + strconv.Itoa(len(args))
	}
	if filter.Plant != "" {
		args = append(args, filter.Plant)
		where += ` AND ` + alias + `.plant = $` + strconv.Itoa(len(args))
	}
	return where, args
}

func (r *repository) ListEntries(ctx context.Context, filter ReportFilter, page shared.ListFilters) ([]Entry, int, error) {
	where, args := filterClause(filter, "e", "produced_on")
	if page.Search != "" {
		args = append(args, "%"+page.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (e.customer ILIKE $` + n + ` OR e.delivery_note ILIKE $` + n + `)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM betonara_entries e`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := entrySelect + where + ` ORDER BY e.produced_on DESC, e.id DESC`
	if page.Limit > 0 {
		query += ` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
		args = append(args, page.Limit, page.Offset())
	}
	entries, err := r.queryEntries(ctx, query, args...)
	return entries, total, err
}

func (r *repository) queryEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.CompanyName, &e.Plant, &e.ProducedOn, &e.ConcreteClass,
			&e.VolumeM3, &e.Customer, &e.DeliveryNote, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) CreateEntry(ctx context.Context, e Entry) (Entry, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO betonara_entries
(company_id, plant, produced_on, concrete_class, volume_m3, customer, delivery_note, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at`,
		e.CompanyID, e.Plant, e.ProducedOn, e.ConcreteClass, e.VolumeM3, e.Customer, e.DeliveryNote, e.CreatedBy).
		Scan(&e.ID, &e.CreatedAt)
	switch {
	case shared.IsForeignKeyViolation(err):
		return Entry{}, shared.Invalid("CompanyID", "Odabrana kompanija ne postoji.")
	case shared.IsUniqueViolation(err):
		return Entry{}, shared.ErrDuplicate
	}
	return e, err
}

// Both report aggregates read the betonara_daily_totals snapshot so a
// report never mixes refreshed and live figures.
func dailyTotalsQuery(where string) string {
	return `SELECT t.day, t.company_id, c.name, t.plant, SUM(t.volume_m3)::float8, SUM(t.entries)::int
FROM betonara_daily_totals t
JOIN companies c ON c.id = t.company_id` + where + `
GROUP BY t.day, t.company_id, c.name, t.plant
ORDER BY t.day, c.name, t.plant`
}

func classTotalsQuery(where string) string {
	return `SELECT t.concrete_class, SUM(t.volume_m3)::float8, SUM(t.entries)::int
FROM betonara_daily_totals t` + where + `
GROUP BY t.concrete_class
ORDER BY SUM(t.volume_m3) DESC, t.concrete_class`
}

func (r *repository) DailyTotals(ctx context.Context, filter ReportFilter) ([]DailyTotal, error) {
	where, args := filterClause(filter, "t", "day")
	rows, err := r.pool.Query(ctx, dailyTotalsQuery(where), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DailyTotal
	for rows.Next() {
		var d DailyTotal
		if err := rows.Scan(&d.Day, &d.CompanyID, &d.CompanyName, &d.Plant, &d.VolumeM3, &d.Entries); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *repository) ClassTotals(ctx context.Context, filter ReportFilter) ([]ClassTotal, error) {
	where, args := filterClause(filter, "t", "day")
	rows, err := r.pool.Query(ctx, classTotalsQuery(where), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ClassTotal
	for rows.Next() {
		var c ClassTotal
		if err := rows.Scan(&c.ConcreteClass, &c.VolumeM3, &c.Entries); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) VolumeBetween(ctx context.Context, from, to time.Time) (float64, error) {
	var v float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(volume_m3), 0)::float8 FROM betonara_entries WHERE produced_on BETWEEN $1 AND $2`, from, to).Scan(&v)
	return v, err
}

func (r *repository) LatestEntries(ctx context.Context, limit int) ([]Entry, error) {
	return r.queryEntries(ctx, entrySelect+` ORDER BY e.created_at DESC, e.id DESC LIMIT $1`, limit)
}

func (r *repository) Plants(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT plant FROM betonara_entries ORDER BY plant`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) RefreshTotals(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY betonara_daily_totals`)
	return err
}
