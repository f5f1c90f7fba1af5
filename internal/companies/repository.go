package companies

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erp-system/erp/internal/shared"
)

// Repository persists companies.
type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Company, int, error)
	Options(ctx context.Context) ([]Company, error)
	Get(ctx context.Context, id int64) (Company, error)
	Create(ctx context.Context, company Company) (Company, error)
	Update(ctx context.Context, id int64, company Company) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// List uses a dynamic query because search and sort vary.
func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Company, int, error) {
	where := ``
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where = ` WHERE (name ILIKE $1 OR code ILIKE $1 OR tax_id ILIKE $1)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM companies`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, code, name, address, tax_id, created_at, updated_at FROM companies` + where +
		` ORDER BY ` + sortOrder(filters.SortBy, filters.Direction())
	if filters.Limit > 0 {
		query += ` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
		args = append(args, filters.Limit, filters.Offset())
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var companies []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Address, &c.TaxID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		companies = append(companies, c)
	}
	return companies, total, rows.Err()
}

// Options lists every company by name for select boxes.
func (r *repository) Options(ctx context.Context) ([]Company, error) {
	companies, _, err := r.List(ctx, shared.ListFilters{SortBy: "name", SortDir: shared.SortAsc})
	return companies, err
}

func (r *repository) Get(ctx context.Context, id int64) (Company, error) {
	var c Company
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, address, tax_id, created_at, updated_at FROM companies WHERE id = $1`, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.Address, &c.TaxID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Company{}, shared.ErrNotFound
	}
	return c, err
}

func (r *repository) Create(ctx context.Context, company Company) (Company, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO companies (code, name, address, tax_id)
VALUES ($1, $2, $3, $4) RETURNING id, created_at, updated_at`,
		company.Code, company.Name, company.Address, company.TaxID).
		Scan(&company.ID, &company.CreatedAt, &company.UpdatedAt)
	if shared.IsUniqueViolation(err) {
		return Company{}, shared.ErrDuplicate
	}
	return company, err
}

func (r *repository) Update(ctx context.Context, id int64, company Company) error {
	tag, err := r.pool.Exec(ctx, `UPDATE companies SET code = $1, name = $2, address = $3, tax_id = $4, updated_at = NOW() WHERE id = $5`,
		company.Code, company.Name, company.Address, company.TaxID, id)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return shared.ErrDuplicate
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			return shared.ErrInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM companies`).Scan(&n)
	return n, err
}

func sortOrder(sortBy, dir string) string {
	switch sortBy {
	case "code":
		return "code " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "name " + dir
	}
}
