package shared

import (
	"net/http"
	"strconv"
	"strings"
)

// Pagination defaults.
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100

	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListFilters represents standard list page filters.
type ListFilters struct {
	Page    int
	Limit   int
	Search  string
	SortBy  string
	SortDir string
}

// ParseListFilters reads page, limit, search, sort and dir from the query string.
func ParseListFilters(r *http.Request) ListFilters {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = DefaultPage
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	dir := strings.ToLower(q.Get("dir"))
	if dir != SortDesc {
		dir = SortAsc
	}
	return ListFilters{
		Page:    page,
		Limit:   limit,
		Search:  strings.TrimSpace(q.Get("search")),
		SortBy:  q.Get("sort"),
		SortDir: dir,
	}
}

// Offset is the row offset of the current page.
func (f ListFilters) Offset() int {
	if f.Page < 1 || f.Limit < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// Direction renders SortDir as SQL.
func (f ListFilters) Direction() string {
	if f.SortDir == SortDesc {
		return "DESC"
	}
	return "ASC"
}

// Page describes a window of a list for templates.
type Page struct {
	Current int
	Total   int
	Pages   int
	HasPrev bool
	HasNext bool
}

// Paginate computes the page window for total rows.
func (f ListFilters) Paginate(total int) Page {
	pages := 1
	if f.Limit > 0 && total > 0 {
		pages = (total + f.Limit - 1) / f.Limit
	}
	return Page{
		Current: f.Page,
		Total:   total,
		Pages:   pages,
		HasPrev: f.Page > 1,
		HasNext: f.Page < pages,
	}
}
