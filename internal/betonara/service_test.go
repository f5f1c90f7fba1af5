package betonara

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp-system/erp/internal/companies"
	"github.com/erp-system/erp/internal/shared"
)

var fixedNow = time.Date(2026, 3, 17, 9, 30, 0, 0, time.UTC)

func day(s string) time.Time {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

type memRepo struct {
	mu        sync.Mutex
	entries   []Entry
	daily     []DailyTotal
	classes   []ClassTotal
	failWith  error
	refreshes int
	lastRange [2]time.Time
}

func (m *memRepo) ListEntries(ctx context.Context, filter ReportFilter, page shared.ListFilters) ([]Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if e.ProducedOn.Before(filter.From) || e.ProducedOn.After(filter.To) {
			continue
		}
		if filter.CompanyID > 0 && e.CompanyID != filter.CompanyID {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

func (m *memRepo) CreateEntry(ctx context.Context, e Entry) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return Entry{}, m.failWith
	}
	e.ID = int64(len(m.entries) + 1)
	e.CompanyName = "Betonara d.o.o."
	e.CreatedAt = fixedNow
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *memRepo) DailyTotals(ctx context.Context, filter ReportFilter) ([]DailyTotal, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.daily, nil
}

func (m *memRepo) ClassTotals(ctx context.Context, filter ReportFilter) ([]ClassTotal, error) {
	return m.classes, nil
}

func (m *memRepo) VolumeBetween(ctx context.Context, from, to time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRange = [2]time.Time{from, to}
	var v float64
	for _, e := range m.entries {
		if !e.ProducedOn.Before(from) && !e.ProducedOn.After(to) {
			v += e.VolumeM3
		}
	}
	return v, nil
}

func (m *memRepo) LatestEntries(ctx context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) < limit {
		limit = len(m.entries)
	}
	return m.entries[:limit], nil
}

func (m *memRepo) Plants(ctx context.Context) ([]string, error) {
	return []string{"Kakanj", "Zenica"}, nil
}

func (m *memRepo) RefreshTotals(ctx context.Context) error {
	m.refreshes++
	return nil
}

type stubCompanies struct{}

func (stubCompanies) Options(ctx context.Context) ([]companies.Company, error) {
	return []companies.Company{{ID: 1, Code: "BET", Name: "Betonara d.o.o."}}, nil
}

type jobSpy struct {
	ids []int64
	err error
}

func (j *jobSpy) EnqueueRefreshTotals(ctx context.Context, entryID int64) error {
	j.ids = append(j.ids, entryID)
	return j.err
}

type memKeys struct {
	keys map[string]bool
}

func (k *memKeys) CheckAndInsert(ctx context.Context, key, module string) error {
	if k.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	k.keys[key] = true
	return nil
}

func (k *memKeys) Delete(ctx context.Context, key string) error {
	delete(k.keys, key)
	return nil
}

func newTestService(repo *memRepo, jobs *jobSpy, keys *memKeys) *Service {
	cfg := Config{Repo: repo, Companies: stubCompanies{}, Clock: func() time.Time { return fixedNow }}
	if jobs != nil {
		cfg.Jobs = jobs
	}
	if keys != nil {
		cfg.Idempotency = keys
	}
	return NewService(cfg)
}

func validForm() EntryForm {
	return EntryForm{CompanyID: 1, Plant: " Kakanj ", ProducedOn: "2026-03-16", ConcreteClass: "C25/30", VolumeM3: 8.5, Customer: "Gradnja d.d.", DeliveryNote: "OT-1042", Key: "k1"}
}

func TestRecordEntryEnqueuesRefresh(t *testing.T) {
	repo := &memRepo{}
	jobs := &jobSpy{}
	svc := newTestService(repo, jobs, &memKeys{keys: map[string]bool{}})

	entry, err := svc.RecordEntry(context.Background(), 5, validForm())
	require.NoError(t, err)
	assert.Equal(t, "Kakanj", entry.Plant)
	assert.Equal(t, int64(5), entry.CreatedBy)
	assert.Equal(t, day("2026-03-16"), entry.ProducedOn)
	assert.Equal(t, []int64{entry.ID}, jobs.ids)
}

func TestRecordEntryIsIdempotent(t *testing.T) {
	repo := &memRepo{}
	svc := newTestService(repo, &jobSpy{}, &memKeys{keys: map[string]bool{}})
	_, err := svc.RecordEntry(context.Background(), 5, validForm())
	require.NoError(t, err)
	_, err = svc.RecordEntry(context.Background(), 5, validForm())
	assert.ErrorIs(t, err, ErrAlreadyRecorded)
	assert.Len(t, repo.entries, 1)
}

func TestRecordEntryReleasesKeyOnFailure(t *testing.T) {
	repo := &memRepo{failWith: errors.New("insert failed")}
	keys := &memKeys{keys: map[string]bool{}}
	jobs := &jobSpy{}
	svc := newTestService(repo, jobs, keys)
	_, err := svc.RecordEntry(context.Background(), 5, validForm())
	require.Error(t, err)
	assert.Empty(t, keys.keys)
	assert.Empty(t, jobs.ids)
}

func TestRecordEntrySurvivesQueueOutage(t *testing.T) {
	repo := &memRepo{}
	svc := newTestService(repo, &jobSpy{err: errors.New("redis down")}, nil)
	_, err := svc.RecordEntry(context.Background(), 5, validForm())
	assert.NoError(t, err)
	assert.Len(t, repo.entries, 1)
}

func TestReportSumsDailyTotals(t *testing.T) {
	repo := &memRepo{
		daily: []DailyTotal{
			{Day: day("2026-03-02"), CompanyName: "Betonara d.o.o.", Plant: "Kakanj", VolumeM3: 24.5, Entries: 3},
			{Day: day("2026-03-03"), CompanyName: "Betonara d.o.o.", Plant: "Zenica", VolumeM3: 10, Entries: 1},
		},
		classes: []ClassTotal{{ConcreteClass: "C25/30", VolumeM3: 34.5, Entries: 4}},
	}
	report, err := newTestService(repo, nil, nil).Report(context.Background(), ReportFilter{From: day("2026-03-01"), To: day("2026-03-17")})
	require.NoError(t, err)
	assert.InDelta(t, 34.5, report.TotalVolume, 0.001)
	assert.Equal(t, 4, report.TotalEntries)
	assert.Len(t, report.Classes, 1)

	repo.failWith = errors.New("view missing")
	_, err = newTestService(repo, nil, nil).Report(context.Background(), ReportFilter{})
	assert.Error(t, err)
}

func TestMonthSummaryUsesCurrentMonth(t *testing.T) {
	repo := &memRepo{entries: []Entry{
		{ID: 1, ProducedOn: day("2026-02-28"), VolumeM3: 100},
		{ID: 2, ProducedOn: day("2026-03-01"), VolumeM3: 7},
		{ID: 3, ProducedOn: day("2026-03-31"), VolumeM3: 3},
	}}
	summary, err := newTestService(repo, nil, nil).MonthSummary(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, day("2026-03-01"), summary.Month)
	assert.InDelta(t, 10, summary.VolumeM3, 0.001)
	assert.Equal(t, day("2026-03-31"), repo.lastRange[1])
	assert.Len(t, summary.Latest, 2)
}

func TestParseReportFilter(t *testing.T) {
	f, err := ParseReportFilter(httptest.NewRequest("GET", "/betonara/reports", nil), fixedNow)
	require.NoError(t, err)
	assert.Equal(t, day("2026-03-01"), f.From)
	assert.Equal(t, day("2026-03-17"), f.To)

	f, err = ParseReportFilter(httptest.NewRequest("GET", "/x?from=2026-01-05&to=2026-01-20&company_id=3&plant=Zenica", nil), fixedNow)
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.CompanyID)
	assert.Equal(t, "Zenica", f.Plant)
	assert.Equal(t, "from=2026-01-05&to=2026-01-20&company_id=3&plant=Zenica", f.Query())

	for _, q := range []string{"?from=17.03.2026", "?from=2026-03-10&to=2026-03-01", "?from=2024-01-01&to=2026-01-01", "?company_id=x"} {
		_, err := ParseReportFilter(httptest.NewRequest("GET", "/x"+q, nil), fixedNow)
		var verr *shared.ValidationError
		assert.ErrorAs(t, err, &verr, q)
	}
}

func TestWriteCSV(t *testing.T) {
	report := Report{
		Filter:       ReportFilter{From: day("2026-03-01"), To: day("2026-03-31")},
		Daily:        []DailyTotal{{Day: day("2026-03-02"), CompanyName: "Betonara; Kakanj", Plant: "Kakanj", VolumeM3: 24.5, Entries: 3}},
		Classes:      []ClassTotal{{ConcreteClass: "C30/37", VolumeM3: 24.5, Entries: 3}},
		TotalVolume:  24.5,
		TotalEntries: 3,
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, report))

	r := csv.NewReader(&buf)
	r.Comma = ';'
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03-02", "Betonara; Kakanj", "Kakanj", "24.50", "3"}, rows[1])
	assert.Equal(t, "Ukupno", rows[2][0])
	assert.Equal(t, []string{"C30/37", "24.50", "3"}, rows[len(rows)-1])
	assert.Equal(t, "betonara_20260301_20260331.csv", Filename(report, "csv"))
}
