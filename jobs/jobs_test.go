package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/erp-system/erp/internal/jobs"
)

type refresherStub struct {
	calls int
	err   error
}

func (r *refresherStub) RefreshTotals(ctx context.Context) error {
	r.calls++
	return r.err
}

type purgerStub struct {
	n   int64
	err error
}

func (p purgerStub) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return p.n, p.err
}

type cleanerStub struct {
	olderThan time.Duration
	err       error
}

func (c *cleanerStub) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	c.olderThan = olderThan
	return 2, c.err
}

func TestRefreshTotalsTaskPayload(t *testing.T) {
	task, err := NewRefreshTotalsTask(RefreshTotalsPayload{EntryID: 9})
	require.NoError(t, err)
	assert.Equal(t, TaskBetonaraRefreshTotals, task.Type())

	var payload RefreshTotalsPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "schedule", payload.Reason)
	assert.Equal(t, int64(9), payload.EntryID)
}

func TestRefreshWindowOf(t *testing.T) {
	at := time.Date(2026, 3, 2, 14, 5, 10, 0, time.UTC)
	id, runAt := refreshWindowOf(at)
	assert.Equal(t, "betonara:refresh_totals:"+strconv.FormatInt(time.Date(2026, 3, 2, 14, 5, 0, 0, time.UTC).Unix(), 10), id)
	assert.Equal(t, time.Date(2026, 3, 2, 14, 5, 15, 0, time.UTC), runAt)

	same, _ := refreshWindowOf(at.Add(4 * time.Second))
	assert.Equal(t, id, same)
	next, nextRun := refreshWindowOf(at.Add(5 * time.Second))
	assert.NotEqual(t, id, next)
	assert.Equal(t, runAt.Add(refreshWindow), nextRun)
}

func TestRefreshTotalsJob(t *testing.T) {
	refresher := &refresherStub{}
	job := NewRefreshTotalsJob(refresher, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewRefreshTotalsTask(RefreshTotalsPayload{Reason: "nightly"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1, refresher.calls)

	refresher.err = errors.New("refresh blocked")
	assert.ErrorIs(t, job.Handle(context.Background(), task), refresher.err)
}

func TestRefreshTotalsJobRejectsMalformedPayload(t *testing.T) {
	refresher := &refresherStub{}
	job := NewRefreshTotalsJob(refresher, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskBetonaraRefreshTotals, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, refresher.calls)
}

func TestUnconfiguredJobsFail(t *testing.T) {
	assert.Error(t, (&RefreshTotalsJob{}).Handle(context.Background(), asynq.NewTask(TaskBetonaraRefreshTotals, nil)))
	assert.Error(t, (&PurgeSessionsJob{}).Handle(context.Background(), NewPurgeSessionsTask()))
}

func TestPurgeSessionsJob(t *testing.T) {
	cleaner := &cleanerStub{}
	job := NewPurgeSessionsJob(purgerStub{n: 4}, nil, nil)
	job.Keys = cleaner
	require.NoError(t, job.Handle(context.Background(), NewPurgeSessionsTask()))
	assert.Equal(t, IdempotencyRetention, cleaner.olderThan)

	cleaner.err = errors.New("keys locked")
	assert.NoError(t, job.Handle(context.Background(), NewPurgeSessionsTask()))

	boom := errors.New("db down")
	job = NewPurgeSessionsJob(purgerStub{err: boom}, nil, nil)
	assert.ErrorIs(t, job.Handle(context.Background(), NewPurgeSessionsTask()), boom)
}

func TestClientDebouncesRefreshesPerWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	at := time.Now().Add(time.Hour).UTC().Truncate(refreshWindow)
	client.now = func() time.Time { return at }

	require.NoError(t, client.EnqueueRefreshTotals(context.Background(), 1))
	require.NoError(t, client.EnqueueRefreshTotals(context.Background(), 2))

	scheduled, err := mr.ZMembers("asynq:{default}:scheduled")
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	id, runAt := refreshWindowOf(at)
	assert.Equal(t, id, scheduled[0])
	score, err := mr.ZScore("asynq:{default}:scheduled", id)
	require.NoError(t, err)
	assert.Equal(t, float64(runAt.Unix()), score)

	pending, _ := mr.List("asynq:{default}:pending")
	assert.Empty(t, pending)
}

func TestRefreshRequestedDuringActiveRefreshIsKept(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	at := time.Now().Add(time.Hour).UTC().Truncate(refreshWindow)

	client.now = func() time.Time { return at }
	require.NoError(t, client.EnqueueRefreshTotals(context.Background(), 1))

	// The first window's task becomes due when the window closes; an entry
	// committed from then on belongs to the next window.
	client.now = func() time.Time { return at.Add(refreshWindow) }
	require.NoError(t, client.EnqueueRefreshTotals(context.Background(), 2))

	scheduled, err := mr.ZMembers("asynq:{default}:scheduled")
	require.NoError(t, err)
	assert.Len(t, scheduled, 2)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var status QueueStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, QueueStatus{Queue: QueueDefault}, status)
}

func TestNewWorkerRejectsBadCron(t *testing.T) {
	mr := miniredis.RunT(t)
	_, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: mr.Addr()},
		Cron:      []CronRegistration{{Spec: "not a cron", Task: NewPurgeSessionsTask()}},
	})
	assert.Error(t, err)
}
