package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/erp-system/erp/internal/jobs"
)

// TotalsRefresher rebuilds the Betonara daily totals.
type TotalsRefresher interface {
	RefreshTotals(ctx context.Context) error
}

// RefreshTotalsJob handles TaskBetonaraRefreshTotals.
type RefreshTotalsJob struct {
	Refresher TotalsRefresher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewRefreshTotalsJob constructs the job handler.
func NewRefreshTotalsJob(refresher TotalsRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *RefreshTotalsJob {
	return &RefreshTotalsJob{Refresher: refresher, Logger: logger, Metrics: metrics}
}

// Handle executes the refresh.
func (j *RefreshTotalsJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Refresher == nil {
		return errors.New("refresh totals: dependencies not configured")
	}
	var payload RefreshTotalsPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.Metrics.Track(TaskBetonaraRefreshTotals)
	if err := j.Refresher.RefreshTotals(ctx); err != nil {
		jobLogger(j.Logger).Error("refresh betonara totals", slog.String("reason", payload.Reason), slog.Any("error", err))
		return tracker.End(err)
	}
	jobLogger(j.Logger).Info("refreshed betonara totals", slog.String("job", TaskBetonaraRefreshTotals), slog.String("reason", payload.Reason))
	return tracker.End(nil)
}

func jobLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
