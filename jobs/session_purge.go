package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/erp-system/erp/internal/jobs"
)

// IdempotencyRetention is how long form keys are kept before the purge
// removes them.
const IdempotencyRetention = 7 * 24 * time.Hour

// SessionPurger deletes expired session audit rows.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// KeyCleaner deletes idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// PurgeSessionsJob handles TaskAuthPurgeSessions. Keys is optional.
type PurgeSessionsJob struct {
	Purger  SessionPurger
	Keys    KeyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPurgeSessionsJob constructs the job handler.
func NewPurgeSessionsJob(purger SessionPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *PurgeSessionsJob {
	return &PurgeSessionsJob{Purger: purger, Logger: logger, Metrics: metrics}
}

// Handle executes the purge.
func (j *PurgeSessionsJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Purger == nil {
		return errors.New("purge sessions: dependencies not configured")
	}
	tracker := j.Metrics.Track(TaskAuthPurgeSessions)
	n, err := j.Purger.PurgeExpiredSessions(ctx)
	if err != nil {
		jobLogger(j.Logger).Error("purge sessions", slog.Any("error", err))
		return tracker.End(err)
	}
	j.Metrics.AddAffected(TaskAuthPurgeSessions, n)
	if n > 0 {
		jobLogger(j.Logger).Info("purged expired sessions", slog.Int64("count", n))
	}
	if j.Keys != nil {
		keys, err := j.Keys.Cleanup(ctx, IdempotencyRetention)
		if err != nil {
			// Sessions are already gone; a retry would only repeat the key sweep.
			jobLogger(j.Logger).Warn("purge idempotency keys", slog.Any("error", err))
		} else if keys > 0 {
			jobLogger(j.Logger).Info("purged idempotency keys", slog.Int64("count", keys))
		}
	}
	return tracker.End(nil)
}
