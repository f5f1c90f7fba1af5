package jobs

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBetonaraRefreshTotals refreshes the Betonara daily totals view.
	TaskBetonaraRefreshTotals = "betonara:refresh_totals"
	// TaskAuthPurgeSessions removes expired session audit rows.
	TaskAuthPurgeSessions = "auth:purge_sessions"
)

// RefreshTotalsPayload records why a refresh was requested.
type RefreshTotalsPayload struct {
	Reason  string `json:"reason"`
	EntryID int64  `json:"entry_id,omitempty"`
}

// NewRefreshTotalsTask builds the refresh task.
func NewRefreshTotalsTask(payload RefreshTotalsPayload) (*asynq.Task, error) {
	if payload.Reason == "" {
		payload.Reason = "schedule"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBetonaraRefreshTotals, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewPurgeSessionsTask builds the session purge task.
func NewPurgeSessionsTask() *asynq.Task {
	return asynq.NewTask(TaskAuthPurgeSessions, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}

// refreshWindow is the debounce period for entry-triggered refreshes.
const refreshWindow = 15 * time.Second

// refreshWindowOf returns the task id of the window holding now and the
// time the window closes.
func refreshWindowOf(now time.Time) (string, time.Time) {
	start := now.UTC().Truncate(refreshWindow)
	return TaskBetonaraRefreshTotals + ":" + strconv.FormatInt(start.Unix(), 10), start.Add(refreshWindow)
}
