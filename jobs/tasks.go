package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAccessReview snapshots every user's effective permission set.
	TaskAccessReview = "authz:access_review"
	// TaskSessionCleanup prunes expired session audit rows.
	TaskSessionCleanup = "sessions:cleanup"
)

// AccessReviewPayload parameterises an access review run.
type AccessReviewPayload struct {
	// Reason is recorded with the snapshot batch, e.g. "scheduled" or
	// the name of the auditor who requested it.
	Reason string `json:"reason"`
}

// NewAccessReviewTask constructs an Asynq task for an access review run.
func NewAccessReviewTask(payload AccessReviewPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAccessReview, data), nil
}

// NewSessionCleanupTask constructs the session cleanup task.
func NewSessionCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskSessionCleanup, nil)
}
