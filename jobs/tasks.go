package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/feedflow/feedflow/internal/chat"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskChatUnreadCheck pushes a direct message nobody read in time.
	TaskChatUnreadCheck = chat.TaskUnreadCheck
	// TaskSweepSubscriptions removes expired push subscriptions.
	TaskSweepSubscriptions = "notify:sweep_subscriptions"
	// TaskIdempotencyCleanup drops stale idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// IdempotencyCleanupPayload bounds how long claimed keys are kept.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewSweepSubscriptionsTask constructs the cron task sweeping expired subscriptions.
func NewSweepSubscriptionsTask() *asynq.Task {
	return asynq.NewTask(TaskSweepSubscriptions, nil)
}

// NewIdempotencyCleanupTask constructs an idempotency cleanup task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
