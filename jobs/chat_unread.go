package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/feedflow/feedflow/internal/chat"
	jobmetrics "github.com/feedflow/feedflow/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// UnreadChecker consumes unread markers.
type UnreadChecker interface {
	CheckUnread(ctx context.Context, p chat.UnreadPayload) (bool, error)
}

// ChatUnreadJob pushes direct messages still unread after the delay.
type ChatUnreadJob struct {
	Chat    UnreadChecker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewChatUnreadJob wires dependencies for the unread check handler.
func NewChatUnreadJob(checker UnreadChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *ChatUnreadJob {
	return &ChatUnreadJob{Chat: checker, Logger: logger, Metrics: metrics}
}

// Handle processes chat unread check tasks.
func (j *ChatUnreadJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Chat == nil {
		return errors.New("chat unread: handler not configured")
	}
	var payload chat.UnreadPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.MessageID == "" {
		return asynq.SkipRetry
	}

	tracker := metricsOr(j.Metrics).Track(TaskChatUnreadCheck)
	pushed, err := j.Chat.CheckUnread(ctx, payload)
	if err != nil {
		loggerOr(j.Logger).Warn("chat unread check", slog.String("message_id", payload.MessageID), slog.Any("error", err))
		// The marker is consumed before the push; a retry would find nothing.
		if pushed {
			err = errors.Join(err, asynq.SkipRetry)
		}
		return tracker.End(err)
	}
	if pushed {
		metricsOr(j.Metrics).AddItems(TaskChatUnreadCheck, 1)
	}
	return tracker.End(nil)
}

func metricsOr(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
