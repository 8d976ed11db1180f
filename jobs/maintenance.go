package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/feedflow/feedflow/internal/jobs"
)

const defaultIdempotencyRetention = 72 * time.Hour

// SubscriptionSweeper removes expired push subscriptions.
type SubscriptionSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// KeyCleaner drops idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SweepSubscriptionsJob runs the subscription sweep on its cron schedule.
type SweepSubscriptionsJob struct {
	Sweeper SubscriptionSweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSweepSubscriptionsJob wires the sweep handler.
func NewSweepSubscriptionsJob(sweeper SubscriptionSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *SweepSubscriptionsJob {
	return &SweepSubscriptionsJob{Sweeper: sweeper, Logger: logger, Metrics: metrics}
}

// Handle processes subscription sweep tasks.
func (j *SweepSubscriptionsJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("subscription sweep: handler not configured")
	}
	tracker := metricsOr(j.Metrics).Track(TaskSweepSubscriptions)
	removed, err := j.Sweeper.SweepExpired(ctx)
	if err != nil {
		loggerOr(j.Logger).Error("sweep subscriptions", slog.Any("error", err))
		return tracker.End(err)
	}
	metricsOr(j.Metrics).AddItems(TaskSweepSubscriptions, removed)
	loggerOr(j.Logger).Info("swept expired subscriptions", slog.Int64("removed", removed))
	return tracker.End(nil)
}

// IdempotencyCleanupJob prunes idempotency keys.
type IdempotencyCleanupJob struct {
	Store   KeyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob wires the cleanup handler.
func NewIdempotencyCleanupJob(store KeyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes idempotency cleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	retention := defaultIdempotencyRetention
	if len(t.Payload()) > 0 {
		var payload IdempotencyCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.RetentionHours > 0 {
			retention = time.Duration(payload.RetentionHours) * time.Hour
		}
	}
	tracker := metricsOr(j.Metrics).Track(TaskIdempotencyCleanup)
	removed, err := j.Store.Cleanup(ctx, retention)
	if err != nil {
		loggerOr(j.Logger).Error("idempotency cleanup", slog.Any("error", err))
		return tracker.End(err)
	}
	metricsOr(j.Metrics).AddItems(TaskIdempotencyCleanup, removed)
	return tracker.End(nil)
}
