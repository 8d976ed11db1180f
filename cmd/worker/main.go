package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/feedflow/feedflow/internal/app"
	"github.com/feedflow/feedflow/internal/auth"
	"github.com/feedflow/feedflow/internal/chat"
	jobmetrics "github.com/feedflow/feedflow/internal/jobs"
	"github.com/feedflow/feedflow/internal/notify"
	"github.com/feedflow/feedflow/internal/platform/cache"
	"github.com/feedflow/feedflow/internal/platform/db"
	"github.com/feedflow/feedflow/internal/realtime"
	"github.com/feedflow/feedflow/internal/shared"
	"github.com/feedflow/feedflow/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)

	// The worker publishes realtime frames through the hub's redis bus only.
	hub := realtime.NewHub(logger, redisClient)
	notifyStore := notify.NewPostgresStore(pool)
	fanoutOpts := []notify.Option{notify.WithPushTimeout(cfg.PushTimeout)}
	if cfg.PushEnabled() {
		pusher, err := notify.NewWebPush(notify.VAPIDConfig{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subscriber: cfg.VAPIDSubscriber,
			TTL:        time.Duration(cfg.PushTTL) * time.Second,
		}, nil)
		if err != nil {
			logger.Error("init web push", slog.Any("error", err))
			os.Exit(1)
		}
		fanoutOpts = append(fanoutOpts, notify.WithPusher(pusher))
	}
	fanout := notify.NewFanout(notifyStore, notifyStore, hub, logger, fanoutOpts...)

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient := jobs.NewClient(redisOpt)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	chatService := chat.NewService(redisClient, hub, jobClient, fanout, auth.NewRepository(pool), logger,
		chat.WithUnreadDelay(cfg.ChatUnreadDelay),
		chat.WithMarkerTTL(cfg.ChatUnreadTTL),
	)

	unreadJob := jobs.NewChatUnreadJob(chatService, logger, metrics)
	sweepJob := jobs.NewSweepSubscriptionsJob(notify.NewService(notifyStore, notifyStore), logger, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), logger, metrics)

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(72)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpt,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskChatUnreadCheck, Handler: unreadJob.Handle},
			{Type: jobs.TaskSweepSubscriptions, Handler: sweepJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/30 * * * *", Task: jobs.NewSweepSubscriptionsTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
