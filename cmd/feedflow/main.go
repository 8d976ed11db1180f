package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feedflow/feedflow/internal/app"
	"github.com/feedflow/feedflow/internal/auth"
	"github.com/feedflow/feedflow/internal/chat"
	"github.com/feedflow/feedflow/internal/documents"
	"github.com/feedflow/feedflow/internal/events"
	"github.com/feedflow/feedflow/internal/notify"
	"github.com/feedflow/feedflow/internal/observability"
	"github.com/feedflow/feedflow/internal/orders"
	"github.com/feedflow/feedflow/internal/parties"
	"github.com/feedflow/feedflow/internal/payments"
	"github.com/feedflow/feedflow/internal/platform/cache"
	"github.com/feedflow/feedflow/internal/platform/db"
	"github.com/feedflow/feedflow/internal/rbac"
	"github.com/feedflow/feedflow/internal/realtime"
	"github.com/feedflow/feedflow/internal/sequence"
	"github.com/feedflow/feedflow/internal/shared"
	"github.com/feedflow/feedflow/internal/stock"
	"github.com/feedflow/feedflow/jobs"
	"github.com/feedflow/feedflow/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.PGDSN, migrations.FS); err != nil {
			logger.Error("apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
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

	metrics := observability.NewMetrics()
	approvals := shared.NewApprovalRecorder(logger)
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	rbacMiddleware := rbac.Middleware{Logger: logger}

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, cfg.JWTSecret, cfg.JWTTTL)

	hub := realtime.NewHub(logger, redisClient)
	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("realtime hub stopped", slog.Any("error", err))
		}
	}()
	defer hub.Close()

	notifyStore := notify.NewPostgresStore(pool)
	fanoutOpts := []notify.Option{notify.WithRecorder(metrics), notify.WithPushTimeout(cfg.PushTimeout)}
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
	} else {
		logger.Warn("web push disabled, VAPID keys not configured")
	}
	fanout := notify.NewFanout(notifyStore, notifyStore, hub, logger, fanoutOpts...)

	var publisher orders.Publisher = events.Nop{}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		kafkaPublisher := events.NewPublisher(events.NewWriter(brokers, cfg.KafkaOrderTopic))
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Warn("kafka writer close", slog.Any("error", err))
			}
		}()
		publisher = kafkaPublisher
	}

	orderOpts := []orders.Option{
		orders.WithPublisher(publisher),
		orders.WithIdempotency(idempotencyStore),
		orders.WithRecorder(metrics),
		orders.WithCreditRestore(cfg.PartyCreditRestore),
	}
	if cfg.DocumentsEnabled() {
		store, err := documents.New(ctx, documents.Options{
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicURL:       cfg.S3PublicURL,
		})
		if err != nil {
			logger.Error("init document store", slog.Any("error", err))
			os.Exit(1)
		}
		orderOpts = append(orderOpts, orders.WithDocuments(store))
	}

	allocator := sequence.NewAllocator(sequence.NewPostgresCounter(pool), sequence.OrderCounter)
	orderService := orders.NewService(orders.NewRepository(pool, approvals), allocator, authRepo, fanout, logger, orderOpts...)
	paymentService := payments.NewService(payments.NewRepository(pool, approvals), orderService.Guard(), authRepo, fanout, logger,
		payments.WithPublisher(publisher),
		payments.WithRecorder(metrics),
	)
	partyService := parties.NewService(parties.NewRepository(pool), auditLogger)
	stockService := stock.NewService(stock.NewRepository(pool), auditLogger)
	notifyService := notify.NewService(notifyStore, notifyStore)

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient := jobs.NewClient(redisOpt)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	chatService := chat.NewService(redisClient, hub, jobClient, fanout, authRepo, logger,
		chat.WithUnreadDelay(cfg.ChatUnreadDelay),
		chat.WithMarkerTTL(cfg.ChatUnreadTTL),
	)

	inspector := asynq.NewInspector(redisOpt)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Authenticator:      auth.Middleware{Verifier: authService, Logger: logger},
		RBACMiddleware:     rbacMiddleware,
		AuthHandler:        auth.NewHandler(logger, authService),
		OrdersHandler:      orders.NewHandler(logger, orderService, rbacMiddleware),
		PaymentsHandler:    payments.NewHandler(logger, paymentService, rbacMiddleware),
		PartiesHandler:     parties.NewHandler(logger, partyService, rbacMiddleware),
		StockHandler:       stock.NewHandler(logger, stockService, rbacMiddleware),
		NotifyHandler:      notify.NewHandler(notifyService),
		ChatHandler:        chat.NewHandler(logger, chatService, rbacMiddleware),
		RealtimeHandler:    realtime.NewHandler(hub, logger),
		JobHandler:         jobs.NewHandler(inspector, logger),
		PermissionsHandler: rbac.NewPermissionsHandler(),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	orderService.Drain()
	paymentService.Drain()
}
