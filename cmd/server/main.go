package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/notifyhub/pantry-pipeline/internal/api"
	"github.com/notifyhub/pantry-pipeline/internal/api/handler"
	"github.com/notifyhub/pantry-pipeline/internal/config"
	"github.com/notifyhub/pantry-pipeline/internal/db"
	"github.com/notifyhub/pantry-pipeline/internal/eventbus"
	"github.com/notifyhub/pantry-pipeline/internal/expiry"
	"github.com/notifyhub/pantry-pipeline/internal/metrics"
	"github.com/notifyhub/pantry-pipeline/internal/provider"
	"github.com/notifyhub/pantry-pipeline/internal/ratelimiter"
	"github.com/notifyhub/pantry-pipeline/internal/repository"
	"github.com/notifyhub/pantry-pipeline/internal/scheduler"
	"github.com/notifyhub/pantry-pipeline/internal/service"
	"github.com/notifyhub/pantry-pipeline/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- redis ----
	rdb, err := db.ConnectRedis(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	items := repository.NewPgItemRepository(pool)
	reminders := repository.NewPgReminderRepository(pool)
	notes := repository.NewPgNotificationRepository(pool)
	index := expiry.NewRedisIndex(rdb, cfg.ExpirationIndexKey)
	bus := eventbus.NewRedisStreamBus(rdb, cfg.EventStream)
	pub := eventbus.NewPublisher(bus, logger, m.EventPublished)
	jobs := scheduler.NewPgStore(pool)
	sched := scheduler.New(jobs)
	limiter := ratelimiter.New(cfg.ExpirationPublishRate)

	var notifier provider.Notifier = provider.Nop{}
	if cfg.NotifyWebhookURL != "" {
		notifier = provider.NewWebhookProvider(cfg.NotifyWebhookURL, cfg.NotifyWebhookTimeout)
		logger.Info("webhook push enabled", zap.String("url", cfg.NotifyWebhookURL))
	}

	expirer := service.NewExpirer(items, items, pub, logger)
	itemSvc := service.NewItemService(items, index, expirer, pub, logger)
	reminderSvc := service.NewReminderService(reminders, items, sched, pub, logger)
	notificationSvc := service.NewNotificationService(notes, notifier, logger, m.NotificationCreated)

	hooks := worker.MetricHooks{
		OnExpired:    m.ItemExpired,
		OnIndexDepth: m.SetIndexDepth,
		OnCycle:      m.ObserveCycle,
		OnConsumed:   m.EventConsumed,
	}

	// ---- background workers ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	consumers := worker.NewConsumerPool(cfg, bus, notificationSvc, logger, hooks)
	if err := consumers.EnsureGroup(ctx); err != nil {
		logger.Fatal("failed to create consumer group",
			zap.String("stream", cfg.EventStream), zap.String("group", cfg.ConsumerGroup), zap.Error(err))
	}
	consumers.Start(workerCtx)

	dispatcher := scheduler.NewDispatcher(jobs, scheduler.DispatcherConfig{
		Interval:  cfg.SchedulerInterval,
		Lease:     cfg.SchedulerLease,
		BatchSize: cfg.SchedulerBatchSize,
		OnFired:   m.JobFired,
	}, logger)
	dispatcher.Register(service.SendReminderJob, reminderSvc.HandleSendReminder)

	expirationW := worker.NewExpirationWorker(index, expirer, limiter,
		cfg.ExpirationInterval, cfg.ExpirationBatchSize, logger, hooks)
	relay := worker.NewOutboxRelay(items, pub, limiter,
		cfg.OutboxInterval, cfg.OutboxGrace, cfg.ExpirationBatchSize, logger, hooks).
		WithRetention(cfg.OutboxRetention)

	var loops sync.WaitGroup
	for _, run := range []func(context.Context){dispatcher.Run, expirationW.Run, relay.Run} {
		loops.Add(1)
		go func(run func(context.Context)) {
			defer loops.Done()
			run(workerCtx)
		}(run)
	}

	// ---- HTTP server ----
	router := api.NewRouter(api.Services{
		Items:         itemSvc,
		Reminders:     reminderSvc,
		Notifications: notificationSvc,
		Index:         index,
		Scheduler:     sched,
	}, map[string]handler.Check{
		"postgres": pool.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}, reg, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Signal the loops and consumers to stop picking up new work.
	cancelWorkers()

	// 3. Wait for in-flight messages and jobs to finish.
	consumers.Wait()
	loops.Wait()

	logger.Info("server stopped cleanly")
}
