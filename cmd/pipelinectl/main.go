// Command pipelinectl runs maintenance operations against a live pipeline:
// rebuilding derived state from the record store and replaying outbox rows.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/pantry-pipeline/internal/config"
	"github.com/notifyhub/pantry-pipeline/internal/db"
	"github.com/notifyhub/pantry-pipeline/internal/eventbus"
	"github.com/notifyhub/pantry-pipeline/internal/expiry"
	"github.com/notifyhub/pantry-pipeline/internal/ratelimiter"
	"github.com/notifyhub/pantry-pipeline/internal/repository"
	"github.com/notifyhub/pantry-pipeline/internal/scheduler"
	"github.com/notifyhub/pantry-pipeline/internal/service"
	"github.com/notifyhub/pantry-pipeline/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := newRootCmd(func(ctx context.Context) (*deps, func(), error) {
		return openDeps(ctx, logger)
	})
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// openDeps connects to PostgreSQL and Redis with the same environment
// configuration as the server.
func openDeps(ctx context.Context, logger *zap.Logger) (*deps, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	rdb, err := db.ConnectRedis(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	items := repository.NewPgItemRepository(pool)
	reminders := repository.NewPgReminderRepository(pool)
	index := expiry.NewRedisIndex(rdb, cfg.ExpirationIndexKey)
	sched := scheduler.New(scheduler.NewPgStore(pool))
	pub := eventbus.NewPublisher(eventbus.NewRedisStreamBus(rdb, cfg.EventStream), logger, nil)

	d := &deps{
		reconciler: service.NewReconciler(items, reminders, index, sched, logger),
		newRelay: func(grace time.Duration, batch int) *worker.OutboxRelay {
			return worker.NewOutboxRelay(items, pub, ratelimiter.New(cfg.ExpirationPublishRate),
				cfg.OutboxInterval, grace, batch, logger, worker.MetricHooks{})
		},
		index: index,
		sched: sched,
	}
	closeFn := func() {
		_ = rdb.Close()
		pool.Close()
	}
	return d, closeFn, nil
}
