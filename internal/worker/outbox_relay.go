package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/pantry-pipeline/internal/eventbus"
	"github.com/notifyhub/pantry-pipeline/internal/ratelimiter"
	"github.com/notifyhub/pantry-pipeline/internal/repository"
)

// OutboxRelay republishes item.expired events whose outbox row is still
// unpublished after the grace period, i.e. the process that expired the item
// failed or crashed before publishing. Republished events keep their id, so
// the consumer never creates a second notification for them. Published rows
// are pruned once they are older than the retention.
type OutboxRelay struct {
	outbox    repository.OutboxRepository
	pub       *eventbus.Publisher
	limiter   *ratelimiter.PublishLimiter
	interval  time.Duration
	grace     time.Duration
	retention time.Duration
	batch     int
	logger    *zap.Logger
	hooks     MetricHooks
	now       func() time.Time
}

func NewOutboxRelay(
	outbox repository.OutboxRepository,
	pub *eventbus.Publisher,
	limiter *ratelimiter.PublishLimiter,
	interval, grace time.Duration,
	batch int,
	logger *zap.Logger,
	hooks MetricHooks,
) *OutboxRelay {
	return &OutboxRelay{
		outbox:   outbox,
		pub:      pub,
		limiter:  limiter,
		interval: interval,
		grace:    grace,
		batch:    batch,
		logger:   logger,
		hooks:    hooks.withDefaults(),
		now:      time.Now,
	}
}

// WithRetention makes Run prune published rows older than d after every
// cycle. Zero keeps them forever.
func (r *OutboxRelay) WithRetention(d time.Duration) *OutboxRelay {
	r.retention = d
	return r
}

// Run ticks every interval, relays stuck events and prunes old rows.
// Stops cleanly when ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started",
		zap.Duration("interval", r.interval), zap.Duration("grace", r.grace))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopping")
			return
		case <-ticker.C:
			start := time.Now()
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("outbox relay error", zap.Error(err))
			}
			if r.retention > 0 {
				if _, err := r.Prune(ctx, r.retention); err != nil {
					r.logger.Error("outbox prune error", zap.Error(err))
				}
			}
			r.hooks.OnCycle("outbox", time.Since(start))
		}
	}
}

// RunOnce publishes one batch of unpublished rows older than the grace
// period and returns how many it published. It stops at the first bus error.
func (r *OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	rows, err := r.outbox.ListUnpublished(ctx, r.now().UTC().Add(-r.grace), r.batch)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, row := range rows {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return published, err
			}
		}
		if _, err := r.pub.Publish(ctx, row.Event); err != nil {
			return published, err
		}
		published++
		if err := r.outbox.MarkPublished(ctx, row.Event.ID, r.now().UTC()); err != nil {
			r.logger.Warn("failed to mark relayed event published",
				zap.String("event_id", row.Event.ID), zap.Error(err))
		}
	}

	if published > 0 {
		r.logger.Info("relayed unpublished outbox events", zap.Int("count", published))
	}
	return published, nil
}

// Prune deletes rows published more than olderThan ago and returns how many.
func (r *OutboxRelay) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := r.outbox.DeletePublished(ctx, r.now().UTC().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info("pruned published outbox events", zap.Int64("count", n))
	}
	return n, nil
}
