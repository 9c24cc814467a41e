package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/pantry-pipeline/internal/expiry"
	"github.com/notifyhub/pantry-pipeline/internal/ratelimiter"
	"github.com/notifyhub/pantry-pipeline/internal/service"
)

// minSleep bounds how often the worker polls when entries are due back to back.
const minSleep = 100 * time.Millisecond

// ExpirationWorker polls the expiration index and expires due items.
//
// For each due entry it applies the conditional Active->Expired transition,
// publishes item.expired after the store write, and only then removes the
// entry. Any per-item error leaves the entry in place for the next cycle.
// Running several workers is safe: the transition is conditioned on status
// and removal is idempotent.
type ExpirationWorker struct {
	index    expiry.Index
	expirer  *service.Expirer
	limiter  *ratelimiter.PublishLimiter
	interval time.Duration
	batch    int
	logger   *zap.Logger
	hooks    MetricHooks
	now      func() time.Time
}

func NewExpirationWorker(
	index expiry.Index,
	expirer *service.Expirer,
	limiter *ratelimiter.PublishLimiter,
	interval time.Duration,
	batch int,
	logger *zap.Logger,
	hooks MetricHooks,
) *ExpirationWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ExpirationWorker{
		index:    index,
		expirer:  expirer,
		limiter:  limiter,
		interval: interval,
		batch:    batch,
		logger:   logger,
		hooks:    hooks.withDefaults(),
		now:      time.Now,
	}
}

// Run processes due entries, then sleeps until the next entry is due or the
// interval passes, whichever is sooner. Stops cleanly when ctx is cancelled.
func (w *ExpirationWorker) Run(ctx context.Context) {
	w.logger.Info("expiration worker started", zap.Duration("interval", w.interval))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("expiration worker stopping")
			return
		case <-timer.C:
			start := time.Now()
			processed, err := w.RunOnce(ctx)
			w.hooks.OnCycle("expiration", time.Since(start))
			if err != nil {
				w.logger.Error("expiration poll error", zap.Error(err))
			}

			sleep := w.nextSleep(ctx)
			if w.batch > 0 && processed >= w.batch {
				sleep = minSleep
			}
			timer.Reset(sleep)
		}
	}
}

// RunOnce handles one batch of due entries. It returns how many entries it
// resolved (removed from the index).
func (w *ExpirationWorker) RunOnce(ctx context.Context) (int, error) {
	due, err := w.index.Due(ctx, w.now(), w.batch)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, e := range due {
		if ctx.Err() != nil {
			break
		}
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				break
			}
		}
		if w.expireOne(ctx, e) {
			resolved++
		}
	}

	if depth, err := w.index.Len(ctx); err == nil {
		w.hooks.OnIndexDepth(depth)
	}
	if resolved > 0 {
		w.logger.Info("processed due expirations", zap.Int("count", resolved))
	}
	return resolved, nil
}

func (w *ExpirationWorker) expireOne(ctx context.Context, e expiry.Entry) bool {
	log := w.logger.With(zap.String("item_id", e.ItemID))

	res, err := w.expirer.Expire(ctx, e.ItemID)
	if err != nil {
		log.Error("failed to expire item, will retry next cycle", zap.Error(err))
		return false
	}
	if res.Matched {
		w.hooks.OnExpired()
		log.Debug("item expired", zap.String("event_id", res.Event.ID))
	} else {
		log.Debug("item already expired or deleted")
	}

	if err := w.index.Remove(ctx, e.ItemID); err != nil {
		log.Error("failed to remove index entry", zap.Error(err))
		return false
	}
	return true
}

// nextSleep is min(interval, time until the earliest entry), floored at
// minSleep. An entry still due after a cycle failed in it, so it waits a
// full interval.
func (w *ExpirationWorker) nextSleep(ctx context.Context) time.Duration {
	next, ok, err := w.index.Next(ctx)
	if err != nil || !ok {
		return w.interval
	}
	d := next.ExpiresAt.Sub(w.now())
	if d <= 0 || d > w.interval {
		return w.interval
	}
	if d < minSleep {
		return minSleep
	}
	return d
}
