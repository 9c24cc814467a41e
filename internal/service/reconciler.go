package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/notifyhub/pantry-pipeline/internal/expiry"
	"github.com/notifyhub/pantry-pipeline/internal/repository"
	"github.com/notifyhub/pantry-pipeline/internal/scheduler"
)

// Reconciler rebuilds derived state (index entries, reminder jobs) from the
// record store. Every operation is idempotent and safe to run while the
// service is live.
type Reconciler struct {
	items     repository.ItemRepository
	reminders repository.ReminderRepository
	index     expiry.Index
	sched     *scheduler.Scheduler
	logger    *zap.Logger
}

func NewReconciler(
	items repository.ItemRepository,
	reminders repository.ReminderRepository,
	index expiry.Index,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{items: items, reminders: reminders, index: index, sched: sched, logger: logger}
}

// RebuildIndex upserts an entry for every Active item with an expiry date.
// Items already past their expiry are included; the worker expires them on
// its next cycle.
func (r *Reconciler) RebuildIndex(ctx context.Context) (int, error) {
	items, err := r.items.ListActiveWithExpiry(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active items: %w", err)
	}
	for _, it := range items {
		if err := r.index.Upsert(ctx, it.ID, *it.ExpiryDate); err != nil {
			return 0, fmt.Errorf("index item %s: %w", it.ID, err)
		}
	}
	r.logger.Info("expiration index rebuilt", zap.Int("items", len(items)))
	return len(items), nil
}

// RebuildJobs schedules one job per pending reminder and cancels jobs whose
// reminder is gone or no longer pending. It returns the number scheduled and
// the number canceled.
func (r *Reconciler) RebuildJobs(ctx context.Context) (scheduled, canceled int, err error) {
	pending, err := r.reminders.ListPending(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list pending reminders: %w", err)
	}
	live := make(map[string]bool, len(pending))
	for _, rem := range pending {
		live[rem.ID] = true
		if err := r.sched.Schedule(ctx, rem.ReminderDate, SendReminderJob, rem.ID,
			map[string]string{"reminderId": rem.ID}); err != nil {
			return scheduled, canceled, fmt.Errorf("schedule reminder %s: %w", rem.ID, err)
		}
		scheduled++
	}

	jobs, err := r.sched.Jobs(ctx, SendReminderJob)
	if err != nil {
		return scheduled, canceled, fmt.Errorf("list jobs: %w", err)
	}
	for _, j := range jobs {
		if live[j.Key] {
			continue
		}
		if err := r.sched.Cancel(ctx, SendReminderJob, j.Key); err != nil {
			return scheduled, canceled, fmt.Errorf("cancel orphan job %s: %w", j.Key, err)
		}
		canceled++
	}

	r.logger.Info("reminder jobs rebuilt", zap.Int("scheduled", scheduled), zap.Int("canceled", canceled))
	return scheduled, canceled, nil
}
