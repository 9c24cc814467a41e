package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/pantry-pipeline/internal/scheduler"
)

const jobName = "send reminder"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setup(clock *fakeClock) (*scheduler.Scheduler, *scheduler.Dispatcher, *scheduler.MemoryStore) {
	store := scheduler.NewMemoryStore()
	d := scheduler.NewDispatcher(store, scheduler.DispatcherConfig{
		Lease: time.Minute,
		Now:   clock.Now,
	}, zap.NewNop())
	return scheduler.New(store), d, store
}

func TestDispatcher_NeverFiresBeforeFireAt(t *testing.T) {
	clock := newClock()
	sched, d, store := setup(clock)
	ctx := context.Background()

	var fired []time.Time
	d.Register(jobName, func(_ context.Context, job *scheduler.Job) error {
		fired = append(fired, clock.Now())
		return nil
	})

	fireAt := clock.Now().Add(10 * time.Minute)
	if err := sched.Schedule(ctx, fireAt, jobName, "r1", map[string]string{"reminderId": "r1"}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	clock.Advance(9 * time.Minute)
	if n, _ := d.RunOnce(ctx); n != 0 || len(fired) != 0 {
		t.Fatalf("job fired %v before its time", fired)
	}

	clock.Advance(time.Minute)
	if n, err := d.RunOnce(ctx); err != nil || n != 1 {
		t.Fatalf("expected 1 completion at fire time, got %d (%v)", n, err)
	}
	if fired[0].Before(fireAt) {
		t.Fatalf("fired at %v, before %v", fired[0], fireAt)
	}
	if store.Len() != 0 {
		t.Fatalf("completed job must be removed, %d left", store.Len())
	}

	clock.Advance(time.Hour)
	_, _ = d.RunOnce(ctx)
	if len(fired) != 1 {
		t.Fatalf("job fired %d times, want 1", len(fired))
	}
}

func TestScheduler_CancelThenRescheduleLeavesOneJob(t *testing.T) {
	clock := newClock()
	sched, d, store := setup(clock)
	ctx := context.Background()

	var got []string
	d.Register(jobName, func(_ context.Context, job *scheduler.Job) error {
		got = append(got, job.Payload["note"])
		return nil
	})

	_ = sched.Schedule(ctx, clock.Now().Add(time.Hour), jobName, "r1", map[string]string{"note": "old"})
	if err := sched.Cancel(ctx, jobName, "r1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_ = sched.Schedule(ctx, clock.Now().Add(2*time.Hour), jobName, "r1", map[string]string{"note": "new"})

	if store.Len() != 1 {
		t.Fatalf("expected exactly one job, got %d", store.Len())
	}

	clock.Advance(time.Hour)
	_, _ = d.RunOnce(ctx)
	if len(got) != 0 {
		t.Fatalf("canceled job fired: %v", got)
	}

	clock.Advance(time.Hour)
	_, _ = d.RunOnce(ctx)
	if len(got) != 1 || got[0] != "new" {
		t.Fatalf("expected only the rescheduled job, got %v", got)
	}
}

func TestScheduler_ScheduleSameKeyReplaces(t *testing.T) {
	clock := newClock()
	sched, _, store := setup(clock)
	ctx := context.Background()

	_ = sched.Schedule(ctx, clock.Now().Add(time.Hour), jobName, "r1", nil)
	_ = sched.Schedule(ctx, clock.Now().Add(3*time.Hour), jobName, "r1", nil)
	_ = sched.Schedule(ctx, clock.Now().Add(time.Hour), jobName, "r2", nil)

	if store.Len() != 2 {
		t.Fatalf("expected one job per key, got %d", store.Len())
	}
	j, ok := store.Get(jobName, "r1")
	if !ok || !j.FireAt.Equal(clock.Now().Add(3*time.Hour)) {
		t.Fatalf("expected replaced fire time, got %+v", j)
	}
}

func TestScheduler_CancelMissingIsNoop(t *testing.T) {
	sched, _, _ := setup(newClock())
	if err := sched.Cancel(context.Background(), jobName, "missing"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestDispatcher_RescheduleDuringRunSurvives(t *testing.T) {
	clock := newClock()
	sched, d, store := setup(clock)
	ctx := context.Background()

	later := clock.Now().Add(24 * time.Hour)
	d.Register(jobName, func(ctx context.Context, job *scheduler.Job) error {
		// A request handler moves the reminder while this run is in flight.
		return sched.Schedule(ctx, later, jobName, job.Key, nil)
	})

	_ = sched.Schedule(ctx, clock.Now(), jobName, "r1", nil)
	_, _ = d.RunOnce(ctx)

	j, ok := store.Get(jobName, "r1")
	if !ok {
		t.Fatal("rescheduled job was deleted by the stale run")
	}
	if !j.FireAt.Equal(later) {
		t.Fatalf("expected fire time %v, got %v", later, j.FireAt)
	}
	if j.LockedBy != "" {
		t.Fatalf("rescheduled job must be unclaimed, locked by %q", j.LockedBy)
	}
}

func TestDispatcher_HandlerErrorRetriesNextPoll(t *testing.T) {
	clock := newClock()
	sched, d, store := setup(clock)
	ctx := context.Background()

	var calls int
	var outcomes []error
	d = scheduler.NewDispatcher(store, scheduler.DispatcherConfig{
		Now:     clock.Now,
		OnFired: func(_ string, err error) { outcomes = append(outcomes, err) },
	}, zap.NewNop())
	d.Register(jobName, func(context.Context, *scheduler.Job) error {
		calls++
		if calls == 1 {
			return errors.New("bus unavailable")
		}
		return nil
	})

	_ = sched.Schedule(ctx, clock.Now(), jobName, "r1", nil)
	if n, _ := d.RunOnce(ctx); n != 0 {
		t.Fatalf("failed run must not complete, got %d", n)
	}
	if store.Len() != 1 {
		t.Fatal("failed job must stay in the store")
	}

	if n, _ := d.RunOnce(ctx); n != 1 {
		t.Fatalf("expected retry to complete, got %d", n)
	}
	if calls != 2 || len(outcomes) != 2 || outcomes[0] == nil || outcomes[1] != nil {
		t.Fatalf("unexpected calls=%d outcomes=%v", calls, outcomes)
	}
}

func TestDispatcher_UnregisteredJobIsKept(t *testing.T) {
	clock := newClock()
	sched, _, store := setup(clock)
	ctx := context.Background()

	var got error
	d := scheduler.NewDispatcher(store, scheduler.DispatcherConfig{
		Now:     clock.Now,
		OnFired: func(_ string, err error) { got = err },
	}, zap.NewNop())

	_ = sched.Schedule(ctx, clock.Now(), "unknown", "k", nil)
	_, _ = d.RunOnce(ctx)

	if !errors.Is(got, scheduler.ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", got)
	}
	if j, ok := store.Get("unknown", "k"); !ok || j.LockedBy != "" {
		t.Fatalf("job must remain unclaimed, got %+v", j)
	}
}

func TestMemoryStore_LapsedLeaseIsReclaimable(t *testing.T) {
	clock := newClock()
	sched, _, store := setup(clock)
	ctx := context.Background()

	_ = sched.Schedule(ctx, clock.Now(), jobName, "r1", nil)

	first, _ := store.ClaimDue(ctx, "crashed", clock.Now(), time.Minute, 10)
	if len(first) != 1 {
		t.Fatalf("expected 1 claim, got %d", len(first))
	}
	if again, _ := store.ClaimDue(ctx, "other", clock.Now().Add(30*time.Second), time.Minute, 10); len(again) != 0 {
		t.Fatal("job claimed twice within its lease")
	}

	second, _ := store.ClaimDue(ctx, "recovered", clock.Now().Add(2*time.Minute), time.Minute, 10)
	if len(second) != 1 {
		t.Fatal("lapsed lease must be reclaimable")
	}

	// The crashed run wakes up and tries to complete: its token no longer holds.
	_ = store.Complete(ctx, first[0])
	if store.Len() != 1 {
		t.Fatal("stale token completed a job it no longer owns")
	}
	_ = store.Complete(ctx, second[0])
	if store.Len() != 0 {
		t.Fatal("current lease holder could not complete")
	}
}

func TestDispatcher_ConcurrentDispatchersFireOnce(t *testing.T) {
	clock := newClock()
	store := scheduler.NewMemoryStore()
	sched := scheduler.New(store)
	ctx := context.Background()

	const jobs = 50
	for i := 0; i < jobs; i++ {
		_ = sched.Schedule(ctx, clock.Now(), jobName, string(rune('a'+i%26))+string(rune('A'+i/26)), nil)
	}

	var fired atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		d := scheduler.NewDispatcher(store, scheduler.DispatcherConfig{Now: clock.Now, BatchSize: 5}, zap.NewNop())
		d.Register(jobName, func(context.Context, *scheduler.Job) error {
			fired.Add(1)
			return nil
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if n, _ := d.RunOnce(ctx); n == 0 {
					return
				}
			}
		}()
	}
	wg.Wait()

	if fired.Load() != jobs {
		t.Fatalf("expected %d firings, got %d", jobs, fired.Load())
	}
}

func TestDispatcher_RunStopsOnCancel(t *testing.T) {
	_, d, _ := setup(newClock())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
}
