package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
	"github.com/notifyhub/pantry-pipeline/internal/eventbus"
	"github.com/notifyhub/pantry-pipeline/internal/expiry"
	"github.com/notifyhub/pantry-pipeline/internal/repository"
	"github.com/notifyhub/pantry-pipeline/internal/scheduler"
	"github.com/notifyhub/pantry-pipeline/internal/service"
	"github.com/notifyhub/pantry-pipeline/internal/worker"
)

type fixture struct {
	items     *repository.MockItemRepository
	reminders *repository.MockReminderRepository
	index     *expiry.MemoryIndex
	jobs      *scheduler.MemoryStore
	bus       *eventbus.MemoryBus
	closed    bool
}

func newFixture() *fixture {
	return &fixture{
		items:     repository.NewMockItemRepository(),
		reminders: repository.NewMockReminderRepository(),
		index:     expiry.NewMemoryIndex(),
		jobs:      scheduler.NewMemoryStore(),
		bus:       eventbus.NewMemoryBus(),
	}
}

func (f *fixture) open(context.Context) (*deps, func(), error) {
	log := zap.NewNop()
	sched := scheduler.New(f.jobs)
	pub := eventbus.NewPublisher(f.bus, log, nil)
	return &deps{
		reconciler: service.NewReconciler(f.items, f.reminders, f.index, sched, log),
		newRelay: func(grace time.Duration, batch int) *worker.OutboxRelay {
			return worker.NewOutboxRelay(f.items, pub, nil, time.Second, grace, batch, log, worker.MetricHooks{})
		},
		index: f.index,
		sched: sched,
	}, func() { f.closed = true }, nil
}

func run(t *testing.T, open opener, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(open)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestReconcileIndex(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	_ = f.items.Create(ctx, &domain.Item{ID: "milk", OwnerID: "u1", Name: "Milk", ExpiryDate: &exp, Status: domain.ItemActive})

	out, err := run(t, f.open, "reconcile", "index")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "indexed 1 items") {
		t.Fatalf("unexpected output %q", out)
	}
	if _, ok := f.index.Contains("milk"); !ok {
		t.Fatal("expected item indexed")
	}
	if !f.closed {
		t.Fatal("dependencies must be closed after the command")
	}
}

func TestReconcileJobs(t *testing.T) {
	f := newFixture()
	_ = f.reminders.Create(context.Background(), &domain.Reminder{
		ID: "r1", OwnerID: "u1", ReminderDate: time.Now().Add(time.Hour), Status: domain.ReminderPending,
	})

	out, err := run(t, f.open, "reconcile", "jobs")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "scheduled 1 jobs, canceled 0 orphans") {
		t.Fatalf("unexpected output %q", out)
	}
	if _, ok := f.jobs.Get(service.SendReminderJob, "r1"); !ok {
		t.Fatal("expected a job for the pending reminder")
	}
}

func TestOutboxReplay(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		exp := time.Now().Add(-time.Hour)
		_ = f.items.Create(ctx, &domain.Item{ID: id, OwnerID: "u1", Name: id, ExpiryDate: &exp, Status: domain.ItemActive})
		if _, err := f.items.Expire(ctx, id, time.Now()); err != nil {
			t.Fatalf("expire: %v", err)
		}
	}
	time.Sleep(2 * time.Millisecond)

	out, err := run(t, f.open, "outbox", "replay", "--batch", "2")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "replayed 3 events") {
		t.Fatalf("unexpected output %q", out)
	}
	if got := len(f.bus.EventsOfType(domain.EventItemExpired)); got != 3 {
		t.Fatalf("expected 3 events on the bus, got %d", got)
	}

	out, _ = run(t, f.open, "outbox", "replay")
	if !strings.Contains(out, "replayed 0 events") {
		t.Fatalf("second replay must be a no-op, got %q", out)
	}
}

func TestOutboxPrune(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	exp := time.Now().Add(-time.Hour)
	_ = f.items.Create(ctx, &domain.Item{ID: "milk", OwnerID: "u1", Name: "Milk", ExpiryDate: &exp, Status: domain.ItemActive})
	res, err := f.items.Expire(ctx, "milk", time.Now())
	if err != nil {
		t.Fatalf("expire: %v", err)
	}

	// Unpublished rows are kept whatever their age.
	if out, err := run(t, f.open, "outbox", "prune", "--older-than", "0s"); err != nil || !strings.Contains(out, "pruned 0 events") {
		t.Fatalf("unexpected output %q (%v)", out, err)
	}

	_ = f.items.MarkPublished(ctx, res.Event.ID, time.Now().Add(-48*time.Hour))
	if out, _ := run(t, f.open, "outbox", "prune", "--older-than", "72h"); !strings.Contains(out, "pruned 0 events") {
		t.Fatalf("recent rows must be kept, got %q", out)
	}
	out, err := run(t, f.open, "outbox", "prune", "--older-than", "24h")
	if err != nil || !strings.Contains(out, "pruned 1 events") {
		t.Fatalf("unexpected output %q (%v)", out, err)
	}
	if len(f.items.Outbox()) != 0 {
		t.Fatal("expected the published row to be deleted")
	}
}

func TestStatus(t *testing.T) {
	f := newFixture()
	_ = f.index.Upsert(context.Background(), "milk", time.Now().Add(time.Hour))

	out, err := run(t, f.open, "status")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "expiration index: 1 entries") || !strings.Contains(out, "milk") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestConnectFailure(t *testing.T) {
	failing := func(context.Context) (*deps, func(), error) {
		return nil, nil, errors.New("dial tcp: connection refused")
	}
	if _, err := run(t, failing, "reconcile", "index"); err == nil {
		t.Fatal("expected connect error")
	}
}
