package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
	"github.com/notifyhub/pantry-pipeline/internal/eventbus"
	"github.com/notifyhub/pantry-pipeline/internal/expiry"
	"github.com/notifyhub/pantry-pipeline/internal/provider"
	"github.com/notifyhub/pantry-pipeline/internal/repository"
	"github.com/notifyhub/pantry-pipeline/internal/service"
	"github.com/notifyhub/pantry-pipeline/internal/worker"
)

const group = "notification-service"

// pipeline wires every in-memory piece the workers need.
type pipeline struct {
	items    *repository.MockItemRepository
	notes    *repository.MockNotificationRepository
	bus      *eventbus.MemoryBus
	index    *expiry.MemoryIndex
	pub      *eventbus.Publisher
	expirer  *service.Expirer
	notifier *recordingNotifier
	inbox    *service.NotificationService
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	p := &pipeline{
		items:    repository.NewMockItemRepository(),
		notes:    repository.NewMockNotificationRepository(),
		bus:      eventbus.NewMemoryBus(),
		index:    expiry.NewMemoryIndex(),
		notifier: &recordingNotifier{},
	}
	p.pub = eventbus.NewPublisher(p.bus, zap.NewNop(), nil)
	p.expirer = service.NewExpirer(p.items, p.items, p.pub, zap.NewNop())
	p.inbox = service.NewNotificationService(p.notes, p.notifier, zap.NewNop(), nil)
	if err := p.bus.CreateGroup(context.Background(), group, "0"); err != nil {
		t.Fatalf("create group: %v", err)
	}
	return p
}

// addItem stores an Active item and indexes its expiry.
func (p *pipeline) addItem(t *testing.T, id string, expiresAt time.Time) {
	t.Helper()
	ctx := context.Background()
	it := &domain.Item{
		ID:           id,
		OwnerID:      "user-1",
		Name:         "item " + id,
		Quantity:     1,
		PurchaseDate: expiresAt.Add(-72 * time.Hour),
		ExpiryDate:   &expiresAt,
		Status:       domain.ItemActive,
		CreatedAt:    time.Now().UTC(),
	}
	if err := p.items.Create(ctx, it); err != nil {
		t.Fatalf("create item: %v", err)
	}
	if err := p.index.Upsert(ctx, id, expiresAt); err != nil {
		t.Fatalf("index item: %v", err)
	}
}

func (p *pipeline) expirationWorker() *worker.ExpirationWorker {
	return worker.NewExpirationWorker(p.index, p.expirer, nil, time.Second, 100, zap.NewNop(), worker.MetricHooks{})
}

func (p *pipeline) consumer(name string) *worker.Consumer {
	return worker.NewConsumer(p.bus, p.inbox, worker.ConsumerConfig{
		Group:     group,
		Name:      name,
		BatchSize: 10,
		Block:     10 * time.Millisecond,
	}, zap.NewNop(), worker.MetricHooks{})
}

// drain reads and handles everything currently on the stream with c.
func drain(t *testing.T, p *pipeline, c *worker.Consumer, name string) {
	t.Helper()
	ctx := context.Background()
	for {
		msgs, err := p.bus.ReadGroup(ctx, group, name, 10, 0)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(msgs) == 0 {
			return
		}
		for _, m := range msgs {
			c.Handle(ctx, m)
		}
	}
}

func notificationsByEvent(p *pipeline) map[string]int {
	out := map[string]int{}
	for _, n := range p.notes.All() {
		out[n.EventID]++
	}
	return out
}

type recordingNotifier struct {
	mu     sync.Mutex
	pushed []*domain.Notification
	fail   bool
}

func (r *recordingNotifier) Push(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("webhook unreachable")
	}
	r.pushed = append(r.pushed, n)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pushed)
}

var _ provider.Notifier = (*recordingNotifier)(nil)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
