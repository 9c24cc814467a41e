package service_test

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
	"github.com/notifyhub/pantry-pipeline/internal/eventbus"
	"github.com/notifyhub/pantry-pipeline/internal/expiry"
	"github.com/notifyhub/pantry-pipeline/internal/provider"
	"github.com/notifyhub/pantry-pipeline/internal/repository"
	"github.com/notifyhub/pantry-pipeline/internal/scheduler"
	"github.com/notifyhub/pantry-pipeline/internal/service"
)

const owner = "user-1"

type env struct {
	items     *repository.MockItemRepository
	reminders *repository.MockReminderRepository
	notes     *repository.MockNotificationRepository
	index     *expiry.MemoryIndex
	bus       *eventbus.MemoryBus
	jobs      *scheduler.MemoryStore
	sched     *scheduler.Scheduler
	pub       *eventbus.Publisher

	itemSvc     *service.ItemService
	reminderSvc *service.ReminderService
	inbox       *service.NotificationService
	reconciler  *service.Reconciler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		items:     repository.NewMockItemRepository(),
		reminders: repository.NewMockReminderRepository(),
		notes:     repository.NewMockNotificationRepository(),
		index:     expiry.NewMemoryIndex(),
		bus:       eventbus.NewMemoryBus(),
		jobs:      scheduler.NewMemoryStore(),
	}
	log := zap.NewNop()
	e.pub = eventbus.NewPublisher(e.bus, log, nil)
	e.sched = scheduler.New(e.jobs)
	expirer := service.NewExpirer(e.items, e.items, e.pub, log)

	e.itemSvc = service.NewItemService(e.items, e.index, expirer, e.pub, log)
	e.reminderSvc = service.NewReminderService(e.reminders, e.items, e.sched, e.pub, log)
	e.inbox = service.NewNotificationService(e.notes, provider.Nop{}, log, nil)
	e.reconciler = service.NewReconciler(e.items, e.reminders, e.index, e.sched, log)
	return e
}

func ptr[T any](v T) *T { return &v }

func itemRequest(expiry *time.Time) domain.CreateItemRequest {
	return domain.CreateItemRequest{
		Name:         "Milk",
		Quantity:     1,
		PurchaseDate: time.Now().Add(-48 * time.Hour),
		ExpiryDate:   expiry,
	}
}

func (e *env) types() []domain.EventType {
	var out []domain.EventType
	for _, ev := range e.bus.Events() {
		out = append(out, ev.Type)
	}
	return out
}
