package repository

import (
	"context"
	"time"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
)

// ItemRepository persists items. The pgx implementation is in pg_item_repo.go.
// Tests use a hand-written mock (mock_item_repo.go).
type ItemRepository interface {
	Create(ctx context.Context, item *domain.Item) error
	GetByID(ctx context.Context, id string) (*domain.Item, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Item, error)
	// ListActiveWithExpiry returns every Active item that has an expiry date.
	// Used to rebuild the expiration index.
	ListActiveWithExpiry(ctx context.Context) ([]*domain.Item, error)
	// Update writes the mutable fields of item. It never changes status.
	Update(ctx context.Context, item *domain.Item) error
	Delete(ctx context.Context, id string) error

	// UpdateStatus sets status=to where id matches and status=from.
	// matched is false when no row was in the from state.
	UpdateStatus(ctx context.Context, id string, from, to domain.ItemStatus) (matched bool, err error)

	// Expire applies the Active->Expired transition and records the
	// item.expired event in the outbox within one transaction.
	Expire(ctx context.Context, id string, at time.Time) (ExpireResult, error)
}

// ExpireResult reports the outcome of ItemRepository.Expire. When Matched is
// false the item was already expired or no longer exists and nothing was
// written.
type ExpireResult struct {
	Matched bool
	Item    *domain.Item
	Event   domain.Event
}

// OutboxRepository reads back events recorded by ItemRepository.Expire.
type OutboxRepository interface {
	ListUnpublished(ctx context.Context, createdBefore time.Time, limit int) ([]domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, eventID string, at time.Time) error
	// DeletePublished drops rows published before the cutoff and returns how
	// many. Unpublished rows are never deleted.
	DeletePublished(ctx context.Context, publishedBefore time.Time) (int64, error)
}

type ReminderRepository interface {
	Create(ctx context.Context, r *domain.Reminder) error
	GetByID(ctx context.Context, id string) (*domain.Reminder, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Reminder, error)
	ListPending(ctx context.Context) ([]*domain.Reminder, error)
	// Update writes item name, date, message and status.
	Update(ctx context.Context, r *domain.Reminder) error
	UpdateStatus(ctx context.Context, id string, status domain.ReminderStatus) error
	Delete(ctx context.Context, id string) error
}

type NotificationRepository interface {
	// Create inserts n unless a notification for n.EventID already exists.
	// created is false for such a duplicate, which is not an error.
	Create(ctx context.Context, n *domain.Notification) (created bool, err error)
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Notification, error)
	MarkRead(ctx context.Context, ownerID, id string) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, ownerID string) (int64, error)
	Delete(ctx context.Context, ownerID, id string) error
	DeleteAll(ctx context.Context, ownerID string) (int64, error)
}
