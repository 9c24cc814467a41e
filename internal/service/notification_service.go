package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
	"github.com/notifyhub/pantry-pipeline/internal/provider"
	"github.com/notifyhub/pantry-pipeline/internal/repository"
)

type template struct {
	title   string
	message string // fmt verb receives the item name
}

var templates = map[domain.EventType]template{
	domain.EventItemCreated: {"New Item Added", "%s was added to your grocery list"},
	domain.EventItemExpired: {"Item Expired", "%s has expired"},
	domain.EventReminderSet: {"Reminder Set", "Reminder set for %s"},
	domain.EventReminderDue: {"Reminder Due", "Reminder is due for %s now"},
}

// NotificationService materializes events into notification records and
// serves the per-user notification inbox.
type NotificationService struct {
	repo      repository.NotificationRepository
	notifier  provider.Notifier
	logger    *zap.Logger
	onCreated func(domain.EventType)
}

// NewNotificationService builds the service. notifier may be provider.Nop{};
// onCreated is optional (nil = no-op).
func NewNotificationService(
	repo repository.NotificationRepository,
	notifier provider.Notifier,
	logger *zap.Logger,
	onCreated func(domain.EventType),
) *NotificationService {
	if onCreated == nil {
		onCreated = func(domain.EventType) {}
	}
	return &NotificationService{repo: repo, notifier: notifier, logger: logger, onCreated: onCreated}
}

// Record turns ev into a notification for its owner. created is false when a
// notification for ev.ID already exists. Unknown event types return
// domain.ErrUnknownEventType and write nothing.
//
// A newly created notification is pushed to the notifier; a push failure is
// logged and not returned.
func (s *NotificationService) Record(ctx context.Context, ev domain.Event) (*domain.Notification, bool, error) {
	n, err := BuildNotification(ev)
	if err != nil {
		return nil, false, err
	}
	created, err := s.repo.Create(ctx, n)
	if err != nil {
		return nil, false, fmt.Errorf("persist notification: %w", err)
	}
	if !created {
		return n, false, nil
	}

	s.onCreated(n.Kind)
	if err := s.notifier.Push(ctx, n); err != nil {
		s.logger.Warn("notification push failed",
			zap.String("notification_id", n.ID), zap.Error(err))
	}
	return n, true, nil
}

// BuildNotification applies the per-type title and message template.
func BuildNotification(ev domain.Event) (*domain.Notification, error) {
	tpl, ok := templates[ev.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownEventType, ev.Type)
	}
	if ev.ID == "" {
		return nil, fmt.Errorf("%w: missing eventId", domain.ErrMalformedEvent)
	}

	n := &domain.Notification{
		ID:        uuid.New().String(),
		OwnerID:   ev.OwnerID,
		EventID:   ev.ID,
		Kind:      ev.Type,
		Title:     tpl.title,
		Message:   fmt.Sprintf(tpl.message, ev.ItemName),
		CreatedAt: time.Now().UTC(),
	}
	switch ev.Type {
	case domain.EventItemCreated, domain.EventItemExpired:
		n.ItemID = optional(ev.ItemID)
	case domain.EventReminderSet:
		n.ReminderID = optional(ev.ReminderID)
		n.ReminderDate = ev.ReminderDate
	case domain.EventReminderDue:
		n.ReminderID = optional(ev.ReminderID)
	}
	return n, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// List returns the owner's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, ownerID string) ([]*domain.Notification, error) {
	if ownerID == "" {
		return nil, domain.ErrMissingOwner
	}
	return s.repo.ListByOwner(ctx, ownerID)
}

// MarkRead marks one unread notification read. A missing, foreign or already
// read notification is domain.ErrNotFound.
func (s *NotificationService) MarkRead(ctx context.Context, ownerID, id string) (*domain.Notification, error) {
	if ownerID == "" {
		return nil, domain.ErrMissingOwner
	}
	return s.repo.MarkRead(ctx, ownerID, id)
}

// MarkAllRead marks every unread notification read and returns how many.
// domain.ErrNothingUnread is returned when there were none.
func (s *NotificationService) MarkAllRead(ctx context.Context, ownerID string) (int64, error) {
	if ownerID == "" {
		return 0, domain.ErrMissingOwner
	}
	n, err := s.repo.MarkAllRead(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, domain.ErrNothingUnread
	}
	return n, nil
}

func (s *NotificationService) Delete(ctx context.Context, ownerID, id string) error {
	if ownerID == "" {
		return domain.ErrMissingOwner
	}
	return s.repo.Delete(ctx, ownerID, id)
}

func (s *NotificationService) DeleteAll(ctx context.Context, ownerID string) (int64, error) {
	if ownerID == "" {
		return 0, domain.ErrMissingOwner
	}
	return s.repo.DeleteAll(ctx, ownerID)
}
