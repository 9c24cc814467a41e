package provider

import (
	"context"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
)

// PushRequest is the JSON body posted to the push webhook for every newly
// created notification.
type PushRequest struct {
	NotificationID string `json:"notificationId"`
	UserID         string `json:"userId"`
	Kind           string `json:"kind"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	ItemID         string `json:"itemId,omitempty"`
	ReminderID     string `json:"reminderId,omitempty"`
	ReminderDate   string `json:"reminderDate,omitempty"`
	CreatedAt      string `json:"createdAt"`
}

// Notifier pushes a stored notification to an external channel. Delivery is
// best effort: the record in the store is the source of truth.
type Notifier interface {
	Push(ctx context.Context, n *domain.Notification) error
}

// Nop discards every push. Used when no webhook is configured.
type Nop struct{}

func (Nop) Push(context.Context, *domain.Notification) error { return nil }

var _ Notifier = Nop{}
