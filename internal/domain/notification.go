package domain

import "time"

// Notification is a user-visible message materialized from a bus event.
// EventID ties it to the event that produced it; one event yields at most one
// notification.
type Notification struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"user_id"`
	EventID      string     `json:"event_id"`
	Kind         EventType  `json:"kind"`
	ItemID       *string    `json:"item_id,omitempty"`
	ReminderID   *string    `json:"reminder_id,omitempty"`
	ReminderDate *time.Time `json:"reminder_date,omitempty"`
	Title        string     `json:"title"`
	Message      string     `json:"message"`
	IsRead       bool       `json:"is_read"`
	CreatedAt    time.Time  `json:"created_at"`
}
