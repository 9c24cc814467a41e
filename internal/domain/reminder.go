package domain

import "time"

// ReminderStatus tracks the lifecycle of a reminder.
type ReminderStatus string

const (
	ReminderPending  ReminderStatus = "pending"
	ReminderSent     ReminderStatus = "sent"
	ReminderCanceled ReminderStatus = "canceled"
)

// Reminder is a user-set alert for one item. ItemName is denormalized so the
// reminder can be announced without reading the item.
type Reminder struct {
	ID           string         `json:"id"`
	OwnerID      string         `json:"user_id"`
	ItemID       string         `json:"item_id"`
	ItemName     string         `json:"item_name"`
	ReminderDate time.Time      `json:"reminder_date"`
	Message      *string        `json:"message,omitempty"`
	Status       ReminderStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type CreateReminderRequest struct {
	ItemID       string    `json:"item_id"`
	ItemName     string    `json:"item_name"`
	ReminderDate time.Time `json:"reminder_date"`
	Message      *string   `json:"message,omitempty"`
}

func (r *CreateReminderRequest) Validate() error {
	if r.ItemID == "" {
		return ErrInvalidItemID
	}
	if r.ReminderDate.IsZero() {
		return ErrInvalidReminderDate
	}
	return nil
}

type UpdateReminderRequest struct {
	ItemName     *string    `json:"item_name,omitempty"`
	ReminderDate *time.Time `json:"reminder_date,omitempty"`
	Message      *string    `json:"message,omitempty"`
}

func (r *UpdateReminderRequest) IsEmpty() bool {
	return r.ItemName == nil && r.ReminderDate == nil && r.Message == nil
}

// Apply merges the update into a copy of reminder.
func (r *UpdateReminderRequest) Apply(rem Reminder) (Reminder, error) {
	if r.ItemName != nil {
		rem.ItemName = *r.ItemName
	}
	if r.ReminderDate != nil {
		if r.ReminderDate.IsZero() {
			return rem, ErrInvalidReminderDate
		}
		rem.ReminderDate = *r.ReminderDate
	}
	if r.Message != nil {
		rem.Message = r.Message
	}
	return rem, nil
}
