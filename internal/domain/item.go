package domain

import "time"

// ItemStatus is the expiration state of an item.
type ItemStatus string

const (
	ItemActive  ItemStatus = "Active"
	ItemExpired ItemStatus = "Expired"
)

// Item is a perishable grocery item owned by a single user.
type Item struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"user_id"`
	Name         string     `json:"name"`
	Quantity     float64    `json:"quantity"`
	Price        float64    `json:"price"`
	Category     string     `json:"category,omitempty"`
	PurchaseDate time.Time  `json:"purchase_date"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
	ReminderDate *time.Time `json:"reminder_date,omitempty"`
	Status       ItemStatus `json:"status"`
	ExpiredAt    *time.Time `json:"expired_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsDue reports whether the item's expiry date has been reached at now.
// Items without an expiry date are never due.
func (i *Item) IsDue(now time.Time) bool {
	return i.ExpiryDate != nil && !i.ExpiryDate.After(now)
}

// CreateItemRequest is the inbound payload for a new item.
type CreateItemRequest struct {
	Name         string     `json:"name"`
	Quantity     float64    `json:"quantity"`
	Price        float64    `json:"price"`
	Category     string     `json:"category"`
	PurchaseDate time.Time  `json:"purchase_date"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
	ReminderDate *time.Time `json:"reminder_date,omitempty"`
}

func (r *CreateItemRequest) Validate() error {
	if r.Name == "" {
		return ErrInvalidName
	}
	if r.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if r.Price < 0 {
		return ErrInvalidPrice
	}
	if r.PurchaseDate.IsZero() {
		return ErrInvalidPurchaseDate
	}
	return validateReminderBeforeExpiry(r.ReminderDate, r.ExpiryDate)
}

// UpdateItemRequest carries a partial update. Nil fields are left unchanged.
// ClearExpiry removes the expiry date (and with it the expiration schedule).
type UpdateItemRequest struct {
	Name         *string    `json:"name,omitempty"`
	Quantity     *float64   `json:"quantity,omitempty"`
	Price        *float64   `json:"price,omitempty"`
	Category     *string    `json:"category,omitempty"`
	PurchaseDate *time.Time `json:"purchase_date,omitempty"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
	ReminderDate *time.Time `json:"reminder_date,omitempty"`
	ClearExpiry  bool       `json:"clear_expiry,omitempty"`
}

func (r *UpdateItemRequest) IsEmpty() bool {
	return r.Name == nil && r.Quantity == nil && r.Price == nil && r.Category == nil &&
		r.PurchaseDate == nil && r.ExpiryDate == nil && r.ReminderDate == nil && !r.ClearExpiry
}

// Apply merges the update into a copy of item and validates the result.
func (r *UpdateItemRequest) Apply(item Item) (Item, error) {
	if r.Name != nil {
		item.Name = *r.Name
	}
	if r.Quantity != nil {
		item.Quantity = *r.Quantity
	}
	if r.Price != nil {
		item.Price = *r.Price
	}
	if r.Category != nil {
		item.Category = *r.Category
	}
	if r.PurchaseDate != nil {
		item.PurchaseDate = *r.PurchaseDate
	}
	if r.ExpiryDate != nil {
		item.ExpiryDate = r.ExpiryDate
	}
	if r.ClearExpiry {
		item.ExpiryDate = nil
	}
	if r.ReminderDate != nil {
		item.ReminderDate = r.ReminderDate
	}

	switch {
	case item.Name == "":
		return item, ErrInvalidName
	case item.Quantity <= 0:
		return item, ErrInvalidQuantity
	case item.Price < 0:
		return item, ErrInvalidPrice
	}
	return item, validateReminderBeforeExpiry(item.ReminderDate, item.ExpiryDate)
}

func validateReminderBeforeExpiry(reminder, expiry *time.Time) error {
	if reminder == nil || expiry == nil {
		return nil
	}
	if !reminder.Before(*expiry) {
		return ErrReminderAfterExpiry
	}
	return nil
}
