package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound            = errors.New("not found")
	ErrMissingOwner        = errors.New("missing user id")
	ErrEmptyUpdate         = errors.New("request body is required")
	ErrInvalidName         = errors.New("name must not be empty")
	ErrInvalidQuantity     = errors.New("quantity must be greater than zero")
	ErrInvalidPrice        = errors.New("price must not be negative")
	ErrInvalidPurchaseDate = errors.New("purchase date is required")
	ErrReminderAfterExpiry = errors.New("reminder date must be before expiry date")
	ErrInvalidItemID       = errors.New("item id is required")
	ErrInvalidReminderDate = errors.New("reminder date is required")
	ErrNothingUnread       = errors.New("no unread notifications to mark")
	ErrMalformedEvent      = errors.New("malformed event payload")
	ErrUnknownEventType    = errors.New("unknown event type")
)
