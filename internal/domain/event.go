package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a domain event carried on the notification stream.
type EventType string

const (
	EventItemCreated EventType = "item.created"
	EventItemExpired EventType = "item.expired"
	EventReminderSet EventType = "reminder.set"
	EventReminderDue EventType = "reminder.due"
)

// Event is an immutable domain event. ID is assigned once at creation and is
// carried on the wire, so a redelivered or replayed event keeps its identity.
type Event struct {
	ID           string     `json:"id"`
	Type         EventType  `json:"type"`
	OwnerID      string     `json:"user_id"`
	ItemID       string     `json:"item_id,omitempty"`
	ItemName     string     `json:"item_name,omitempty"`
	ReminderID   string     `json:"reminder_id,omitempty"`
	ReminderDate *time.Time `json:"reminder_date,omitempty"`
	ExpiredAt    *time.Time `json:"expired_at,omitempty"`
}

// Wire field names. All values on the stream are strings.
const (
	fieldEventID      = "eventId"
	fieldType         = "type"
	fieldUserID       = "userId"
	fieldItemID       = "itemId"
	fieldItemName     = "itemName"
	fieldReminderID   = "reminderId"
	fieldReminderDate = "reminderDate"
	fieldExpiredAt    = "expiredAt"
)

func NewItemCreatedEvent(item *Item) Event {
	return Event{
		ID:       uuid.New().String(),
		Type:     EventItemCreated,
		OwnerID:  item.OwnerID,
		ItemID:   item.ID,
		ItemName: item.Name,
	}
}

func NewItemExpiredEvent(item *Item, expiredAt time.Time) Event {
	at := expiredAt.UTC()
	return Event{
		ID:        uuid.New().String(),
		Type:      EventItemExpired,
		OwnerID:   item.OwnerID,
		ItemID:    item.ID,
		ItemName:  item.Name,
		ExpiredAt: &at,
	}
}

func NewReminderSetEvent(r *Reminder) Event {
	at := r.ReminderDate.UTC()
	return Event{
		ID:           uuid.New().String(),
		Type:         EventReminderSet,
		OwnerID:      r.OwnerID,
		ItemID:       r.ItemID,
		ItemName:     r.ItemName,
		ReminderID:   r.ID,
		ReminderDate: &at,
	}
}

// NewReminderDueEvent derives the event id from the reminder id and date, so
// firing the same reminder twice yields the same event and the consumer keeps
// a single notification.
func NewReminderDueEvent(r *Reminder) Event {
	at := r.ReminderDate.UTC()
	name := string(EventReminderDue) + ":" + r.ID + ":" + at.Format(time.RFC3339Nano)
	return Event{
		ID:           uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String(),
		Type:         EventReminderDue,
		OwnerID:      r.OwnerID,
		ItemID:       r.ItemID,
		ItemName:     r.ItemName,
		ReminderID:   r.ID,
		ReminderDate: &at,
	}
}

// Values flattens the event into the string map written to the stream.
// Empty optional fields are omitted.
func (e Event) Values() map[string]any {
	v := map[string]any{
		fieldEventID: e.ID,
		fieldType:    string(e.Type),
		fieldUserID:  e.OwnerID,
	}
	put := func(k, s string) {
		if s != "" {
			v[k] = s
		}
	}
	put(fieldItemID, e.ItemID)
	put(fieldItemName, e.ItemName)
	put(fieldReminderID, e.ReminderID)
	if e.ReminderDate != nil {
		v[fieldReminderDate] = e.ReminderDate.UTC().Format(time.RFC3339Nano)
	}
	if e.ExpiredAt != nil {
		v[fieldExpiredAt] = e.ExpiredAt.UTC().Format(time.RFC3339Nano)
	}
	return v
}

// ParseEvent rebuilds an event from stream values. It returns
// ErrMalformedEvent when type or userId is missing or a timestamp does not
// parse. Unknown types are not an error here; the consumer decides.
func ParseEvent(values map[string]any) (Event, error) {
	str := func(k string) string {
		switch s := values[k].(type) {
		case string:
			return s
		case []byte:
			return string(s)
		}
		return ""
	}

	e := Event{
		ID:         str(fieldEventID),
		Type:       EventType(str(fieldType)),
		OwnerID:    str(fieldUserID),
		ItemID:     str(fieldItemID),
		ItemName:   str(fieldItemName),
		ReminderID: str(fieldReminderID),
	}
	if e.Type == "" || e.OwnerID == "" {
		return Event{}, fmt.Errorf("%w: type and userId are required", ErrMalformedEvent)
	}

	parseTime := func(k string) (*time.Time, error) {
		s := str(k)
		if s == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, k, err)
		}
		return &t, nil
	}

	var err error
	if e.ReminderDate, err = parseTime(fieldReminderDate); err != nil {
		return Event{}, err
	}
	if e.ExpiredAt, err = parseTime(fieldExpiredAt); err != nil {
		return Event{}, err
	}
	return e, nil
}

// OutboxEvent is an event recorded in the same transaction as the state change
// that caused it. PublishedAt stays nil until the event reached the bus.
type OutboxEvent struct {
	Event       Event      `json:"event"`
	CreatedAt   time.Time  `json:"created_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}
