package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func TestCreateItemRequest_Validate(t *testing.T) {
	now := time.Now().UTC()
	valid := domain.CreateItemRequest{
		Name:         "Milk",
		Quantity:     1,
		Price:        1.99,
		PurchaseDate: now,
		ExpiryDate:   ptr(now.Add(72 * time.Hour)),
	}

	t.Run("valid request passes", func(t *testing.T) {
		if err := valid.Validate(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("empty name", func(t *testing.T) {
		r := valid
		r.Name = ""
		if err := r.Validate(); err != domain.ErrInvalidName {
			t.Fatalf("expected ErrInvalidName, got %v", err)
		}
	})

	t.Run("zero quantity", func(t *testing.T) {
		r := valid
		r.Quantity = 0
		if err := r.Validate(); err != domain.ErrInvalidQuantity {
			t.Fatalf("expected ErrInvalidQuantity, got %v", err)
		}
	})

	t.Run("missing purchase date", func(t *testing.T) {
		r := valid
		r.PurchaseDate = time.Time{}
		if err := r.Validate(); err != domain.ErrInvalidPurchaseDate {
			t.Fatalf("expected ErrInvalidPurchaseDate, got %v", err)
		}
	})

	t.Run("reminder on expiry date is rejected", func(t *testing.T) {
		r := valid
		r.ReminderDate = valid.ExpiryDate
		if err := r.Validate(); err != domain.ErrReminderAfterExpiry {
			t.Fatalf("expected ErrReminderAfterExpiry, got %v", err)
		}
	})

	t.Run("reminder without expiry passes", func(t *testing.T) {
		r := valid
		r.ExpiryDate = nil
		r.ReminderDate = ptr(now.Add(time.Hour))
		if err := r.Validate(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})
}

func TestUpdateItemRequest_Apply(t *testing.T) {
	now := time.Now().UTC()
	item := domain.Item{
		ID: "i1", Name: "Eggs", Quantity: 12, PurchaseDate: now,
		ExpiryDate:   ptr(now.Add(48 * time.Hour)),
		ReminderDate: ptr(now.Add(24 * time.Hour)),
		Status:       domain.ItemActive,
	}

	t.Run("clear expiry", func(t *testing.T) {
		req := domain.UpdateItemRequest{ClearExpiry: true}
		got, err := req.Apply(item)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ExpiryDate != nil {
			t.Fatal("expected expiry date to be cleared")
		}
		if item.ExpiryDate == nil {
			t.Fatal("Apply must not mutate the original item")
		}
	})

	t.Run("moving expiry before reminder is rejected", func(t *testing.T) {
		req := domain.UpdateItemRequest{ExpiryDate: ptr(now.Add(time.Hour))}
		if _, err := req.Apply(item); err != domain.ErrReminderAfterExpiry {
			t.Fatalf("expected ErrReminderAfterExpiry, got %v", err)
		}
	})

	t.Run("empty update detected", func(t *testing.T) {
		req := domain.UpdateItemRequest{}
		if !req.IsEmpty() {
			t.Fatal("expected IsEmpty to be true")
		}
	})
}

func TestItem_IsDue(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name   string
		expiry *time.Time
		want   bool
	}{
		{"no expiry", nil, false},
		{"future expiry", ptr(now.Add(time.Minute)), false},
		{"exactly now", ptr(now), true},
		{"past expiry", ptr(now.Add(-time.Hour)), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			item := domain.Item{ExpiryDate: tc.expiry}
			if got := item.IsDue(now); got != tc.want {
				t.Fatalf("IsDue = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseEvent(t *testing.T) {
	t.Run("stream values round trip", func(t *testing.T) {
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		item := &domain.Item{ID: "i1", OwnerID: "u1", Name: "Yogurt"}
		ev := domain.NewItemExpiredEvent(item, at)

		got, err := domain.ParseEvent(ev.Values())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ID != ev.ID || got.Type != domain.EventItemExpired || got.ItemName != "Yogurt" {
			t.Fatalf("unexpected event: %+v", got)
		}
		if got.ExpiredAt == nil || !got.ExpiredAt.Equal(at) {
			t.Fatalf("expected expiredAt %v, got %v", at, got.ExpiredAt)
		}
	})

	t.Run("missing user id", func(t *testing.T) {
		_, err := domain.ParseEvent(map[string]any{"type": "item.created"})
		if !errors.Is(err, domain.ErrMalformedEvent) {
			t.Fatalf("expected ErrMalformedEvent, got %v", err)
		}
	})

	t.Run("bad timestamp", func(t *testing.T) {
		_, err := domain.ParseEvent(map[string]any{
			"type": "reminder.set", "userId": "u1", "reminderDate": "tomorrow",
		})
		if !errors.Is(err, domain.ErrMalformedEvent) {
			t.Fatalf("expected ErrMalformedEvent, got %v", err)
		}
	})

	t.Run("unknown type is not malformed", func(t *testing.T) {
		got, err := domain.ParseEvent(map[string]any{"type": "item.renamed", "userId": "u1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Type != "item.renamed" {
			t.Fatalf("unexpected type %q", got.Type)
		}
	})
}

func TestNewReminderDueEvent_StableID(t *testing.T) {
	when := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	r := &domain.Reminder{ID: "r1", OwnerID: "u1", ItemName: "Milk", ReminderDate: when}

	a, b := domain.NewReminderDueEvent(r), domain.NewReminderDueEvent(r)
	if a.ID != b.ID {
		t.Fatalf("same reminder firing produced ids %s and %s", a.ID, b.ID)
	}

	r.ReminderDate = when.Add(time.Hour)
	if c := domain.NewReminderDueEvent(r); c.ID == a.ID {
		t.Fatal("rescheduled reminder must get a new event id")
	}
}
