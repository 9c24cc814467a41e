// Package expiry keeps the time-ordered index of items waiting to expire.
//
// The index is derived state: every entry can be rebuilt from Active items
// that carry an expiry date. Due never removes entries; the caller removes
// each one explicitly once it has been resolved, so a crash between Due and
// Remove only causes the entry to be seen again.
package expiry

import (
	"context"
	"time"
)

// Entry is one item's scheduled expiry.
type Entry struct {
	ItemID    string
	ExpiresAt time.Time
}

// Index is a time-ordered set of entries keyed by item id.
type Index interface {
	// Upsert inserts or replaces the entry for itemID.
	Upsert(ctx context.Context, itemID string, expiresAt time.Time) error
	// Remove deletes the entry for itemID. Removing a missing entry is a no-op.
	Remove(ctx context.Context, itemID string) error
	// Due returns up to limit entries with ExpiresAt <= now, earliest first.
	// limit <= 0 means no limit.
	Due(ctx context.Context, now time.Time, limit int) ([]Entry, error)
	// Next returns the earliest entry, or ok=false when the index is empty.
	Next(ctx context.Context) (entry Entry, ok bool, err error)
	// Len returns the number of entries.
	Len(ctx context.Context) (int64, error)
}
