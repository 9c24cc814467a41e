package expiry

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryIndex is an in-process Index: a binary min-heap ordered by ExpiresAt
// plus a position map, giving O(log n) Upsert and Remove. It backs unit tests
// and single-process deployments without Redis.
type MemoryIndex struct {
	mu  sync.Mutex
	h   entryHeap
	pos map[string]int
}

func NewMemoryIndex() *MemoryIndex {
	m := &MemoryIndex{pos: make(map[string]int)}
	m.h.pos = m.pos
	return m
}

func (m *MemoryIndex) Upsert(_ context.Context, itemID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.pos[itemID]; ok {
		m.h.entries[i].ExpiresAt = expiresAt
		heap.Fix(&m.h, i)
		return nil
	}
	heap.Push(&m.h, Entry{ItemID: itemID, ExpiresAt: expiresAt})
	return nil
}

func (m *MemoryIndex) Remove(_ context.Context, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.pos[itemID]; ok {
		heap.Remove(&m.h, i)
	}
	return nil
}

func (m *MemoryIndex) Due(_ context.Context, now time.Time, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []Entry
	for _, e := range m.h.entries {
		if !e.ExpiresAt.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ExpiresAt.Before(due[j].ExpiresAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *MemoryIndex) Next(_ context.Context) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.h.entries) == 0 {
		return Entry{}, false, nil
	}
	return m.h.entries[0], true, nil
}

func (m *MemoryIndex) Len(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.h.entries)), nil
}

// Contains reports whether itemID has an entry, and its score.
func (m *MemoryIndex) Contains(itemID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.pos[itemID]
	if !ok {
		return time.Time{}, false
	}
	return m.h.entries[i].ExpiresAt, true
}

// entryHeap implements heap.Interface and keeps pos in sync on every swap.
type entryHeap struct {
	entries []Entry
	pos     map[string]int
}

func (h entryHeap) Len() int { return len(h.entries) }

func (h entryHeap) Less(i, j int) bool {
	return h.entries[i].ExpiresAt.Before(h.entries[j].ExpiresAt)
}

func (h entryHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.pos[h.entries[i].ItemID] = i
	h.pos[h.entries[j].ItemID] = j
}

func (h *entryHeap) Push(x any) {
	e := x.(Entry)
	h.pos[e.ItemID] = len(h.entries)
	h.entries = append(h.entries, e)
}

func (h *entryHeap) Pop() any {
	n := len(h.entries)
	e := h.entries[n-1]
	h.entries = h.entries[:n-1]
	delete(h.pos, e.ItemID)
	return e
}

var _ Index = (*MemoryIndex)(nil)
