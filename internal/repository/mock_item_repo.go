package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
)

// MockItemRepository is a hand-written, in-memory ItemRepository and
// OutboxRepository used in unit tests. Expire writes the status change and
// the outbox row under one lock, mirroring the PostgreSQL transaction.
type MockItemRepository struct {
	mu     sync.RWMutex
	items  map[string]*domain.Item
	outbox map[string]*domain.OutboxEvent
	writes int

	// Optional error overrides, set in tests to simulate failure paths.
	CreateErr error
	ExpireErr error
	UpdateErr error
}

func NewMockItemRepository() *MockItemRepository {
	return &MockItemRepository{
		items:  make(map[string]*domain.Item),
		outbox: make(map[string]*domain.OutboxEvent),
	}
}

// Writes returns the number of successful state-changing calls.
func (m *MockItemRepository) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *MockItemRepository) Create(_ context.Context, it *domain.Item) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *it
	m.items[it.ID] = &clone
	m.writes++
	return nil
}

func (m *MockItemRepository) GetByID(_ context.Context, id string) (*domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *it
	return &clone, nil
}

func (m *MockItemRepository) ListByOwner(_ context.Context, ownerID string) ([]*domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Item
	for _, it := range m.items {
		if it.OwnerID == ownerID {
			clone := *it
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *MockItemRepository) ListActiveWithExpiry(_ context.Context) ([]*domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Item
	for _, it := range m.items {
		if it.Status == domain.ItemActive && it.ExpiryDate != nil {
			clone := *it
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (m *MockItemRepository) Update(_ context.Context, it *domain.Item) error {
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.items[it.ID]
	if !ok {
		return domain.ErrNotFound
	}
	status, expiredAt := existing.Status, existing.ExpiredAt
	clone := *it
	clone.Status, clone.ExpiredAt = status, expiredAt
	m.items[it.ID] = &clone
	m.writes++
	return nil
}

func (m *MockItemRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.items, id)
	m.writes++
	return nil
}

func (m *MockItemRepository) UpdateStatus(_ context.Context, id string, from, to domain.ItemStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.Status != from {
		return false, nil
	}
	it.Status = to
	if to == domain.ItemExpired {
		now := time.Now().UTC()
		it.ExpiredAt = &now
	} else {
		it.ExpiredAt = nil
	}
	m.writes++
	return true, nil
}

func (m *MockItemRepository) Expire(_ context.Context, id string, at time.Time) (ExpireResult, error) {
	if m.ExpireErr != nil {
		return ExpireResult{}, m.ExpireErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.Status != domain.ItemActive {
		return ExpireResult{}, nil
	}
	expiredAt := at.UTC()
	it.Status = domain.ItemExpired
	it.ExpiredAt = &expiredAt
	it.UpdatedAt = expiredAt
	m.writes++

	clone := *it
	ev := domain.NewItemExpiredEvent(&clone, at)
	m.outbox[ev.ID] = &domain.OutboxEvent{Event: ev, CreatedAt: expiredAt}
	return ExpireResult{Matched: true, Item: &clone, Event: ev}, nil
}

func (m *MockItemRepository) ListUnpublished(_ context.Context, createdBefore time.Time, limit int) ([]domain.OutboxEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.OutboxEvent
	for _, oe := range m.outbox {
		if oe.PublishedAt == nil && oe.CreatedAt.Before(createdBefore) {
			result = append(result, *oe)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockItemRepository) MarkPublished(_ context.Context, eventID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if oe, ok := m.outbox[eventID]; ok && oe.PublishedAt == nil {
		oe.PublishedAt = &at
	}
	return nil
}

func (m *MockItemRepository) DeletePublished(_ context.Context, publishedBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, oe := range m.outbox {
		if oe.PublishedAt != nil && oe.PublishedAt.Before(publishedBefore) {
			delete(m.outbox, id)
			n++
		}
	}
	return n, nil
}

// Outbox returns a snapshot of every outbox row, published or not.
func (m *MockItemRepository) Outbox() []domain.OutboxEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]domain.OutboxEvent, 0, len(m.outbox))
	for _, oe := range m.outbox {
		result = append(result, *oe)
	}
	return result
}

var (
	_ ItemRepository   = (*MockItemRepository)(nil)
	_ OutboxRepository = (*MockItemRepository)(nil)
)
