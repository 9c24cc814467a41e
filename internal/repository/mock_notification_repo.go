package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
)

var errMockWrite = errors.New("mock: simulated write failure")

// MockNotificationRepository is a hand-written, in-memory implementation of
// NotificationRepository used in unit tests. No mock-generation library needed.
type MockNotificationRepository struct {
	mu            sync.RWMutex
	notifications map[string]*domain.Notification
	byEvent       map[string]string

	// CreateErr, when set, fails every Create call.
	CreateErr error
	// FailCreates fails the next n Create calls, then succeeds.
	FailCreates int
}

func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{
		notifications: make(map[string]*domain.Notification),
		byEvent:       make(map[string]string),
	}
}

func (m *MockNotificationRepository) Create(_ context.Context, n *domain.Notification) (bool, error) {
	if m.CreateErr != nil {
		return false, m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreates > 0 {
		m.FailCreates--
		return false, errMockWrite
	}
	if _, dup := m.byEvent[n.EventID]; dup {
		return false, nil
	}
	clone := *n
	m.notifications[n.ID] = &clone
	m.byEvent[n.EventID] = n.ID
	return true, nil
}

// All returns every stored notification regardless of owner.
func (m *MockNotificationRepository) All() []*domain.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		clone := *n
		result = append(result, &clone)
	}
	return result
}

func (m *MockNotificationRepository) ListByOwner(_ context.Context, ownerID string) ([]*domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Notification
	for _, n := range m.notifications {
		if n.OwnerID == ownerID {
			clone := *n
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *MockNotificationRepository) MarkRead(_ context.Context, ownerID, id string) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.OwnerID != ownerID || n.IsRead {
		return nil, domain.ErrNotFound
	}
	n.IsRead = true
	clone := *n
	return &clone, nil
}

func (m *MockNotificationRepository) MarkAllRead(_ context.Context, ownerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, n := range m.notifications {
		if n.OwnerID == ownerID && !n.IsRead {
			n.IsRead = true
			count++
		}
	}
	return count, nil
}

func (m *MockNotificationRepository) Delete(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.OwnerID != ownerID {
		return domain.ErrNotFound
	}
	delete(m.notifications, id)
	delete(m.byEvent, n.EventID)
	return nil
}

func (m *MockNotificationRepository) DeleteAll(_ context.Context, ownerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for id, n := range m.notifications {
		if n.OwnerID == ownerID {
			delete(m.notifications, id)
			delete(m.byEvent, n.EventID)
			count++
		}
	}
	return count, nil
}

var _ NotificationRepository = (*MockNotificationRepository)(nil)
