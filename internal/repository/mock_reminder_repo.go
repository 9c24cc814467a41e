package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
)

// MockReminderRepository is an in-memory ReminderRepository used in unit tests.
type MockReminderRepository struct {
	mu        sync.RWMutex
	reminders map[string]*domain.Reminder
	writes    int

	GetByIDErr      error
	UpdateErr       error
	UpdateStatusErr error
}

func NewMockReminderRepository() *MockReminderRepository {
	return &MockReminderRepository{reminders: make(map[string]*domain.Reminder)}
}

// Writes returns the number of successful state-changing calls.
func (m *MockReminderRepository) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *MockReminderRepository) Create(_ context.Context, r *domain.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *r
	m.reminders[r.ID] = &clone
	m.writes++
	return nil
}

func (m *MockReminderRepository) GetByID(_ context.Context, id string) (*domain.Reminder, error) {
	if m.GetByIDErr != nil {
		return nil, m.GetByIDErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reminders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *r
	return &clone, nil
}

func (m *MockReminderRepository) ListByOwner(_ context.Context, ownerID string) ([]*domain.Reminder, error) {
	return m.list(func(r *domain.Reminder) bool { return r.OwnerID == ownerID }), nil
}

func (m *MockReminderRepository) ListPending(_ context.Context) ([]*domain.Reminder, error) {
	return m.list(func(r *domain.Reminder) bool { return r.Status == domain.ReminderPending }), nil
}

func (m *MockReminderRepository) list(keep func(*domain.Reminder) bool) []*domain.Reminder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Reminder
	for _, r := range m.reminders {
		if keep(r) {
			clone := *r
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ReminderDate.Before(result[j].ReminderDate) })
	return result
}

func (m *MockReminderRepository) Update(_ context.Context, r *domain.Reminder) error {
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reminders[r.ID]; !ok {
		return domain.ErrNotFound
	}
	clone := *r
	m.reminders[r.ID] = &clone
	m.writes++
	return nil
}

func (m *MockReminderRepository) UpdateStatus(_ context.Context, id string, status domain.ReminderStatus) error {
	if m.UpdateStatusErr != nil {
		return m.UpdateStatusErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
	m.writes++
	return nil
}

func (m *MockReminderRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reminders[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.reminders, id)
	m.writes++
	return nil
}

var _ ReminderRepository = (*MockReminderRepository)(nil)
