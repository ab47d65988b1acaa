// mock_storage.go - In-memory storage implementation for testing
package testutil

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/energy-monitor/backend/internal/models"
	"github.com/energy-monitor/backend/internal/storage"
)

// ErrInjected is returned by MockStorage operations that were told to fail.
var ErrInjected = errors.New("injected storage failure")

// MockStorage implements storage.Store in memory
type MockStorage struct {
	mu      sync.RWMutex
	current map[string]models.Payload
	history map[string]*models.HistoryFile

	// FailCurrent and FailHistory make the matching writes return
	// ErrInjected.
	FailCurrent bool
	FailHistory bool
}

// NewMockStorage creates an empty mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		current: make(map[string]models.Payload),
		history: make(map[string]*models.HistoryFile),
	}
}

func (m *MockStorage) LoadCurrent(sensorID string) (models.Payload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.current[sensorID]
	if !ok {
		return nil, fmt.Errorf("current state for %s: %w", sensorID, storage.ErrNotFound)
	}
	return p, nil
}

func (m *MockStorage) MergeCurrent(sensorID string, update models.Payload) (models.Payload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCurrent {
		return nil, ErrInjected
	}
	existing := m.current[sensorID]
	if existing == nil {
		existing = models.Payload{}
	}
	merged := existing.Merge(update)
	m.current[sensorID] = merged
	return merged, nil
}

func (m *MockStorage) LoadHistory(sensorID string) (*models.HistoryFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.history[sensorID]
	if !ok {
		return nil, fmt.Errorf("history for %s: %w", sensorID, storage.ErrNotFound)
	}
	return cloneHistory(h), nil
}

func (m *MockStorage) SaveHistory(h *models.HistoryFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailHistory {
		return ErrInjected
	}
	m.history[h.SensorID] = cloneHistory(h)
	return nil
}

func (m *MockStorage) AppendHistory(sensorID string, rec models.HistoryRecord, limit int) (*models.HistoryFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailHistory {
		return nil, ErrInjected
	}
	h, ok := m.history[sensorID]
	if !ok {
		h = models.NewHistoryFile(sensorID)
		m.history[sensorID] = h
	}
	h.Append(rec, limit)
	return cloneHistory(h), nil
}

// ListHistory returns the stored files ordered by sensor ID
func (m *MockStorage) ListHistory() ([]storage.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.history))
	for id := range m.history {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	entries := make([]storage.HistoryEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, storage.HistoryEntry{
			Path: "/mock/historico/" + storage.ShortID(id) + storage.HistorySuffix,
			File: cloneHistory(m.history[id]),
		})
	}
	return entries, nil
}

func (m *MockStorage) RecentHistory(sensorID string, window, interval time.Duration) ([]models.HistoryRecord, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	h, err := m.LoadHistory(sensorID)
	if err != nil {
		return nil, err
	}
	return h.Tail(int(window / interval)), nil
}

// Ensure MockStorage implements storage.Store
var _ storage.Store = (*MockStorage)(nil)

// Test Helper Methods

// AddHistory stores records for a sensor directly
func (m *MockStorage) AddHistory(sensorID string, records ...models.HistoryRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := models.NewHistoryFile(sensorID)
	h.Records = append(h.Records, records...)
	m.history[sensorID] = h
}

// HistoryCount returns the number of sensors with a history
func (m *MockStorage) HistoryCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.history)
}

// Clear removes everything
func (m *MockStorage) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = make(map[string]models.Payload)
	m.history = make(map[string]*models.HistoryFile)
}

func cloneHistory(h *models.HistoryFile) *models.HistoryFile {
	out := &models.HistoryFile{
		SensorID: h.SensorID,
		Records:  make([]models.HistoryRecord, len(h.Records)),
	}
	copy(out.Records, h.Records)
	return out
}
