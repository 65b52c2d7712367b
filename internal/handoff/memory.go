package handoff

import (
	"context"
	"sync"
)

// MemoryStore keeps one record in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	record *BookingRecord
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Put(_ context.Context, record BookingRecord) error {
	if record.Reference == "" {
		return ErrEmptyReference
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = &record
	return nil
}

func (s *MemoryStore) Get(_ context.Context) (BookingRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return BookingRecord{}, false, nil
	}
	return *s.record, true, nil
}

// MemorySessions keeps one MemoryStore per session id. Records are lost on
// restart, which readers treat as a missing handoff.
type MemorySessions struct {
	mu     sync.Mutex
	stores map[string]*MemoryStore
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{stores: make(map[string]*MemoryStore)}
}

func (m *MemorySessions) For(sessionID string) Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	store, ok := m.stores[sessionID]
	if !ok {
		store = NewMemoryStore()
		m.stores[sessionID] = store
	}
	return store
}

// Forget drops the session's store.
func (m *MemorySessions) Forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stores, sessionID)
}

// Len reports the number of sessions holding a store.
func (m *MemorySessions) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}

var _ Forgetter = (*MemorySessions)(nil)
