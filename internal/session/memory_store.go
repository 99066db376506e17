package session

import (
	"context"
	"sync"
)

// MemoryStore keeps the record in process memory. Used in tests and when
// SESSION_STORE=memory.
type MemoryStore struct {
	mu      sync.Mutex
	current *Session
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil, ErrNotFound
	}
	cp := *m.current
	return &cp, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	if !s.Complete() {
		return errIncomplete
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.current = &cp
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = nil
	return nil
}
