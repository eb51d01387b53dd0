package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process. It serves local development
// without Redis and tests; sessions do not survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session), now: time.Now}
}

// live reports whether id holds an unexpired session. Callers hold mu.
func (m *MemoryStore) live(id string) bool {
	s, ok := m.sessions[id]
	return ok && s.ExpiresAt.After(m.now())
}

func (m *MemoryStore) Create(_ context.Context, s Session) error {
	_, ttl, err := encode(s, m.now())
	if err != nil {
		return err
	}
	if ttl == 0 {
		return ErrExpired
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live(s.SessionID) {
		return ErrExists
	}
	m.sessions[s.SessionID] = s
	return nil
}

func (m *MemoryStore) Get(_ context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.live(sessionID) {
		return nil, nil
	}
	s := m.sessions[sessionID]
	return &s, nil
}

func (m *MemoryStore) Update(ctx context.Context, s Session) error {
	_, ttl, err := encode(s, m.now())
	if err != nil {
		return err
	}
	if ttl == 0 {
		return m.Delete(ctx, s.SessionID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.live(s.SessionID) {
		return ErrNotFound
	}
	m.sessions[s.SessionID] = s
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return nil
}
