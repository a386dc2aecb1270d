package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/sweetpotato0/voicecart/errors"
)

// Manager tracks live sessions and persists their transcripts through a
// pluggable store.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	store    Store
	counter  int64
}

// NewManager creates a session manager backed by the given store. A nil
// store disables persistence.
func NewManager(store Store) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		store:    store,
	}
}

// Create registers a new session. An empty id gets a generated one.
func (m *Manager) Create(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		m.counter++
		id = fmt.Sprintf("sess_%d_%d", time.Now().UnixNano(), m.counter)
	}
	if _, exists := m.sessions[id]; exists {
		return nil, fmt.Errorf("session %s: %w", id, apperrors.ErrAlreadyExists)
	}

	sess := New(id)
	m.sessions[id] = sess
	return sess, nil
}

// Get returns a live session, falling back to the store for transcripts of
// sessions this process has not seen.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return sess, nil
	}

	if m.store != nil {
		record, err := m.store.Load(ctx, id)
		if err == nil && record != nil {
			restored := Restore(record)
			m.mu.Lock()
			if existing, raced := m.sessions[id]; raced {
				restored = existing
			} else {
				m.sessions[id] = restored
			}
			m.mu.Unlock()
			return restored, nil
		}
	}
	return nil, fmt.Errorf("session %s: %w", id, apperrors.ErrNotFound)
}

// Persist writes the session's current transcript through the store.
func (m *Manager) Persist(ctx context.Context, sess *Session) error {
	if m.store == nil {
		return nil
	}
	return m.store.Save(ctx, sess.Record())
}

// Close finalizes a session: persists the transcript, marks it closed and
// drops it from the live set.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", id, apperrors.ErrNotFound)
	}

	sess.SetState(StateClosed)
	if m.store != nil {
		if err := m.store.Save(ctx, sess.Record()); err != nil {
			return fmt.Errorf("persist closed session: %w", err)
		}
	}
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
