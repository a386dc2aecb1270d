// Package store provides session.Store implementations: in-memory for tests
// and single-node deployments, Redis, PostgreSQL and MongoDB for everything
// else.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/sweetpotato0/voicecart/errors"
	"github.com/sweetpotato0/voicecart/session"
)

// MemoryStore keeps session records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*session.Record
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*session.Record),
	}
}

// Save persists a session record.
func (s *MemoryStore) Save(ctx context.Context, record *session.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("session record cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cloned := record.Clone()
	cloned.UpdatedAt = time.Now()
	s.records[record.ID] = cloned
	return nil
}

// Load returns a stored session record.
func (s *MemoryStore) Load(ctx context.Context, id string) (*session.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, apperrors.ErrNotFound)
	}
	return record.Clone(), nil
}

// Delete removes a session record.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// List returns all stored session IDs.
func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	return ids, nil
}

// Exists checks if a session record exists.
func (s *MemoryStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
