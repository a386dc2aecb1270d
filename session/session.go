// Package session holds per-caller conversation state and its persistence
// contract.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/sweetpotato0/voicecart/message"
)

// State represents the turn-taking state of a session
type State string

const (
	// StateIdle means no turn is running; new input starts one immediately.
	StateIdle State = "idle"
	// StateTurnInProgress means a turn is running; new input is queued.
	StateTurnInProgress State = "turn_in_progress"
	// StateClosed means the session is finished and rejects input.
	StateClosed State = "closed"
)

// Record is the persisted form of a session transcript.
type Record struct {
	ID        string             `json:"id" bson:"_id"`
	Messages  []*message.Message `json:"messages" bson:"messages"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`
}

// Clone deep-copies a record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	return &Record{
		ID:        r.ID,
		Messages:  message.CloneMessages(r.Messages),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// Store persists session records.
type Store interface {
	Save(ctx context.Context, record *Record) error
	Load(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
	Exists(ctx context.Context, id string) (bool, error)
	Close() error
}

// Session is one caller's conversation. The coordinator owns it exclusively;
// the accessors are safe for concurrent reads from the server layer.
type Session struct {
	id        string
	mu        sync.RWMutex
	state     State
	messages  []*message.Message
	createdAt time.Time
	updatedAt time.Time
}

// New creates an idle session.
func New(id string) *Session {
	now := time.Now()
	return &Session{
		id:        id,
		state:     StateIdle,
		createdAt: now,
		updatedAt: now,
	}
}

// Restore rebuilds a session from a persisted record.
func Restore(record *Record) *Session {
	s := New(record.ID)
	s.messages = message.CloneMessages(record.Messages)
	s.createdAt = record.CreatedAt
	s.updatedAt = record.UpdatedAt
	return s
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// State returns the current turn-taking state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState updates the turn-taking state.
func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.updatedAt = time.Now()
}

// Messages returns a copy of the conversation history.
func (s *Session) Messages() []*message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return message.CloneMessages(s.messages)
}

// Append extends the conversation history.
func (s *Session) Append(msgs ...*message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
	s.updatedAt = time.Now()
}

// Record snapshots the session for persistence.
func (s *Session) Record() *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Record{
		ID:        s.id,
		Messages:  message.CloneMessages(s.messages),
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
}
