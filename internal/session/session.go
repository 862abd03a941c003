// Package session keeps in-memory conversation state. Sessions live for
// the process lifetime only; restart loses them, which is the intended
// durability model — the vector index is the sole durable store.
package session

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates an unknown session id.
var ErrNotFound = errors.New("session not found")

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one conversation entry.
type Turn struct {
	Role    Role
	Content string
}

// Session holds an ordered conversation. Safe for concurrent use; all
// accessors copy so callers can never alias internal state.
//
// The zero value is not useful, use Store.Create.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	mu        sync.RWMutex
	turns     []Turn
	updatedAt time.Time
}

// Turns returns a copy of the conversation in order.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Append adds one turn to the end of the conversation.
func (s *Session) Append(role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{Role: role, Content: content})
	s.updatedAt = time.Now()
}

// AddExchange appends a user question and the assistant's answer.
func (s *Session) AddExchange(question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns,
		Turn{Role: RoleUser, Content: question},
		Turn{Role: RoleAssistant, Content: answer},
	)
	s.updatedAt = time.Now()
}

// Len returns the number of turns.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// UpdatedAt returns the time of the last mutation.
func (s *Session) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Store holds all live sessions. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[uuid.UUID]*Session)}
}

// Create starts a new empty session.
func (st *Store) Create() *Session {
	now := time.Now()
	s := &Session{
		ID:        uuid.New(),
		CreatedAt: now,
		updatedAt: now,
	}

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

// Get returns the session with the given id, or ErrNotFound.
func (st *Store) Get(id uuid.UUID) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// GetOrCreate resolves an optional session id: the zero id starts a new
// session, anything else must exist.
func (st *Store) GetOrCreate(id uuid.UUID) (*Session, error) {
	if id == uuid.Nil {
		return st.Create(), nil
	}
	return st.Get(id)
}

// List returns all sessions, newest first by creation time.
func (st *Store) List() []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *Session) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

// Delete removes a session. Returns ErrNotFound for unknown ids.
func (st *Store) Delete(id uuid.UUID) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(st.sessions, id)
	return nil
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
