// Package session keeps the editing sessions the API serves: one mounted
// section of one report each, evicted after a period of inactivity.
package session

import (
	"sync"
	"time"

	"github.com/dgallion1/brsrform/internal/persistence"
)

// Session is a mounted section addressed by an opaque ID.
type Session struct {
	ID        string
	CreatedAt time.Time
	*persistence.Section
}

// Snapshot is a JSON-safe copy of the session state.
type Snapshot struct {
	SessionID string `json:"session_id"`
	persistence.Snapshot
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{SessionID: s.ID, Snapshot: s.Section.Snapshot()}
}

// Store is a thread-safe in-memory session registry with TTL eviction.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

func (s *Store) Put(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

func (s *Store) Get(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

// Delete removes and returns the session, or nil if it was not present.
func (s *Store) Delete(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[id]
	delete(s.sessions, id)
	return sess
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Cleanup evicts sessions idle for longer than the TTL and resets them, so a
// round trip still in flight is discarded. It returns the evicted sessions.
func (s *Store) Cleanup(now time.Time) []*Session {
	s.mu.Lock()
	var expired []*Session
	for id, sess := range s.sessions {
		if now.Sub(sess.UpdatedAt()) > s.ttl {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.Reset()
	}
	return expired
}
