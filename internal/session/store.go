package session

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	// defaultTTL evicts sessions after this much inactivity.
	defaultTTL      = 24 * time.Hour
	cleanupInterval = time.Hour
)

// Store holds live sessions keyed by user id, evicting after a period
// of inactivity.
type Store struct {
	sessions *gocache.Cache
}

func NewStore() *Store {
	return NewStoreWithTTL(defaultTTL)
}

func NewStoreWithTTL(ttl time.Duration) *Store {
	return &Store{sessions: gocache.New(ttl, cleanupInterval)}
}

// Get returns the session for userID, creating an idle one on first
// contact. Every access refreshes the eviction timer.
func (s *Store) Get(userID string) *Session {
	if v, ok := s.sessions.Get(userID); ok {
		sess := v.(*Session)
		s.sessions.SetDefault(userID, sess)
		return sess
	}
	sess := &Session{UserID: userID, State: StateIdle}
	s.sessions.SetDefault(userID, sess)
	return sess
}

// Drop removes a session entirely.
func (s *Store) Drop(userID string) {
	s.sessions.Delete(userID)
}

func (s *Store) Len() int { return s.sessions.ItemCount() }
