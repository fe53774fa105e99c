// Package session bounds the number of concurrently live tokens per
// user and answers liveness checks with lazy TTL expiry.
package session

import (
	"sync"
	"time"

	"aegisd.org/internal/event"
)

// Defaults per the security policy.
const (
	DefaultTTL           = 24 * time.Hour
	DefaultMaxConcurrent = 3
	DefaultSweepInterval = 5 * time.Minute
)

// Session is one live binding between a user and an issued token.
type Session struct {
	UserID         string    `json:"user_id"`
	ID             string    `json:"session_id"`
	Token          string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Store holds per-user session sets in insertion order. All access is
// guarded by one mutex; every operation is a brief critical section.
type Store struct {
	mu    sync.Mutex
	users map[string][]*Session

	ttl    time.Duration
	maxPer int
	events *event.Log
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides the absolute session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMaxConcurrent overrides the per-user concurrency cap.
func WithMaxConcurrent(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxPer = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewStore constructs an empty store publishing to events.
func NewStore(events *event.Log, opts ...Option) *Store {
	s := &Store{
		users:  make(map[string][]*Session),
		ttl:    DefaultTTL,
		maxPer: DefaultMaxConcurrent,
		events: events,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register inserts a new session for the user. When the user is at the
// concurrency cap the single oldest session is evicted first,
// synchronously, and a session_limit_exceeded event identifies it.
func (s *Store) Register(userID, sessionID, token string) {
	now := s.now().UTC()

	s.mu.Lock()
	list := s.users[userID]
	var evicted *Session
	if len(list) >= s.maxPer {
		evicted = list[0]
		list = append([]*Session(nil), list[1:]...)
	}
	list = append(list, &Session{
		UserID:         userID,
		ID:             sessionID,
		Token:          token,
		CreatedAt:      now,
		LastActivityAt: now,
	})
	s.users[userID] = list
	s.mu.Unlock()

	if evicted != nil {
		s.events.Record(event.TypeSessionLimitExceeded, map[string]any{
			"user_id":         userID,
			"evicted_session": evicted.ID,
			"max_sessions":    s.maxPer,
		})
	}
}

// Get returns the session if it is still live. An expired session is
// removed on the spot. A live session's LastActivityAt is refreshed,
// but the TTL stays anchored to CreatedAt: activity never extends the
// absolute lifetime.
func (s *Store) Get(userID, sessionID string) (Session, bool) {
	now := s.now().UTC()

	s.mu.Lock()
	list := s.users[userID]
	idx := -1
	for i, sess := range list {
		if sess.ID == sessionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return Session{}, false
	}
	sess := list[idx]
	if now.Sub(sess.CreatedAt) > s.ttl {
		s.users[userID] = append(list[:idx:idx], list[idx+1:]...)
		if len(s.users[userID]) == 0 {
			delete(s.users, userID)
		}
		s.mu.Unlock()
		s.events.Record(event.TypeSessionExpired, map[string]any{
			"user_id":    userID,
			"session_id": sessionID,
		})
		return Session{}, false
	}
	sess.LastActivityAt = now
	out := *sess
	s.mu.Unlock()
	return out, true
}

// Revoke removes one session. Idempotent: returns false when absent.
func (s *Store) Revoke(userID, sessionID string) bool {
	s.mu.Lock()
	list := s.users[userID]
	idx := -1
	for i, sess := range list {
		if sess.ID == sessionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.users[userID] = append(list[:idx:idx], list[idx+1:]...)
	if len(s.users[userID]) == 0 {
		delete(s.users, userID)
	}
	s.mu.Unlock()

	s.events.Record(event.TypeSessionRevoked, map[string]any{
		"user_id":    userID,
		"session_id": sessionID,
	})
	return true
}

// RevokeAll clears every session for the user (password change,
// logout-everywhere) and returns the number removed.
func (s *Store) RevokeAll(userID string) int {
	s.mu.Lock()
	count := len(s.users[userID])
	delete(s.users, userID)
	s.mu.Unlock()

	if count > 0 {
		s.events.Record(event.TypeAllSessionsRevoked, map[string]any{
			"user_id": userID,
			"count":   count,
		})
	}
	return count
}

// SweepExpired removes sessions past TTL for every user and records a
// single summary event when anything was removed.
func (s *Store) SweepExpired() int {
	now := s.now().UTC()

	s.mu.Lock()
	removed := 0
	for userID, list := range s.users {
		kept := list[:0]
		for _, sess := range list {
			if now.Sub(sess.CreatedAt) > s.ttl {
				removed++
				continue
			}
			kept = append(kept, sess)
		}
		if len(kept) == 0 {
			delete(s.users, userID)
			continue
		}
		s.users[userID] = kept
	}
	s.mu.Unlock()

	if removed > 0 {
		s.events.Record(event.TypeSessionsCleaned, map[string]any{"removed": removed})
	}
	return removed
}

// Count returns the number of live sessions across all users and the
// number of distinct users holding at least one.
func (s *Store) Count() (sessions, users int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range s.users {
		sessions += len(list)
	}
	return sessions, len(s.users)
}

// Sessions returns copies of the user's live sessions in insertion order.
func (s *Store) Sessions(userID string) []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.users[userID]
	out := make([]Session, len(list))
	for i, sess := range list {
		out[i] = *sess
	}
	return out
}
