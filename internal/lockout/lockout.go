// Package lockout throttles authentication by identifier: repeated
// failures cross a threshold into a timed lock, which lapses lazily.
// The tracker knows nothing about credential verification itself;
// callers check IsLocked before attempting and Record after every
// outcome.
package lockout

import (
	"sync"
	"time"

	"aegisd.org/internal/event"
)

// Defaults per the security policy.
const (
	DefaultMaxAttempts     = 5
	DefaultLockoutDuration = 30 * time.Minute
	DefaultSweepInterval   = 10 * time.Minute
)

type record struct {
	attempts    int
	lastAttempt time.Time
	lockedUntil time.Time
}

// Tracker keeps per-identifier failed-attempt counters.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*record

	maxAttempts int
	duration    time.Duration
	events      *event.Log
	now         func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithMaxAttempts overrides the failure threshold.
func WithMaxAttempts(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.maxAttempts = n
		}
	}
}

// WithLockoutDuration overrides the lock window.
func WithLockoutDuration(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.duration = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(t *Tracker) {
		if fn != nil {
			t.now = fn
		}
	}
}

// NewTracker constructs an empty tracker publishing to events.
func NewTracker(events *event.Log, opts ...Option) *Tracker {
	t := &Tracker{
		records:     make(map[string]*record),
		maxAttempts: DefaultMaxAttempts,
		duration:    DefaultLockoutDuration,
		events:      events,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record registers one authentication outcome for the identifier.
// Success resets the counter and clears any lock. Failure increments
// the counter and, at the threshold, raises a timed lock.
func (t *Tracker) Record(identifier string, success bool, metadata map[string]any) {
	now := t.now().UTC()

	t.mu.Lock()
	rec, ok := t.records[identifier]
	if !ok {
		rec = &record{}
		t.records[identifier] = rec
	}
	rec.lastAttempt = now

	if success {
		rec.attempts = 0
		rec.lockedUntil = time.Time{}
		t.mu.Unlock()
		t.events.Record(event.TypeLoginSuccess, withIdentifier(identifier, metadata))
		return
	}

	rec.attempts++
	locked := rec.attempts >= t.maxAttempts
	attempts := rec.attempts
	if locked {
		rec.lockedUntil = now.Add(t.duration)
	}
	t.mu.Unlock()

	if locked {
		data := withIdentifier(identifier, metadata)
		data["attempts"] = attempts
		data["locked_until"] = now.Add(t.duration)
		t.events.Record(event.TypeAccountLocked, data)
		return
	}
	data := withIdentifier(identifier, metadata)
	data["attempts"] = attempts
	t.events.Record(event.TypeLoginFailed, data)
}

// IsLocked reports whether the identifier is currently locked. A
// lapsed lock is cleared on the spot and the counter starts over.
func (t *Tracker) IsLocked(identifier string) bool {
	now := t.now().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[identifier]
	if !ok || rec.lockedUntil.IsZero() {
		return false
	}
	if now.After(rec.lockedUntil) {
		rec.attempts = 0
		rec.lockedUntil = time.Time{}
		return false
	}
	return true
}

// LockedCount returns how many identifiers are currently locked.
func (t *Tracker) LockedCount() int {
	now := t.now().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()
	count := 0
	for _, rec := range t.records {
		if !rec.lockedUntil.IsZero() && now.Before(rec.lockedUntil) {
			count++
		}
	}
	return count
}

// Sweep drops records whose lock has lapsed and whose last attempt is
// older than maxIdle. Correctness never depends on it; it only
// reclaims memory for identifiers that went quiet.
func (t *Tracker) Sweep(maxIdle time.Duration) int {
	now := t.now().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, rec := range t.records {
		if !rec.lockedUntil.IsZero() && now.Before(rec.lockedUntil) {
			continue
		}
		if now.Sub(rec.lastAttempt) > maxIdle {
			delete(t.records, id)
			removed++
		}
	}
	return removed
}

func withIdentifier(identifier string, metadata map[string]any) map[string]any {
	data := map[string]any{"identifier": identifier}
	for k, v := range metadata {
		data[k] = v
	}
	return data
}
