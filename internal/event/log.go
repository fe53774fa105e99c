package event

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"aegisd.org/internal/obs"
)

// DefaultRetention is how long recorded events are kept before the
// retention sweep removes them.
const DefaultRetention = 30 * 24 * time.Hour

const subscriberBuffer = 64

// Log is the append-only in-memory journal of security events. Every
// record is classified by the static severity table, published to all
// subscribers, and counted in metrics. Warning and critical events are
// additionally surfaced through the logger immediately.
type Log struct {
	mu     sync.RWMutex
	events []Event
	subs   map[int]chan Event
	next   int

	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Log) {
		if fn != nil {
			l.now = fn
		}
	}
}

// WithLogger sets the high-priority sink for warning/critical events.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLog constructs an empty journal.
func NewLog(opts ...Option) *Log {
	l := &Log{
		subs:   make(map[int]chan Event),
		now:    time.Now,
		logger: obs.NopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record classifies, journals, and publishes one event. It returns the
// recorded event. Data may be nil.
func (l *Log) Record(eventType string, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	evt := Event{
		ID:        newID(),
		Type:      eventType,
		Severity:  Classify(eventType),
		Timestamp: l.now().UTC(),
		Data:      data,
	}

	l.mu.Lock()
	l.events = append(l.events, evt)
	// Fan out under the lock so a concurrent unsubscribe cannot close
	// a channel mid-send; sends are non-blocking either way.
	for _, ch := range l.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
	l.mu.Unlock()

	obs.CountEvent(evt.Type, string(evt.Severity))

	fields := []zap.Field{
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.Type),
		zap.Any("data", evt.Data),
	}
	switch evt.Severity {
	case SeverityCritical:
		l.logger.Error("security event", fields...)
	case SeverityWarning:
		l.logger.Warn("security event", fields...)
	default:
		l.logger.Info("security event", fields...)
	}
	return evt
}

// Subscribe registers a subscriber and returns a channel receiving
// every subsequent event. The channel is closed when ctx ends.
func (l *Log) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	l.mu.Lock()
	id := l.next
	l.next++
	l.subs[id] = ch
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subs, id)
		close(ch)
		l.mu.Unlock()
	}()

	return ch
}

// Filter narrows a Query. Zero values match everything; Limit keeps
// only the most recent N after filtering.
type Filter struct {
	Type     string
	Severity Severity
	Since    time.Time
	Limit    int
}

// Query returns matching events sorted newest-first.
func (l *Log) Query(f Filter) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Event
	for i := len(l.events) - 1; i >= 0; i-- {
		evt := l.events[i]
		if f.Type != "" && evt.Type != f.Type {
			continue
		}
		if f.Severity != "" && evt.Severity != f.Severity {
			continue
		}
		if !f.Since.IsZero() && evt.Timestamp.Before(f.Since) {
			continue
		}
		out = append(out, evt)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// CountSince returns total, warning and critical tallies for events at
// or after since. Used by the core stats snapshot.
func (l *Log) CountSince(since time.Time) (total, warning, critical int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		evt := l.events[i]
		if evt.Timestamp.Before(since) {
			break
		}
		total++
		switch evt.Severity {
		case SeverityWarning:
			warning++
		case SeverityCritical:
			critical++
		}
	}
	return total, warning, critical
}

// Len reports the number of journaled events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Sweep drops events older than maxAge and returns how many were
// removed. A summary event is recorded only when something was removed.
func (l *Log) Sweep(maxAge time.Duration) int {
	cutoff := l.now().UTC().Add(-maxAge)

	l.mu.Lock()
	// Events are appended in time order; find the first survivor.
	idx := 0
	for idx < len(l.events) && l.events[idx].Timestamp.Before(cutoff) {
		idx++
	}
	removed := idx
	if removed > 0 {
		l.events = append([]Event(nil), l.events[idx:]...)
	}
	l.mu.Unlock()

	if removed > 0 {
		l.Record(TypeEventsCleaned, map[string]any{"removed": removed})
	}
	return removed
}
