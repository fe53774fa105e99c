// Package ratelimit supplies the policy parameters and decision point
// for an external request-level limiter. The core does not intercept
// requests itself; the host calls Allow per request key (typically the
// client IP) and decides the 429-style response when it is denied.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Defaults per the security policy.
const (
	DefaultWindow        = time.Minute
	DefaultMaxRequests   = 100
	DefaultBucketTTL     = 5 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

// Policy describes the limit handed to the external enforcement layer.
type Policy struct {
	Window      time.Duration
	MaxRequests int
	// Headers asks the enforcement layer to attach rate-limit headers
	// (Retry-After and friends) to denied responses.
	Headers bool
	// Skip exempts a key from limiting (health probes, allow-lists).
	Skip func(key string) bool
	// OnExceeded runs once per denied call; the core wires it to the
	// security event log.
	OnExceeded func(key string)
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter applies a token bucket per key. Buckets idle past their TTL
// are reclaimed by Sweep.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	policy Policy
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithBucketTTL overrides how long idle buckets are kept.
func WithBucketTTL(ttl time.Duration) Option {
	return func(l *Limiter) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLimiter builds a limiter for the policy, filling in defaults for
// zero fields.
func NewLimiter(policy Policy, opts ...Option) *Limiter {
	if policy.Window <= 0 {
		policy.Window = DefaultWindow
	}
	if policy.MaxRequests <= 0 {
		policy.MaxRequests = DefaultMaxRequests
	}
	l := &Limiter{
		buckets: make(map[string]*bucket),
		policy:  policy,
		ttl:     DefaultBucketTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policy returns the configured policy parameters.
func (l *Limiter) Policy() Policy {
	return l.policy
}

// Allow decides whether the key may proceed. Denials invoke the
// policy's OnExceeded hook exactly once per call.
func (l *Limiter) Allow(key string) bool {
	if l.policy.Skip != nil && l.policy.Skip(key) {
		return true
	}

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		perSecond := float64(l.policy.MaxRequests) / l.policy.Window.Seconds()
		b = &bucket{lim: rate.NewLimiter(rate.Limit(perSecond), l.policy.MaxRequests)}
		l.buckets[key] = b
	}
	b.seen = l.now()
	allowed := b.lim.Allow()
	l.mu.Unlock()

	if !allowed && l.policy.OnExceeded != nil {
		l.policy.OnExceeded(key)
	}
	return allowed
}

// Sweep drops buckets idle past the TTL and returns how many were
// removed.
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.seen) > l.ttl {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}
