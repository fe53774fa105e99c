package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"aegisd.org/internal/event"
	"aegisd.org/internal/token"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newCore(t *testing.T, cfg Config) (*Core, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	c, err := New(cfg, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, clock
}

func TestValidateRequiresSecret(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireSecret = true

	if _, err := New(cfg); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}

	cfg.TokenSecret = "configured"
	if _, err := New(cfg); err != nil {
		t.Fatalf("secret supplied, construction must succeed: %v", err)
	}
}

func TestDefaultsApplied(t *testing.T) {
	c, _ := newCore(t, Config{})
	cfg := c.Config()
	if cfg.MaxConcurrentSessions != 3 || cfg.MaxLoginAttempts != 5 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.SessionTTL != 24*time.Hour || cfg.LockoutDuration != 30*time.Minute {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.EventRetention != 30*24*time.Hour {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestTokenIssuanceBoundsSessions(t *testing.T) {
	c, _ := newCore(t, Config{TokenSecret: "s", MaxConcurrentSessions: 3})

	var first string
	for i := 0; i < 4; i++ {
		raw, err := c.Tokens.Issue(token.Payload{UserID: "u1", Role: "user"}, 0)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if i == 0 {
			first = raw
		}
	}

	sessions, users := c.Sessions.Count()
	if sessions != 3 || users != 1 {
		t.Fatalf("expected 3 sessions for u1, got sessions=%d users=%d", sessions, users)
	}
	if res := c.Tokens.Verify(first); res.Valid {
		t.Fatal("first-issued token must be evicted and fail verification")
	}
}

func TestStatsSnapshot(t *testing.T) {
	c, clock := newCore(t, Config{TokenSecret: "s", MaxLoginAttempts: 2})

	if _, _, err := c.APIKeys.Generate("api", "ci"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	_, keyID, err := c.APIKeys.Generate("viewer", "dash")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	c.APIKeys.Revoke(keyID)

	if _, err := c.Tokens.Issue(token.Payload{UserID: "u1", Role: "user"}, 0); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := c.Tokens.Issue(token.Payload{UserID: "u2", Role: "user"}, 0); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	c.Attempts.Record("alice", false, nil)
	c.Attempts.Record("alice", false, nil)

	s := c.Stats()
	if s.APIKeysActive != 1 || s.APIKeysTotal != 2 {
		t.Fatalf("api key counts wrong: %+v", s)
	}
	if s.ActiveSessions != 2 || s.SessionUsers != 2 {
		t.Fatalf("session counts wrong: %+v", s)
	}
	if s.LockedIdentifiers != 1 {
		t.Fatalf("expected one locked identifier: %+v", s)
	}
	if s.EventsLast24h.Critical != 1 {
		t.Fatalf("expected one critical event in 24h bucket: %+v", s)
	}
	if s.EventsLast24h.Total == 0 || s.EventsLast7d.Total < s.EventsLast24h.Total {
		t.Fatalf("bucket totals inconsistent: %+v", s)
	}

	// Old events age out of the 24h bucket but stay in 7d.
	clock.Advance(25 * time.Hour)
	s = c.Stats()
	if s.EventsLast24h.Total != 0 {
		t.Fatalf("expected empty 24h bucket after aging: %+v", s)
	}
	if s.EventsLast7d.Critical != 1 {
		t.Fatalf("7d bucket must keep the critical event: %+v", s)
	}
}

func TestHealthReflectsRecentCritical(t *testing.T) {
	c, clock := newCore(t, Config{TokenSecret: "s", MaxLoginAttempts: 1})

	if got := c.Health(); got != HealthHealthy {
		t.Fatalf("expected healthy, got %s", got)
	}

	c.Attempts.Record("alice", false, nil) // locks immediately, critical event
	if got := c.Health(); got != HealthWarning {
		t.Fatalf("expected warning after critical event, got %s", got)
	}

	clock.Advance(2 * time.Hour)
	if got := c.Health(); got != HealthHealthy {
		t.Fatalf("expected healthy once the critical event ages out, got %s", got)
	}
}

func TestRateLimiterRecordsEvents(t *testing.T) {
	c, _ := newCore(t, Config{TokenSecret: "s", RateLimitMaxRequests: 2, RateLimitWindow: time.Minute})

	c.Limiter.Allow("10.0.0.9")
	c.Limiter.Allow("10.0.0.9")
	if c.Limiter.Allow("10.0.0.9") {
		t.Fatal("third request must be denied")
	}

	evts := c.Events.Query(event.Filter{Type: event.TypeRateLimitExceeded})
	if len(evts) != 1 || evts[0].Data["key"] != "10.0.0.9" {
		t.Fatalf("expected one rate_limit_exceeded event for the key: %v", evts)
	}
}

func TestSubscribeSeesAllComponents(t *testing.T) {
	c, _ := newCore(t, Config{TokenSecret: "s"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := c.Subscribe(ctx)

	if _, _, err := c.APIKeys.Generate("api", ""); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	c.Attempts.Record("alice", true, nil)

	types := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case evt := <-ch:
			types[evt.Type] = true
		case <-time.After(time.Second):
			t.Fatal("missing published events")
		}
	}
	if !types[event.TypeAPIKeyGenerated] || !types[event.TypeLoginSuccess] {
		t.Fatalf("expected events from both components: %v", types)
	}
}

func TestStartStop(t *testing.T) {
	c, _ := newCore(t, Config{TokenSecret: "s", SessionSweepInterval: 10 * time.Millisecond, EventSweepInterval: 10 * time.Millisecond})
	c.Start()
	c.Start() // second Start is a no-op
	time.Sleep(30 * time.Millisecond)
	c.Stop()
	c.Stop()
}
