// Package core wires the security components together, runs the
// periodic sweeps, and exposes aggregate health and statistics.
package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"aegisd.org/internal/access"
	"aegisd.org/internal/apikey"
	"aegisd.org/internal/event"
	"aegisd.org/internal/lockout"
	"aegisd.org/internal/obs"
	"aegisd.org/internal/password"
	"aegisd.org/internal/ratelimit"
	"aegisd.org/internal/session"
	"aegisd.org/internal/token"
)

// Health states reported by Health.
const (
	HealthHealthy = "healthy"
	HealthWarning = "warning"
)

const healthLookback = time.Hour

// Core owns the security registries and their shared event channel.
type Core struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	Roles    *access.Model
	Events   *event.Log
	Sessions *session.Store
	APIKeys  *apikey.Registry
	Attempts *lockout.Tracker
	Tokens   *token.Service
	Limiter  *ratelimit.Limiter
	Hasher   *password.Hasher

	stop context.CancelFunc
}

// Option configures the Core beyond its Config.
type Option func(*Core)

// WithLogger sets the logger shared by the core and the event sink.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Core) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source for every component.
func WithClock(fn func() time.Time) Option {
	return func(c *Core) {
		if fn != nil {
			c.now = fn
		}
	}
}

// WithRoles replaces the built-in role model.
func WithRoles(model *access.Model) Option {
	return func(c *Core) {
		if model != nil {
			c.Roles = model
		}
	}
}

// New validates cfg and wires all components. It fails rather than
// start with an undefined security posture.
func New(cfg Config, opts ...Option) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	c := &Core{
		cfg:    cfg,
		logger: obs.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Roles == nil {
		c.Roles = access.DefaultModel()
	}

	c.Events = event.NewLog(event.WithLogger(c.logger), event.WithClock(c.now))
	c.Sessions = session.NewStore(c.Events,
		session.WithTTL(cfg.SessionTTL),
		session.WithMaxConcurrent(cfg.MaxConcurrentSessions),
		session.WithClock(c.now),
	)
	c.APIKeys = apikey.NewRegistry(c.Roles, c.Events,
		apikey.WithPrefix(cfg.APIKeyPrefix),
		apikey.WithSecretLength(cfg.APIKeySecretLength),
		apikey.WithClock(c.now),
	)
	c.Attempts = lockout.NewTracker(c.Events,
		lockout.WithMaxAttempts(cfg.MaxLoginAttempts),
		lockout.WithLockoutDuration(cfg.LockoutDuration),
		lockout.WithClock(c.now),
	)

	tokens, err := token.NewService(c.Sessions, c.Events,
		token.WithSecret(cfg.TokenSecret),
		token.WithIssuer(cfg.TokenIssuer),
		token.WithTTL(cfg.TokenTTL),
		token.WithClock(c.now),
	)
	if err != nil {
		return nil, err
	}
	c.Tokens = tokens

	c.Limiter = ratelimit.NewLimiter(ratelimit.Policy{
		Window:      cfg.RateLimitWindow,
		MaxRequests: cfg.RateLimitMaxRequests,
		Headers:     cfg.RateLimitHeaders,
		OnExceeded: func(key string) {
			c.Events.Record(event.TypeRateLimitExceeded, map[string]any{"key": key})
		},
	}, ratelimit.WithClock(c.now))

	c.Hasher = password.NewHasher(cfg.PasswordHashCost)

	return c, nil
}

// Config returns the effective configuration.
func (c *Core) Config() Config {
	return c.cfg
}

// Subscribe exposes the shared event channel for external monitoring.
func (c *Core) Subscribe(ctx context.Context) <-chan event.Event {
	return c.Events.Subscribe(ctx)
}

// EventBucket tallies events over a window.
type EventBucket struct {
	Total    int `json:"total"`
	Warning  int `json:"warning"`
	Critical int `json:"critical"`
}

// Stats is the read-only operational snapshot.
type Stats struct {
	APIKeysActive     int         `json:"api_keys_active"`
	APIKeysTotal      int         `json:"api_keys_total"`
	ActiveSessions    int         `json:"active_sessions"`
	SessionUsers      int         `json:"session_users"`
	LockedIdentifiers int         `json:"locked_identifiers"`
	EventsLast24h     EventBucket `json:"events_last_24h"`
	EventsLast7d      EventBucket `json:"events_last_7d"`
}

// Stats aggregates counters across all registries.
func (c *Core) Stats() Stats {
	now := c.now().UTC()
	var s Stats
	s.APIKeysActive, s.APIKeysTotal = c.APIKeys.Count()
	s.ActiveSessions, s.SessionUsers = c.Sessions.Count()
	s.LockedIdentifiers = c.Attempts.LockedCount()
	s.EventsLast24h.Total, s.EventsLast24h.Warning, s.EventsLast24h.Critical = c.Events.CountSince(now.Add(-24 * time.Hour))
	s.EventsLast7d.Total, s.EventsLast7d.Warning, s.EventsLast7d.Critical = c.Events.CountSince(now.Add(-7 * 24 * time.Hour))
	return s
}

// Health reports warning when any critical event occurred within the
// last hour, healthy otherwise.
func (c *Core) Health() string {
	recent := c.Events.Query(event.Filter{
		Severity: event.SeverityCritical,
		Since:    c.now().UTC().Add(-healthLookback),
		Limit:    1,
	})
	if len(recent) > 0 {
		return HealthWarning
	}
	return HealthHealthy
}

// Start launches the periodic sweeps: sessions on a short interval,
// events on a long one. Correctness never depends on the cadence;
// every read path re-checks lazily. Start is idempotent per Stop.
func (c *Core) Start() {
	if c.stop != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.stop = cancel

	go c.runSweep(ctx, c.cfg.SessionSweepInterval, func() {
		c.Sessions.SweepExpired()
		c.Attempts.Sweep(c.cfg.LockoutSweepMaxIdle)
		c.Limiter.Sweep()
		c.refreshGauges()
	})
	go c.runSweep(ctx, c.cfg.EventSweepInterval, func() {
		c.Events.Sweep(c.cfg.EventRetention)
	})
}

// Stop halts the sweep loops.
func (c *Core) Stop() {
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
}

func (c *Core) runSweep(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func (c *Core) refreshGauges() {
	sessions, _ := c.Sessions.Count()
	active, _ := c.APIKeys.Count()
	obs.SetGauges(sessions, active, c.Attempts.LockedCount())
}
