package core

import (
	"errors"
	"strings"
	"time"

	"aegisd.org/internal/apikey"
	"aegisd.org/internal/lockout"
	"aegisd.org/internal/password"
	"aegisd.org/internal/ratelimit"
	"aegisd.org/internal/session"
	"aegisd.org/internal/token"
)

// ErrMissingSecret is returned by Validate when auto-generation of the
// signing secret is forbidden and none was supplied.
var ErrMissingSecret = errors.New("core: token secret is required when auto-generation is disabled")

// Config is the full construction-time surface of the security core.
// Zero fields take the documented defaults.
type Config struct {
	// Token signing.
	TokenSecret   string
	TokenIssuer   string
	TokenTTL      time.Duration
	RequireSecret bool

	// Sessions.
	SessionTTL            time.Duration
	MaxConcurrentSessions int
	SessionSweepInterval  time.Duration

	// Login throttling.
	MaxLoginAttempts    int
	LockoutDuration     time.Duration
	LockoutSweepMaxIdle time.Duration

	// API keys.
	APIKeyPrefix       string
	APIKeySecretLength int

	// Password hashing.
	PasswordHashCost int

	// Request rate limiting (policy handed to the external limiter).
	RateLimitWindow      time.Duration
	RateLimitMaxRequests int
	RateLimitHeaders     bool

	// Event journal.
	EventRetention     time.Duration
	EventSweepInterval time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		TokenIssuer:           "aegisd",
		TokenTTL:              token.DefaultTTL,
		SessionTTL:            session.DefaultTTL,
		MaxConcurrentSessions: session.DefaultMaxConcurrent,
		SessionSweepInterval:  session.DefaultSweepInterval,
		MaxLoginAttempts:      lockout.DefaultMaxAttempts,
		LockoutDuration:       lockout.DefaultLockoutDuration,
		LockoutSweepMaxIdle:   24 * time.Hour,
		APIKeyPrefix:          apikey.DefaultPrefix,
		APIKeySecretLength:    apikey.DefaultSecretLength,
		PasswordHashCost:      password.DefaultCost,
		RateLimitWindow:       ratelimit.DefaultWindow,
		RateLimitMaxRequests:  ratelimit.DefaultMaxRequests,
		RateLimitHeaders:      true,
		EventRetention:        30 * 24 * time.Hour,
		EventSweepInterval:    24 * time.Hour,
	}
}

// Validate rejects configurations the core must not start with.
func (c Config) Validate() error {
	if c.RequireSecret && strings.TrimSpace(c.TokenSecret) == "" {
		return ErrMissingSecret
	}
	return nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.TokenIssuer) == "" {
		c.TokenIssuer = def.TokenIssuer
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = def.TokenTTL
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = def.SessionTTL
	}
	if c.MaxConcurrentSessions <= 0 {
		c.MaxConcurrentSessions = def.MaxConcurrentSessions
	}
	if c.SessionSweepInterval <= 0 {
		c.SessionSweepInterval = def.SessionSweepInterval
	}
	if c.MaxLoginAttempts <= 0 {
		c.MaxLoginAttempts = def.MaxLoginAttempts
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = def.LockoutDuration
	}
	if c.LockoutSweepMaxIdle <= 0 {
		c.LockoutSweepMaxIdle = def.LockoutSweepMaxIdle
	}
	if strings.TrimSpace(c.APIKeyPrefix) == "" {
		c.APIKeyPrefix = def.APIKeyPrefix
	}
	if c.APIKeySecretLength <= 0 {
		c.APIKeySecretLength = def.APIKeySecretLength
	}
	if c.PasswordHashCost <= 0 {
		c.PasswordHashCost = def.PasswordHashCost
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = def.RateLimitWindow
	}
	if c.RateLimitMaxRequests <= 0 {
		c.RateLimitMaxRequests = def.RateLimitMaxRequests
	}
	if c.EventRetention <= 0 {
		c.EventRetention = def.EventRetention
	}
	if c.EventSweepInterval <= 0 {
		c.EventSweepInterval = def.EventSweepInterval
	}
	return c
}
