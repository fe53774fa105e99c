// Package token issues and verifies signed, time-boxed credentials
// bound to an identity and role. Verification is coupled to session
// liveness: a cryptographically valid token whose session is gone
// fails, so logout and revocation take effect immediately.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"aegisd.org/internal/event"
	"aegisd.org/internal/session"
)

// DefaultTTL is the token lifetime when no override is supplied.
const DefaultTTL = 24 * time.Hour

const generatedSecretBytes = 64

// ErrMissingSecret is returned at construction when auto-generation is
// forbidden and no secret was supplied.
var ErrMissingSecret = errors.New("token: signing secret is required")

// Claims carried by issued tokens.
type Claims struct {
	UserID string         `json:"uid,omitempty"`
	Role   string         `json:"role,omitempty"`
	Custom map[string]any `json:"custom,omitempty"`
	jwt.RegisteredClaims
}

// Payload is the caller-supplied identity at issue time.
type Payload struct {
	UserID string
	Role   string
	Custom map[string]any
}

// Result is the outcome of a verification attempt.
type Result struct {
	Valid  bool
	Claims *Claims
	Reason string
}

// Service signs and verifies HS256 tokens and keeps the session store
// in step with issuance.
type Service struct {
	secret   []byte
	issuer   string
	ttl      time.Duration
	sessions *session.Store
	events   *event.Log
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service) error

// WithSecret supplies the signing secret. When no secret is supplied
// the service generates a random one for the process lifetime.
func WithSecret(secret string) Option {
	return func(s *Service) error {
		if strings.TrimSpace(secret) != "" {
			s.secret = []byte(secret)
		}
		return nil
	}
}

// RequireSecret forbids secret auto-generation; construction fails
// when no secret was supplied.
func RequireSecret() Option {
	return func(s *Service) error {
		if len(s.secret) == 0 {
			return ErrMissingSecret
		}
		return nil
	}
}

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) Option {
	return func(s *Service) error {
		if strings.TrimSpace(issuer) != "" {
			s.issuer = strings.TrimSpace(issuer)
		}
		return nil
	}
}

// WithTTL overrides the default token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) error {
		if ttl > 0 {
			s.ttl = ttl
		}
		return nil
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs the token service. Sessions and events are
// required collaborators.
func NewService(sessions *session.Store, events *event.Log, opts ...Option) (*Service, error) {
	s := &Service{
		issuer:   "aegisd",
		ttl:      DefaultTTL,
		sessions: sessions,
		events:   events,
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if len(s.secret) == 0 {
		buf := make([]byte, generatedSecretBytes)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("token: generate secret: %w", err)
		}
		s.secret = []byte(hex.EncodeToString(buf))
	}
	return s, nil
}

// Issue signs a token for the payload. When the payload carries a user
// id a session is registered under (userID, jti) holding the token.
// ttl <= 0 uses the configured default.
func (s *Service) Issue(p Payload, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.now().UTC()
	jti := uuid.NewString()

	claims := Claims{
		UserID: strings.TrimSpace(p.UserID),
		Role:   strings.TrimSpace(strings.ToLower(p.Role)),
		Custom: p.Custom,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strings.TrimSpace(p.UserID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}

	if claims.UserID != "" {
		s.sessions.Register(claims.UserID, jti, signed)
	}

	s.events.Record(event.TypeTokenGenerated, map[string]any{
		"user_id": claims.UserID,
		"role":    claims.Role,
		"jti":     jti,
	})
	return signed, nil
}

// Verify validates signature, issuer and expiry, then cross-checks
// session liveness for user-bound tokens. Any failure records a
// token_verification_failed event carrying only a truncated copy of
// the token.
func (s *Service) Verify(raw string) Result {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.fail(raw, "empty token")
	}

	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now), jwt.WithLeeway(5*time.Second))
	if err != nil {
		return s.fail(raw, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return s.fail(raw, "invalid token")
	}

	if claims.UserID != "" && claims.ID != "" {
		if _, live := s.sessions.Get(claims.UserID, claims.ID); !live {
			return s.fail(raw, "session not found or expired")
		}
	}
	return Result{Valid: true, Claims: claims}
}

func (s *Service) fail(raw, reason string) Result {
	s.events.Record(event.TypeTokenVerificationFailed, map[string]any{
		"token":  event.Truncate(raw),
		"reason": reason,
	})
	return Result{Valid: false, Reason: reason}
}
