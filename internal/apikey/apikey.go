// Package apikey manages long-lived, role-scoped machine credentials.
// Only a one-way hash of each key is stored; the raw key is returned
// exactly once at generation time.
package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"aegisd.org/internal/access"
	"aegisd.org/internal/event"
	"aegisd.org/internal/ids"
)

// Defaults per the security policy.
const (
	DefaultPrefix       = "sk_"
	DefaultSecretLength = 32
)

// Key is the stored record for one API key. KeyHash is the sha256 of
// the full raw key; the raw secret itself is never persisted.
type Key struct {
	ID          string     `json:"id"`
	KeyHash     string     `json:"-"`
	KeyPrefix   string     `json:"key_prefix"`
	Role        string     `json:"role"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	UsageCount  int64      `json:"usage_count"`
	Active      bool       `json:"active"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// Result is the outcome of a validation attempt.
type Result struct {
	Valid       bool
	KeyID       string
	Role        string
	Permissions []string
	Reason      string
}

// Registry generates, validates and revokes API keys. Revoked keys are
// retained for audit, never deleted. Lookup is indexed by hash so
// validation stays O(1) regardless of population.
type Registry struct {
	mu     sync.Mutex
	keys   map[string]*Key   // by id
	byHash map[string]string // sha256 hex -> id

	prefix    string
	secretLen int
	roles     *access.Model
	events    *event.Log
	now       func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithPrefix overrides the public key prefix.
func WithPrefix(prefix string) Option {
	return func(r *Registry) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithSecretLength overrides the random secret length in bytes.
func WithSecretLength(n int) Option {
	return func(r *Registry) {
		if n >= 16 {
			r.secretLen = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(r *Registry) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRegistry constructs an empty registry resolving permissions
// through roles and publishing to events.
func NewRegistry(roles *access.Model, events *event.Log, opts ...Option) *Registry {
	r := &Registry{
		keys:      make(map[string]*Key),
		byHash:    make(map[string]string),
		prefix:    DefaultPrefix,
		secretLen: DefaultSecretLength,
		roles:     roles,
		events:    events,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Generate creates a key for the role and returns the raw key string
// exactly once. It cannot be recovered later.
func (r *Registry) Generate(role, description string) (raw, keyID string, err error) {
	role = strings.TrimSpace(strings.ToLower(role))
	if !r.roles.Known(role) {
		return "", "", fmt.Errorf("apikey: unknown role %q", role)
	}

	secret := make([]byte, r.secretLen)
	if _, err := rand.Read(secret); err != nil {
		return "", "", fmt.Errorf("apikey: generate secret: %w", err)
	}
	raw = r.prefix + hex.EncodeToString(secret)
	sum := sha256.Sum256([]byte(raw))

	key := &Key{
		ID:          ids.New(),
		KeyHash:     hex.EncodeToString(sum[:]),
		KeyPrefix:   event.Truncate(raw),
		Role:        role,
		Description: strings.TrimSpace(description),
		CreatedAt:   r.now().UTC(),
		Active:      true,
	}

	r.mu.Lock()
	r.keys[key.ID] = key
	r.byHash[key.KeyHash] = key.ID
	r.mu.Unlock()

	r.events.Record(event.TypeAPIKeyGenerated, map[string]any{
		"key_id":     key.ID,
		"role":       role,
		"key_prefix": key.KeyPrefix,
	})
	return raw, key.ID, nil
}

// Validate checks a presented key. Keys failing the prefix check are
// rejected without a lookup. On success usage metadata is updated and
// the role's permissions are resolved.
func (r *Registry) Validate(raw string) Result {
	if !strings.HasPrefix(raw, r.prefix) {
		return r.fail(raw, "invalid key format")
	}

	sum := sha256.Sum256([]byte(raw))
	hash := hex.EncodeToString(sum[:])
	now := r.now().UTC()

	r.mu.Lock()
	var match *Key
	if id, ok := r.byHash[hash]; ok {
		if key := r.keys[id]; key != nil && key.Active {
			match = key
		}
	}
	if match == nil {
		r.mu.Unlock()
		return r.fail(raw, "key not found or revoked")
	}
	match.UsageCount++
	used := now
	match.LastUsedAt = &used
	out := Result{
		Valid:       true,
		KeyID:       match.ID,
		Role:        match.Role,
		Permissions: r.roles.Permissions(match.Role),
	}
	r.mu.Unlock()

	r.events.Record(event.TypeAPIKeyUsed, map[string]any{
		"key_id": out.KeyID,
		"role":   out.Role,
	})
	return out
}

func (r *Registry) fail(raw, reason string) Result {
	r.events.Record(event.TypeAPIKeyValidationFailed, map[string]any{
		"key_prefix": event.Truncate(raw),
		"reason":     reason,
	})
	return Result{Valid: false, Reason: reason}
}

// Revoke deactivates a key, keeping the record for audit. Idempotent:
// returns false when the key is unknown or already revoked.
func (r *Registry) Revoke(keyID string) bool {
	now := r.now().UTC()

	r.mu.Lock()
	key, ok := r.keys[keyID]
	if !ok || !key.Active {
		r.mu.Unlock()
		return false
	}
	key.Active = false
	key.RevokedAt = &now
	r.mu.Unlock()

	r.events.Record(event.TypeAPIKeyRevoked, map[string]any{"key_id": keyID})
	return true
}

// Get returns a copy of the stored record.
func (r *Registry) Get(keyID string) (Key, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keys[keyID]
	if !ok {
		return Key{}, false
	}
	return *key, true
}

// Count returns active and total key counts.
func (r *Registry) Count() (active, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range r.keys {
		if key.Active {
			active++
		}
	}
	return active, len(r.keys)
}
