// Package password wraps the cost-factor hashing primitive used for
// user credentials. It is deliberately pluggable-shaped: the security
// core consumes only Hash and Verify.
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when none is configured.
const DefaultCost = bcrypt.DefaultCost

// Hasher hashes and verifies secrets with a configurable cost factor.
type Hasher struct {
	cost int
}

// NewHasher clamps cost into bcrypt's valid range.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash derives a one-way digest of the secret.
func (h *Hasher) Hash(secret string) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("password: secret is empty")
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify compares a plaintext secret with a stored digest.
func (h *Hasher) Verify(secret, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}
