package event

import (
	"time"

	"github.com/google/uuid"

	"aegisd.org/internal/ids"
)

// Severity classifies how urgently an event needs operator attention.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event types emitted by the security core.
const (
	TypeTokenGenerated          = "token_generated"
	TypeTokenVerificationFailed = "token_verification_failed"
	TypeSessionLimitExceeded    = "session_limit_exceeded"
	TypeSessionExpired          = "session_expired"
	TypeSessionRevoked          = "session_revoked"
	TypeAllSessionsRevoked      = "all_sessions_revoked"
	TypeSessionsCleaned         = "sessions_cleaned"
	TypeAPIKeyGenerated         = "api_key_generated"
	TypeAPIKeyUsed              = "api_key_used"
	TypeAPIKeyValidationFailed  = "api_key_validation_failed"
	TypeAPIKeyRevoked           = "api_key_revoked"
	TypeLoginSuccess            = "login_success"
	TypeLoginFailed             = "login_failed"
	TypeAccountLocked           = "account_locked"
	TypeRateLimitExceeded       = "rate_limit_exceeded"
	TypeSuspiciousActivity      = "suspicious_activity"
	TypeEventsCleaned           = "security_events_cleaned"
)

// severityByType is the static classification table. Types absent from
// the table default to info.
var severityByType = map[string]Severity{
	TypeAccountLocked:      SeverityCritical,
	TypeSuspiciousActivity: SeverityCritical,

	TypeLoginFailed:             SeverityWarning,
	TypeTokenVerificationFailed: SeverityWarning,
	TypeAPIKeyValidationFailed:  SeverityWarning,
	TypeSessionLimitExceeded:    SeverityWarning,
	TypeRateLimitExceeded:       SeverityWarning,
}

// Classify resolves the severity for an event type.
func Classify(eventType string) Severity {
	if s, ok := severityByType[eventType]; ok {
		return s
	}
	return SeverityInfo
}

// Event is one security-relevant state change.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Severity  Severity       `json:"severity"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

func newID() string {
	if id := ids.New(); id != "" {
		return id
	}
	return uuid.NewString()
}

const truncateLen = 12

// Truncate shortens a presented credential to a short prefix safe for
// forensic correlation in event payloads and logs.
func Truncate(s string) string {
	if len(s) <= truncateLen {
		return s
	}
	return s[:truncateLen] + "..."
}
