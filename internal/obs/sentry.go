package obs

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry enables the Sentry alert sink when a DSN is configured.
// An empty DSN disables it silently.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
}

// CaptureCritical forwards a critical security event to Sentry.
func CaptureCritical(eventType string, data map[string]any) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetTag("security_event", eventType)
		for k, v := range data {
			scope.SetExtra(k, v)
		}
		sentry.CaptureMessage("security event: " + eventType)
	})
}

// FlushSentry drains pending Sentry events on shutdown.
func FlushSentry() {
	sentry.Flush(2 * time.Second)
}
