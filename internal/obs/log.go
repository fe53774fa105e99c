package obs

import (
	"go.uber.org/zap"
)

// NewLogger builds the shared production logger.
func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// NopLogger returns a logger that discards everything. Used as the
// default when no logger is injected, and in tests.
func NopLogger() *zap.Logger {
	return zap.NewNop()
}
