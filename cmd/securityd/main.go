package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"aegisd.org/internal/core"
	"aegisd.org/internal/event"
	"aegisd.org/internal/httpapi"
	"aegisd.org/internal/obs"
)

var version = "0.3.1"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger, err := obs.NewLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	obs.Init()

	if err := obs.InitSentry(os.Getenv("AEGISD_SENTRY_DSN"), envOr("AEGISD_ENV", "production")); err != nil {
		logger.Warn("sentry init failed", zap.Error(err))
	}
	defer obs.FlushSentry()

	cfg := configFromEnv()
	c, err := core.New(cfg, core.WithLogger(logger))
	if err != nil {
		logger.Fatal("security core init", zap.Error(err))
	}
	c.Start()
	defer c.Stop()

	// Forward critical events to the alert sink.
	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()
	go func() {
		for evt := range c.Subscribe(subCtx) {
			if evt.Severity == event.SeverityCritical {
				obs.CaptureCritical(evt.Type, evt.Data)
			}
		}
	}()

	var apiOpts []httpapi.Option
	if envOr("AEGISD_GUARD_STATS", "") == "true" {
		apiOpts = append(apiOpts, httpapi.WithBearerGuard())
	}
	api := httpapi.New(c, logger, version, apiOpts...)

	srv := &http.Server{
		Addr:              envOr("AEGISD_ADDR", ":8090"),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting aegisd", zap.String("version", version), zap.String("addr", srv.Addr))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	logger.Info("stopped")
}

func configFromEnv() core.Config {
	cfg := core.DefaultConfig()
	cfg.TokenSecret = os.Getenv("AEGISD_TOKEN_SECRET")
	cfg.RequireSecret = envOr("AEGISD_REQUIRE_SECRET", "") == "true"
	if v := os.Getenv("AEGISD_TOKEN_ISSUER"); v != "" {
		cfg.TokenIssuer = v
	}
	cfg.TokenTTL = envDuration("AEGISD_TOKEN_TTL", cfg.TokenTTL)
	cfg.SessionTTL = envDuration("AEGISD_SESSION_TTL", cfg.SessionTTL)
	cfg.MaxConcurrentSessions = envInt("AEGISD_MAX_SESSIONS", cfg.MaxConcurrentSessions)
	cfg.MaxLoginAttempts = envInt("AEGISD_MAX_LOGIN_ATTEMPTS", cfg.MaxLoginAttempts)
	cfg.LockoutDuration = envDuration("AEGISD_LOCKOUT_DURATION", cfg.LockoutDuration)
	cfg.RateLimitWindow = envDuration("AEGISD_RATE_WINDOW", cfg.RateLimitWindow)
	cfg.RateLimitMaxRequests = envInt("AEGISD_RATE_MAX", cfg.RateLimitMaxRequests)
	cfg.EventRetention = envDuration("AEGISD_EVENT_RETENTION", cfg.EventRetention)
	cfg.PasswordHashCost = envInt("AEGISD_HASH_COST", cfg.PasswordHashCost)
	if v := os.Getenv("AEGISD_API_KEY_PREFIX"); v != "" {
		cfg.APIKeyPrefix = v
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
