// Package httpapi is the read-only operational surface of the
// security core: health, statistics, event queries and metrics. The
// transport carrying actual authentication traffic is an external
// collaborator and not part of this API.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"aegisd.org/internal/core"
	"aegisd.org/internal/event"
	"aegisd.org/internal/obs"
)

// API serves the operational endpoints.
type API struct {
	mux     *http.ServeMux
	core    *core.Core
	logger  *zap.Logger
	version string
	guarded bool
}

// Option configures the API.
type Option func(*API)

// WithBearerGuard requires a valid bearer token with admin permission
// on the stats and event endpoints.
func WithBearerGuard() Option {
	return func(a *API) { a.guarded = true }
}

// New builds the API over the given core.
func New(c *core.Core, logger *zap.Logger, version string, opts ...Option) *API {
	if logger == nil {
		logger = obs.NopLogger()
	}
	a := &API{
		mux:     http.NewServeMux(),
		core:    c,
		logger:  logger,
		version: version,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/statsz", a.Statsz)
	a.mux.HandleFunc("/eventsz", a.Eventsz)
	a.mux.Handle("/metrics", obs.Handler())
	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	h = a.withRateLimit(h)
	h = SecurityHeaders(h)
	h = a.withLogging(h)
	return h
}

// Healthz reports the aggregate core health.
func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  a.core.Health(),
		"service": "aegisd",
		"version": a.version,
	})
}

// Statsz returns the operational snapshot.
func (a *API) Statsz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.core.Stats())
}

// Eventsz queries the event journal. Filters: type, severity, since
// (RFC3339), limit.
func (a *API) Eventsz(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := event.Filter{
		Type:     q.Get("type"),
		Severity: event.Severity(q.Get("severity")),
	}
	if raw := q.Get("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		filter.Since = ts
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	events := a.core.Events.Query(filter)
	if events == nil {
		events = []event.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}
