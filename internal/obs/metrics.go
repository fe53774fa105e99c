package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	securityEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_events_total",
			Help: "Security events recorded, by type and severity.",
		},
		[]string{"type", "severity"},
	)

	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "security_active_sessions",
		Help: "Live sessions across all users.",
	})

	activeAPIKeys = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "security_active_api_keys",
		Help: "API keys currently active.",
	})

	lockedIdentifiers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "security_locked_identifiers",
		Help: "Identifiers currently under login lockout.",
	})
)

// Init registers the security metrics in the default registry.
func Init() {
	prometheus.MustRegister(securityEventsTotal, activeSessions, activeAPIKeys, lockedIdentifiers)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CountEvent increments the event counter.
func CountEvent(eventType, severity string) {
	securityEventsTotal.WithLabelValues(eventType, severity).Inc()
}

// SetGauges refreshes the snapshot gauges; called from the core sweep loop.
func SetGauges(sessions, apiKeys, locked int) {
	activeSessions.Set(float64(sessions))
	activeAPIKeys.Set(float64(apiKeys))
	lockedIdentifiers.Set(float64(locked))
}
