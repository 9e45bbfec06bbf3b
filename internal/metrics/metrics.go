// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adpulse_requests_total",
			Help: "Total number of API requests processed",
		},
		[]string{"workspace_id", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adpulse_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"endpoint"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adpulse_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"workspace_id", "class"},
	)

	AutomationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adpulse_automation_runs_total",
			Help: "Total number of automation executions",
		},
		[]string{"type", "status"},
	)

	CreditsSpent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adpulse_credits_spent_total",
			Help: "Total credits deducted from workspace balances",
		},
		[]string{"workspace_id", "operation"},
	)

	CreativeGenerations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adpulse_creative_generations_total",
			Help: "Total number of AI creative generations",
		},
		[]string{"workspace_id", "provider", "model", "status"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adpulse_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"kind"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adpulse_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"kind"},
	)

	ScrapeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adpulse_scrape_requests_total",
			Help: "Total number of competitor ad library fetches",
		},
		[]string{"platform", "status"},
	)

	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adpulse_provider_errors_total",
			Help: "Total number of AI provider errors",
		},
		[]string{"provider", "error_type"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adpulse_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"provider"},
	)

	TrackedIdentifiers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adpulse_rate_limiter_identifiers",
			Help: "Number of identifiers currently tracked per limiter class",
		},
		[]string{"class"},
	)
)

func RecordRequest(workspaceID, endpoint, status string, seconds float64) {
	RequestsTotal.WithLabelValues(workspaceID, endpoint, status).Inc()
	RequestDuration.WithLabelValues(endpoint).Observe(seconds)
}

func RecordRateLimitHit(workspaceID, class string) {
	RateLimitHits.WithLabelValues(workspaceID, class).Inc()
}

func RecordCreditsSpent(workspaceID, operation string, credits int64) {
	CreditsSpent.WithLabelValues(workspaceID, operation).Add(float64(credits))
}

func SetCircuitBreakerState(provider string, state int) {
	CircuitBreakerState.WithLabelValues(provider).Set(float64(state))
}
