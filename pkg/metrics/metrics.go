// Package metrics provides Prometheus metrics for adsync.
//
// Basic usage:
//
//	metrics.APIRequests.WithLabelValues("act_123/campaigns", "success").Inc()
//	metrics.Records.WithLabelValues("campaigns", "saved").Inc()
//
// Counter labels are low-cardinality by construction: endpoints are recorded
// by their path template, not their full URL.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIRequests counts Graph API requests by endpoint and outcome
	// (success, error, retry_exhausted).
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adsync",
		Name:      "api_requests_total",
		Help:      "Total Graph API requests by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	// APIRetries counts retry sleeps by reason (rate_limit, timeout, generic).
	APIRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adsync",
		Name:      "api_retries_total",
		Help:      "Total Graph API retries by reason",
	}, []string{"reason"})

	// APIRequestDuration observes request latency per endpoint.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "adsync",
		Name:      "api_request_duration_seconds",
		Help:      "Graph API request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})

	// Records counts processed records by entity and outcome
	// (saved, skipped, failed).
	Records = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adsync",
		Name:      "records_total",
		Help:      "Total records processed by entity and outcome",
	}, []string{"entity", "outcome"})

	// Scopes counts completed scope jobs by entity and outcome (ok, failed).
	Scopes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adsync",
		Name:      "scopes_total",
		Help:      "Total scope sync jobs by entity and outcome",
	}, []string{"entity", "outcome"})

	// ActiveWorkers tracks in-flight fan-out workers.
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "adsync",
		Name:      "active_workers",
		Help:      "Number of in-flight scope workers",
	})
)

// Handler returns the HTTP handler serving the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a metrics HTTP server on addr. It blocks, so callers run it
// in a goroutine; errors after the run finishes are not interesting.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux) //nolint:gosec // G114: internal endpoint
}
