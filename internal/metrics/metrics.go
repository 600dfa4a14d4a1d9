// Package metrics holds the Prometheus collectors for the contact-safety pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VerificationTotal counts verification outcomes by method.
	VerificationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_verification_total",
			Help: "Source page verification outcomes by method",
		},
		[]string{"method"},
	)

	// PageFetchDuration is the latency of source page fetches in seconds.
	PageFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_page_fetch_duration_seconds",
			Help:    "Source page fetch latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"outcome"},
	)

	// SuppressionChecks counts suppression lookups by result.
	SuppressionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suppression_checks_total",
			Help: "Suppression checks by result (suppressed, clear, fail_open)",
		},
		[]string{"result"},
	)

	// SuppressionCacheLookups counts cache hits and misses.
	SuppressionCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suppression_cache_lookups_total",
			Help: "Suppression cache lookups by outcome (hit, miss)",
		},
		[]string{"outcome"},
	)

	// SuppressionWrites counts addSuppression calls by outcome.
	SuppressionWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suppression_writes_total",
			Help: "Suppression inserts by outcome (inserted, duplicate, failed)",
		},
		[]string{"outcome"},
	)

	// ScreenDecisions counts discovery gate decisions.
	ScreenDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_screen_decisions_total",
			Help: "Discovery gate decisions by outcome (persist_sendable, persist_unsendable, dropped)",
		},
		[]string{"outcome"},
	)
)

// RecordVerification records one verification outcome.
func RecordVerification(method string) {
	VerificationTotal.WithLabelValues(method).Inc()
}

// RecordPageFetch records a page fetch latency.
func RecordPageFetch(outcome string, d time.Duration) {
	PageFetchDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordSuppressionCheck records a check result.
func RecordSuppressionCheck(result string) {
	SuppressionChecks.WithLabelValues(result).Inc()
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		SuppressionCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	SuppressionCacheLookups.WithLabelValues("miss").Inc()
}

// RecordSuppressionWrite records an insert outcome.
func RecordSuppressionWrite(outcome string) {
	SuppressionWrites.WithLabelValues(outcome).Inc()
}

// RecordScreenDecision records a discovery gate outcome.
func RecordScreenDecision(outcome string) {
	ScreenDecisions.WithLabelValues(outcome).Inc()
}
