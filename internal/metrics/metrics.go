// Package metrics exposes Prometheus instrumentation for the dispatcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plangen_jobs_submitted_total",
			Help: "Total generation submissions by dedup outcome",
		},
		[]string{"plan_type", "outcome"}, // created, reused, cache_hit, conflict
	)

	JobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plangen_jobs_finished_total",
			Help: "Total jobs reaching a terminal state",
		},
		[]string{"plan_type", "status"},
	)

	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plangen_attempts_total",
			Help: "Total upstream attempts by outcome",
		},
		[]string{"outcome"}, // ok or an error code
	)

	AttemptDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "plangen_attempt_duration_seconds",
			Help:    "Upstream attempt latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~200s
		},
	)

	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plangen_cache_hits_total",
			Help: "Result cache hits on submission",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plangen_cache_misses_total",
			Help: "Result cache misses on submission",
		},
	)

	CredentialsAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "plangen_credentials_available",
			Help: "Credentials currently eligible for selection",
		},
	)

	CredentialBlocksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plangen_credential_blocks_total",
			Help: "Credential blocks by kind",
		},
		[]string{"kind"}, // quota, fatal
	)

	SweptTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plangen_swept_total",
			Help: "Rows reclaimed or deleted by maintenance sweeps",
		},
		[]string{"sweep"}, // stale_jobs, expired_jobs, expired_cache
	)
)
