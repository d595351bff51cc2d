package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TokenAcquireDuration tracks how long callers waited for a rate-limit token
	TokenAcquireDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "limiter_token_acquire_seconds",
			Help: "Time spent waiting for a rate-limit token",
			Buckets: []float64{
				0.001,
				0.01,
				0.1,
				1.0,
				10.0,
				60.0,
				300.0,
				1800.0,
				3600.0,
			},
		},
		[]string{"operation"},
	)

	// TokensGranted counts granted tokens per operation kind
	TokensGranted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "limiter_tokens_granted_total",
			Help: "Rate-limit tokens granted",
		},
		[]string{"operation"},
	)

	// StepsExecuted counts lead steps by kind and result
	StepsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_steps_executed_total",
			Help: "Lead steps executed by kind and result",
		},
		[]string{"kind", "result"},
	)

	// ActivityRetries counts retry attempts at the activity boundary
	ActivityRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_retries_total",
			Help: "Activity retry attempts",
		},
		[]string{"activity"},
	)

	// ExecutorsSpawned counts lead executors started per campaign
	ExecutorsSpawned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_executors_spawned_total",
			Help: "Lead step executors spawned",
		},
		[]string{"campaign"},
	)
)

// RecordTokenGrant records one granted token and the wait it took
func RecordTokenGrant(operation string, waitSeconds float64) {
	TokensGranted.WithLabelValues(operation).Inc()
	TokenAcquireDuration.WithLabelValues(operation).Observe(waitSeconds)
}

// RecordStep records one executed step
func RecordStep(kind, result string) {
	StepsExecuted.WithLabelValues(kind, result).Inc()
}

// RecordActivityRetry records one retry attempt
func RecordActivityRetry(activity string) {
	ActivityRetries.WithLabelValues(activity).Inc()
}
