package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	iterationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_iterations_total",
		Help: "Total number of control-loop iterations, labeled by run.",
	}, []string{"run_id"})

	bestScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scheduler_best_score",
		Help: "Best evaluation score observed so far, labeled by run.",
	}, []string{"run_id"})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scheduler_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open), labeled by breaker name.",
	}, []string{"name"})

	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_cache_hits_total",
		Help: "Total cache hits, labeled by tier (l1/l2).",
	}, []string{"tier"})

	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_cache_misses_total",
		Help: "Total cache misses, labeled by tier (l1/l2).",
	}, []string{"tier"})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scheduler_queue_depth",
		Help: "Current depth of a task queue, labeled by priority band.",
	}, []string{"priority"})

	fallbackActivationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_fallback_activations_total",
		Help: "Total static fallback activations, labeled by scenario.",
	}, []string{"scenario"})

	fallbackActivationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduler_fallback_activation_duration_seconds",
		Help:    "Time spent activating a static fallback schedule, labeled by scenario.",
		Buckets: prometheus.DefBuckets,
	}, []string{"scenario"})
)

// RecordIteration increments the iteration counter for a run.
func RecordIteration(runID string) {
	iterationsTotal.WithLabelValues(runID).Inc()
}

// RecordBestScore sets the best-score gauge for a run.
func RecordBestScore(runID string, score float64) {
	bestScore.WithLabelValues(runID).Set(score)
}

// CircuitState enumerates the gauge values reported for a circuit breaker.
type CircuitState float64

const (
	CircuitClosed   CircuitState = 0
	CircuitHalfOpen CircuitState = 1
	CircuitOpen     CircuitState = 2
)

// RecordCircuitBreakerState sets the circuit breaker state gauge.
func RecordCircuitBreakerState(name string, state CircuitState) {
	circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordCacheHit increments the hit counter for a cache tier.
func RecordCacheHit(tier string) {
	cacheHitsTotal.WithLabelValues(tier).Inc()
}

// RecordCacheMiss increments the miss counter for a cache tier.
func RecordCacheMiss(tier string) {
	cacheMissesTotal.WithLabelValues(tier).Inc()
}

// RecordQueueDepth sets the depth gauge for a priority band.
func RecordQueueDepth(priority string, depth int) {
	queueDepth.WithLabelValues(priority).Set(float64(depth))
}

// RecordFallbackActivation increments the activation counter and observes
// the activation latency for a fallback scenario.
func RecordFallbackActivation(scenario string, d time.Duration) {
	fallbackActivationsTotal.WithLabelValues(scenario).Inc()
	fallbackActivationDuration.WithLabelValues(scenario).Observe(d.Seconds())
}
