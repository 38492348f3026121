// Package metrics exports the engine's prometheus instrumentation. The
// linearizability divergence counter matters most operationally: divergence
// is repaired silently, so this counter is the only place it is visible.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	BatchesSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "synchrony",
		Name:      "batches_submitted_total",
		Help:      "Batches accepted for processing.",
	})

	BatchesCommitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "synchrony",
		Name:      "batches_committed_total",
		Help:      "Batches durably committed.",
	})

	BatchesAborted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "synchrony",
		Name:      "batches_aborted_total",
		Help:      "Batches aborted with no effects committed.",
	})

	ConflictsDetected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "synchrony",
		Name:      "conflicts_detected_total",
		Help:      "Pairwise conflicts by kind.",
	}, []string{"kind"})

	LinearizabilityDivergences = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "synchrony",
		Name:      "linearizability_divergences_total",
		Help:      "Parallel results discarded in favor of the serial replay.",
	})

	CommitRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "synchrony",
		Name:      "commit_retries_total",
		Help:      "Durable log append attempts beyond the first.",
	})

	BatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "synchrony",
		Name:      "batch_duration_seconds",
		Help:      "End-to-end batch processing time.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
	})
)

func init() {
	prometheus.MustRegister(
		BatchesSubmitted,
		BatchesCommitted,
		BatchesAborted,
		ConflictsDetected,
		LinearizabilityDivergences,
		CommitRetries,
		BatchDuration,
	)
}
