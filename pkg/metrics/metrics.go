// Package metrics exposes prometheus counters and histograms for the
// clean/smudge/merge pipelines, following the same package-level
// var-block-plus-init-registration style as the rest of the tool stack.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ParametersProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "git_theta_parameters_processed_total",
			Help: "Total number of parameters processed by operation and update kind",
		},
		[]string{"operation", "update_kind"},
	)

	ParametersUnchangedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "git_theta_parameters_unchanged_total",
			Help: "Total number of parameters carried forward unchanged (hash-equal or within tolerance)",
		},
	)

	CleanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "git_theta_clean_duration_seconds",
			Help:    "Time taken to clean a checkpoint into a manifest",
			Buckets: prometheus.DefBuckets,
		},
	)

	SmudgeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "git_theta_smudge_duration_seconds",
			Help:    "Time taken to smudge a manifest into a checkpoint",
			Buckets: prometheus.DefBuckets,
		},
	)

	MergeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "git_theta_merge_duration_seconds",
			Help:    "Time taken to resolve a three-way manifest merge",
			Buckets: prometheus.DefBuckets,
		},
	)

	ObjectStoreOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "git_theta_objstore_op_duration_seconds",
			Help:    "Object store operation duration in seconds by op",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	ObjectStoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "git_theta_objstore_errors_total",
			Help: "Total number of object store operation failures by op",
		},
		[]string{"op"},
	)

	LSHMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "git_theta_lsh_matches_total",
			Help: "Total number of similarity index queries by outcome (hit, miss)",
		},
		[]string{"outcome"},
	)

	MergeActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "git_theta_merge_actions_total",
			Help: "Total number of merge actions applied by action and state",
		},
		[]string{"action", "state"},
	)
)

func init() {
	prometheus.MustRegister(
		ParametersProcessedTotal,
		ParametersUnchangedTotal,
		CleanDuration,
		SmudgeDuration,
		MergeDuration,
		ObjectStoreOpDuration,
		ObjectStoreErrorsTotal,
		LSHMatchesTotal,
		MergeActionsTotal,
	)
}

// Handler returns the Prometheus scrape handler, wired by an optional
// metrics-server command (the filter/diff/merge binaries themselves
// never serve HTTP — they are one-shot processes on the filter
// protocol).
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations, matching the rest of the
// stack's usage pattern.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer { return &Timer{start: time.Now()} }

func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}
