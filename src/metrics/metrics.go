// Package metrics exposes Prometheus collectors for build orchestration.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "buildctl"

// Metrics holds the collectors updated by the poll, retry, resolve and
// orchestrator packages.
type Metrics struct {
	pollSleeps      prometheus.Counter
	pollResults     *prometheus.CounterVec
	retryAttempts   *prometheus.CounterVec
	downloadedBytes prometheus.Counter
	operations      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when reg is non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pollSleeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_sleeps_total",
			Help:      "Number of interval sleeps performed while waiting for builds.",
		}),
		pollResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_results_total",
			Help:      "Outcomes of wait-for-build operations.",
		}, []string{"outcome"}),
		retryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Attempts made by the retry executor, by result.",
		}, []string{"result"}),
		downloadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes of contribution content written to disk.",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Orchestrator operations by name and outcome.",
		}, []string{"operation", "outcome"}),
	}

	if reg != nil {
		reg.MustRegister(m.pollSleeps, m.pollResults, m.retryAttempts, m.downloadedBytes, m.operations)
	}
	return m
}

// PollSlept counts one interval sleep.
func (m *Metrics) PollSlept() {
	if m == nil {
		return
	}
	m.pollSleeps.Inc()
}

// PollFinished counts a wait outcome: matched, timed_out, interrupted or error.
func (m *Metrics) PollFinished(outcome string) {
	if m == nil {
		return
	}
	m.pollResults.WithLabelValues(outcome).Inc()
}

// RetryAttempt counts one attempt with its result: success, transient or permanent.
func (m *Metrics) RetryAttempt(result string) {
	if m == nil {
		return
	}
	m.retryAttempts.WithLabelValues(result).Inc()
}

// Downloaded adds n bytes to the download counter.
func (m *Metrics) Downloaded(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.downloadedBytes.Add(float64(n))
}

// Operation counts one orchestrator operation.
func (m *Metrics) Operation(name, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(name, outcome).Inc()
}
