package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the connection module.
type Metrics struct {
	// Transition outcomes by event and result
	Transitions *prometheus.CounterVec

	// Full transition latency including persistence
	TransitionLatency prometheus.Histogram

	// Optimistic conflicts surfaced to callers
	Conflicts prometheus.Counter
}

// New creates a Metrics instance with all connection module metrics registered.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "linknet_connection_transitions_total",
			Help: "Connection lifecycle transitions by event and outcome",
		}, []string{"event", "outcome"}), // outcome: "ok", "rejected", "error"

		TransitionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "linknet_connection_transition_duration_seconds",
			Help:    "Duration of a full transition including persistence",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		Conflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "linknet_connection_conflicts_total",
			Help: "Transitions failed on an optimistic concurrency check",
		}),
	}
}

// ObserveTransition records one transition attempt.
func (m *Metrics) ObserveTransition(event, outcome string, d time.Duration) {
	if m != nil {
		m.Transitions.WithLabelValues(event, outcome).Inc()
		m.TransitionLatency.Observe(d.Seconds())
	}
}

// IncrementConflicts records an optimistic conflict.
func (m *Metrics) IncrementConflicts() {
	if m != nil {
		m.Conflicts.Inc()
	}
}
