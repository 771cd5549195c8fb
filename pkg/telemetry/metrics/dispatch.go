package metrics

import (
	"mercator-hq/tokenmeter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Delivery outcomes reported by the dispatcher.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// DispatchMetrics tracks the health of asynchronous sink delivery.
//
// Metrics:
//   - tokenmeter_dispatch_total{sink,outcome}
//   - tokenmeter_dispatch_dropped_total{sink}
//   - tokenmeter_dispatch_queue_depth{sink}
//   - tokenmeter_circuit_breaker_state{sink} (0=closed, 1=half-open, 2=open)
type DispatchMetrics struct {
	outcomes     *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	queueDepth   *prometheus.GaugeVec
	breakerState *prometheus.GaugeVec
}

// NewDispatchMetrics creates and registers dispatcher metrics.
func NewDispatchMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *DispatchMetrics {
	dm := &DispatchMetrics{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "dispatch_total",
				Help:      "Sink operations by outcome",
			},
			[]string{"sink", "outcome"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "dispatch_dropped_total",
				Help:      "Submissions dropped because a sink queue was full or closed",
			},
			[]string{"sink"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "dispatch_queue_depth",
				Help:      "Items waiting in a sink queue",
			},
			[]string{"sink"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state per sink (0=closed, 1=half-open, 2=open)",
			},
			[]string{"sink"},
		),
	}

	registry.MustRegister(
		dm.outcomes,
		dm.dropped,
		dm.queueDepth,
		dm.breakerState,
	)

	return dm
}

// RecordOutcome counts one sink operation.
func (dm *DispatchMetrics) RecordOutcome(sink, outcome string) {
	dm.outcomes.WithLabelValues(sink, outcome).Inc()
}

// RecordDropped counts one dropped submission.
func (dm *DispatchMetrics) RecordDropped(sink string) {
	dm.dropped.WithLabelValues(sink).Inc()
}

// SetQueueDepth updates the queue depth of a sink.
func (dm *DispatchMetrics) SetQueueDepth(sink string, depth int) {
	dm.queueDepth.WithLabelValues(sink).Set(float64(depth))
}

// SetBreakerState updates the breaker gauge of a sink.
func (dm *DispatchMetrics) SetBreakerState(sink string, state int) {
	dm.breakerState.WithLabelValues(sink).Set(float64(state))
}
