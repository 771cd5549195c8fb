// Package metrics exposes tokenmeter's Prometheus metrics.
//
// A Collector owns a registry and two metric groups:
//
//   - UsageMetrics: token and cost counters per agent and model, per-call
//     histograms, API error counts and tokens per incident.
//   - DispatchMetrics: delivery outcomes, dropped submissions, queue depth
//     and circuit breaker state per sink.
//
// The Prometheus publisher backend writes usage data here and the
// dispatcher reports its own health here. Handler serves the registry:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	http.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// Incident ids are unbounded, so incident labels pass through a
// CardinalityLimiter and collapse to "other" once the limit is reached.
package metrics
