// Package health serves liveness and readiness probes next to the metrics
// endpoint.
//
// Readiness aggregates named checks, typically one per delivery sink. A
// check returning an error marks the process degraded and the readiness
// endpoint answers 503:
//
//	checker := health.New(2 * time.Second)
//	checker.Register("store", health.BreakerCheck(d.Breaker(dispatcher.SinkStore)))
//	mux.Handle("/readyz", checker.ReadinessHandler())
package health
