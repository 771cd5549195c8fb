// Package dispatcher delivers usage records to their sinks off the caller's
// path.
//
// A Dispatcher owns one lane per sink. A lane is a bounded queue drained by a
// single worker, so calls to one sink keep their submission order while the
// metrics and record sinks progress independently. Submit never blocks: when
// a lane is full the item is dropped and counted.
//
// Every sink call runs under a write timeout, recovers from panics and is
// guarded by the lane's CircuitBreaker. Sink errors stop at this boundary;
// they are logged, counted and fed to the breaker but never returned to the
// caller that submitted the record.
//
// # Circuit Breaker
//
// A breaker opens after FailureThreshold consecutive failures. While open,
// calls are skipped. Once RecoveryTimeout has elapsed a single trial call is
// admitted (half-open); its success closes the breaker and its failure
// re-opens it with a fresh timeout.
//
// # Incidents
//
// Incidents tracks the incidents currently being worked on. IncidentContext
// registers an incident for the duration of a function and removes it on
// every exit path, including panics.
package dispatcher
