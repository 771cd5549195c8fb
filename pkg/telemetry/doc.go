// Package telemetry groups the observability of tokenmeter itself.
//
// # Components
//
//   - logging: slog setup, with usage identifiers carried in the context
//   - metrics: Prometheus collectors for usage and delivery
//   - tracing: OpenTelemetry spans around invocations and sink writes
//   - health: liveness and readiness probes
//
// # Usage
//
//	logger, err := logging.Setup(logging.Config{Level: "info", Format: "json"})
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	http.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	ctx, span := tracer.Start(ctx, "bedrock.invoke")
//	defer span.End()
//
// The usage metrics here are local to the process. The CloudWatch series
// that agents are billed against are written by package publisher.
package telemetry
