// Package tracing provides OpenTelemetry tracing for tokenmeter.
//
// When tracing is enabled, spans are exported over OTLP gRPC with a
// parent-based sampler. When it is disabled, New returns a tracer backed by
// the noop provider so instrumented code pays almost nothing.
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "recorder.invoke")
//	defer span.End()
//	tracing.SetUsageAttributes(span, agentID, modelID, incidentID)
//
// Attribute keys use the "tokenmeter.*" namespace (see attributes.go).
package tracing
