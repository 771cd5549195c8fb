package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on tokenmeter spans.
const (
	AttrAgentID    = "tokenmeter.agent_id"
	AttrModelID    = "tokenmeter.model_id"
	AttrIncidentID = "tokenmeter.incident_id"

	AttrTokensInput  = "tokenmeter.tokens.input"
	AttrTokensOutput = "tokenmeter.tokens.output"
	AttrTokensTotal  = "tokenmeter.tokens.total"
	AttrCost         = "tokenmeter.cost.usd"

	AttrSink         = "tokenmeter.sink"
	AttrBreakerState = "tokenmeter.breaker.state"

	AttrErrorCode    = "tokenmeter.error.code"
	AttrErrorMessage = "error.message"

	AttrDurationSeconds = "tokenmeter.duration_seconds"
)

// SetUsageAttributes sets the identifying attributes of a metered call.
// The incident attribute is only set when incidentID is non-empty.
func SetUsageAttributes(span trace.Span, agentID, modelID, incidentID string) {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAgentID, agentID),
		attribute.String(AttrModelID, modelID),
	}
	if incidentID != "" {
		attrs = append(attrs, attribute.String(AttrIncidentID, incidentID))
	}
	span.SetAttributes(attrs...)
}

// SetTokenAttributes sets token counts and the estimated cost on a span.
func SetTokenAttributes(span trace.Span, inputTokens, outputTokens int64, cost float64) {
	span.SetAttributes(
		attribute.Int64(AttrTokensInput, inputTokens),
		attribute.Int64(AttrTokensOutput, outputTokens),
		attribute.Int64(AttrTokensTotal, inputTokens+outputTokens),
		attribute.Float64(AttrCost, cost),
	)
}

// SetErrorCode records an invocation error code on a span together with
// the error itself.
func SetErrorCode(span trace.Span, code string, err error) {
	span.SetAttributes(attribute.String(AttrErrorCode, code))
	SetError(span, err)
	SetStatus(span, err)
}
