package logging

import (
	"context"
	"log/slog"
)

// Context keys for usage identifiers.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// AgentIDKey is the context key for the calling agent.
	AgentIDKey contextKey = "agent_id"

	// IncidentIDKey is the context key for the active incident.
	IncidentIDKey contextKey = "incident_id"

	// ModelIDKey is the context key for model identifiers.
	ModelIDKey contextKey = "model_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, RequestIDKey)
}

// WithAgentID adds an agent identifier to the context.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, AgentIDKey, agentID)
}

// GetAgentID retrieves the agent identifier from the context.
func GetAgentID(ctx context.Context) string {
	return stringValue(ctx, AgentIDKey)
}

// WithIncidentID adds an incident identifier to the context.
func WithIncidentID(ctx context.Context, incidentID string) context.Context {
	return context.WithValue(ctx, IncidentIDKey, incidentID)
}

// GetIncidentID retrieves the incident identifier from the context.
func GetIncidentID(ctx context.Context) string {
	return stringValue(ctx, IncidentIDKey)
}

// WithModelID adds a model identifier to the context.
func WithModelID(ctx context.Context, modelID string) context.Context {
	return context.WithValue(ctx, ModelIDKey, modelID)
}

// GetModelID retrieves the model identifier from the context.
func GetModelID(ctx context.Context) string {
	return stringValue(ctx, ModelIDKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// Attrs returns the identifiers present in ctx as slog attributes, in a
// fixed order.
func Attrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	for _, key := range []contextKey{RequestIDKey, AgentIDKey, IncidentIDKey, ModelIDKey} {
		if v := stringValue(ctx, key); v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	return attrs
}
