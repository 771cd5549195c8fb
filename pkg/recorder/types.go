package recorder

import (
	"context"
	"net/http"
	"strings"
)

// Response metadata keys holding Bedrock token counts.
const (
	HeaderInputTokenCount  = "X-Amzn-Bedrock-Input-Token-Count"
	HeaderOutputTokenCount = "X-Amzn-Bedrock-Output-Token-Count"
)

// Request is a single model invocation.
type Request struct {
	ModelID     string
	Body        []byte
	ContentType string
	Accept      string
}

// Response is the result of a model invocation.
type Response struct {
	Body        []byte
	ContentType string

	// Metadata holds response headers keyed by canonical header name.
	Metadata map[string]string
}

// Header returns a metadata value by header name, case-insensitively.
func (r *Response) Header(name string) string {
	if r == nil || r.Metadata == nil {
		return ""
	}
	if v, ok := r.Metadata[http.CanonicalHeaderKey(name)]; ok {
		return v
	}
	for k, v := range r.Metadata {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Invoker performs model invocations.
type Invoker interface {
	InvokeModel(ctx context.Context, req *Request) (*Response, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req *Request) (*Response, error)

// InvokeModel calls f(ctx, req).
func (f InvokerFunc) InvokeModel(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware wraps an Invoker with additional behaviour.
type Middleware func(Invoker) Invoker

// Call describes one metered invocation.
type Call struct {
	// ModelID is the model to invoke.
	ModelID string

	// Body is the request payload. []byte and string are sent as-is,
	// anything else is JSON-encoded.
	Body any

	// ContentType and Accept are passed to the Invoker unchanged. Empty
	// values leave the choice to the Invoker.
	ContentType string
	Accept      string

	// AgentID identifies the caller.
	AgentID string

	// IncidentID ties the call to an incident. When empty, the incident
	// in the context (logging.WithIncidentID) is used.
	IncidentID string

	// Context is copied into the usage record.
	Context map[string]any
}
