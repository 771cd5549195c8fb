package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"mercator-hq/tokenmeter/pkg/pricing"
	"mercator-hq/tokenmeter/pkg/telemetry/logging"
	"mercator-hq/tokenmeter/pkg/telemetry/tracing"
	"mercator-hq/tokenmeter/pkg/usage"
)

// ContextExecutionTime is the record context key holding the call duration
// in seconds, rounded to milliseconds.
const ContextExecutionTime = "execution_time_seconds"

// ContextTraceID is the record context key holding the trace id of the
// invocation span, set only when tracing is enabled.
const ContextTraceID = "trace_id"

// ErrNoModel is returned when neither the call nor the recorder names a model.
var ErrNoModel = errors.New("model id is required")

// Recorder meters model invocations.
type Recorder struct {
	invoker Invoker
	prices  *pricing.Table
	tracer  *tracing.Tracer
	logger  *slog.Logger
	now     func() time.Time

	defaultAgentID string
	defaultModelID string
	timeout        time.Duration
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithTracer sets the tracer used for invocation spans.
func WithTracer(t *tracing.Tracer) Option {
	return func(r *Recorder) { r.tracer = t }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithDefaults sets the agent and model used when a call omits them.
func WithDefaults(agentID, modelID string) Option {
	return func(r *Recorder) {
		r.defaultAgentID = agentID
		r.defaultModelID = modelID
	}
}

// WithTimeout bounds each invocation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Recorder) { r.timeout = d }
}

// New creates a Recorder that invokes models through invoker and prices
// them with prices.
func New(invoker Invoker, prices *pricing.Table, opts ...Option) *Recorder {
	r := &Recorder{
		invoker: invoker,
		prices:  prices,
		tracer:  tracing.Noop(),
		logger:  slog.Default().With("component", "recorder"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// With returns a copy of the recorder that invokes through inv.
func (r *Recorder) With(inv Invoker) *Recorder {
	cp := *r
	cp.invoker = inv
	return &cp
}

// Defaults returns the agent and model used when a call omits them.
func (r *Recorder) Defaults() (agentID, modelID string) {
	return r.defaultAgentID, r.defaultModelID
}

// Prices returns the recorder's price table.
func (r *Recorder) Prices() *pricing.Table {
	return r.prices
}

// Invoke performs a metered invocation. On success it returns the model
// response and its usage record. On failure it returns the invoker's error
// unchanged and a nil record.
func (r *Recorder) Invoke(ctx context.Context, call *Call) (*Response, *usage.Record, error) {
	agentID := call.AgentID
	if agentID == "" {
		agentID = r.defaultAgentID
	}
	modelID := call.ModelID
	if modelID == "" {
		modelID = r.defaultModelID
	}
	if modelID == "" {
		return nil, nil, ErrNoModel
	}
	incidentID := call.IncidentID
	if incidentID == "" {
		incidentID = logging.GetIncidentID(ctx)
	}

	body, err := encodeBody(call.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("encode request body: %w", err)
	}

	ctx = logging.WithAgentID(ctx, agentID)
	ctx = logging.WithModelID(ctx, modelID)
	if incidentID != "" {
		ctx = logging.WithIncidentID(ctx, incidentID)
	}

	ctx, span := r.tracer.Start(ctx, "recorder.invoke")
	defer span.End()
	tracing.SetUsageAttributes(span, agentID, modelID, incidentID)

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := r.now()
	resp, err := r.invoker.InvokeModel(callCtx, &Request{
		ModelID:     modelID,
		Body:        body,
		ContentType: call.ContentType,
		Accept:      call.Accept,
	})
	elapsed := r.now().Sub(start)

	if err != nil {
		code := ErrorCode(err)
		tracing.SetErrorCode(span, code, err)
		r.logger.ErrorContext(ctx, "model invocation failed",
			"error_code", code,
			"error_message", ErrorMessage(err),
			"execution_time_seconds", pricing.Round(elapsed.Seconds(), 3),
		)
		return nil, nil, err
	}

	tokens, found := ExtractUsage(resp)
	if !found {
		r.logger.WarnContext(ctx, "no token usage found in response, recording zero tokens")
	}

	cost := r.prices.Cost(modelID, tokens.InputTokens, tokens.OutputTokens)

	record := usage.NewRecord(r.now(), agentID, modelID, incidentID, tokens.InputTokens, tokens.OutputTokens, cost)
	record.RequestID = uuid.NewString()
	record.Context = make(map[string]any, len(call.Context)+1)
	maps.Copy(record.Context, call.Context)
	record.Context[ContextExecutionTime] = pricing.Round(elapsed.Seconds(), 3)
	if traceID := tracing.TraceID(ctx); traceID != "" {
		record.Context[ContextTraceID] = traceID
	}

	tracing.SetTokenAttributes(span, record.InputTokens, record.OutputTokens, record.EstimatedCost)
	tracing.SetStatus(span, nil)

	r.logger.InfoContext(ctx, "model invocation metered",
		"request_id", record.RequestID,
		"input_tokens", record.InputTokens,
		"output_tokens", record.OutputTokens,
		"total_tokens", record.TotalTokens,
		"estimated_cost", record.EstimatedCost,
		"token_source", tokens.Source,
		"execution_time_seconds", record.Context[ContextExecutionTime],
	)

	return resp, record, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return []byte("{}"), nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	case json.RawMessage:
		return b, nil
	default:
		return json.Marshal(b)
	}
}
