package monitor

import (
	"context"
	"errors"
	"log/slog"

	"mercator-hq/tokenmeter/pkg/dispatcher"
	"mercator-hq/tokenmeter/pkg/recorder"
	"mercator-hq/tokenmeter/pkg/telemetry/logging"
	"mercator-hq/tokenmeter/pkg/usage"
)

// Agent meters the model calls of one agent.
type Agent struct {
	id         string
	recorder   *recorder.Recorder
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
}

// New creates an Agent. agentID is used for calls that do not name an
// agent themselves.
func New(agentID string, rec *recorder.Recorder, d *dispatcher.Dispatcher) *Agent {
	return &Agent{
		id:         agentID,
		recorder:   rec,
		dispatcher: d,
		logger:     slog.Default().With("component", "monitor", "agent_id", agentID),
	}
}

// ID returns the agent id.
func (a *Agent) ID() string {
	return a.id
}

// Invoke performs a metered invocation and submits its record for
// delivery. The error of a failed invocation is returned unchanged after
// being reported to the metrics sink.
func (a *Agent) Invoke(ctx context.Context, call *recorder.Call) (*recorder.Response, *usage.Record, error) {
	return a.invoke(ctx, a.recorder, call)
}

func (a *Agent) invoke(ctx context.Context, rec *recorder.Recorder, call *recorder.Call) (*recorder.Response, *usage.Record, error) {
	c := *call
	if c.AgentID == "" {
		c.AgentID = a.id
	}

	resp, record, err := rec.Invoke(ctx, &c)
	if err != nil {
		if !errors.Is(err, recorder.ErrNoModel) {
			agentID, modelID := c.AgentID, c.ModelID
			defaultAgent, defaultModel := rec.Defaults()
			if agentID == "" {
				agentID = defaultAgent
			}
			if modelID == "" {
				modelID = defaultModel
			}
			incidentID := c.IncidentID
			if incidentID == "" {
				incidentID = logging.GetIncidentID(ctx)
			}
			a.dispatcher.SubmitError(ctx, agentID, modelID, recorder.ErrorCode(err), incidentID)
		}
		return nil, nil, err
	}

	a.dispatcher.Submit(ctx, record)
	return resp, record, nil
}

// Middleware returns a decorator that meters every call made through the
// wrapped Invoker under agentID. An empty agentID selects the Agent's id.
func (a *Agent) Middleware(agentID string) func(recorder.Invoker) recorder.Invoker {
	return func(next recorder.Invoker) recorder.Invoker {
		rec := a.recorder.With(next)
		return recorder.InvokerFunc(func(ctx context.Context, req *recorder.Request) (*recorder.Response, error) {
			resp, _, err := a.invoke(ctx, rec, &recorder.Call{
				ModelID:     req.ModelID,
				Body:        req.Body,
				ContentType: req.ContentType,
				Accept:      req.Accept,
				AgentID:     agentID,
			})
			return resp, err
		})
	}
}

// IncidentContext runs fn with the incident registered as active. Calls
// made through the Agent inside fn are attributed to the incident.
func (a *Agent) IncidentContext(ctx context.Context, incidentID string, meta map[string]any, fn func(ctx context.Context) error) error {
	return a.dispatcher.IncidentContext(ctx, incidentID, meta, fn)
}

// ActiveIncidents returns the incidents currently in progress.
func (a *Agent) ActiveIncidents() []dispatcher.Incident {
	return a.dispatcher.Incidents().Active()
}

// FlushAll waits for queued deliveries and flushes buffered metrics.
func (a *Agent) FlushAll(ctx context.Context) error {
	return a.dispatcher.FlushAll(ctx)
}

// Close drains the dispatcher.
func (a *Agent) Close(ctx context.Context) error {
	a.logger.InfoContext(ctx, "closing agent monitor")
	return a.dispatcher.Close(ctx)
}
