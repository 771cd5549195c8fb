package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/tokenmeter/pkg/usage"
)

// Publisher buffers data points and sends them to a Backend.
//
// Publisher is safe for concurrent use. Sends are serialized so batches
// reach the backend in the order they were buffered.
type Publisher struct {
	backend   Backend
	namespace string
	now       func() time.Time
	logger    *slog.Logger

	mu     sync.Mutex
	buffer []Datum

	sendMu sync.Mutex
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithClock replaces time.Now for points recorded without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

// New creates a publisher for backend. An empty namespace selects
// DefaultNamespace.
func New(backend Backend, namespace string, opts ...Option) *Publisher {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	p := &Publisher{
		backend:   backend,
		namespace: namespace,
		now:       time.Now,
		logger:    slog.Default().With("component", "publisher"),
		buffer:    make([]Datum, 0, BatchSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Namespace returns the metric namespace.
func (p *Publisher) Namespace() string {
	return p.namespace
}

// Buffered returns the number of points waiting to be sent.
func (p *Publisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Record buffers the usage points of one invocation and flushes when the
// buffer reaches BatchSize.
func (p *Publisher) Record(ctx context.Context, rec *usage.Record) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = p.now().UTC()
	}

	base := []Dimension{
		{Name: DimAgentID, Value: rec.AgentID},
		{Name: DimModelID, Value: rec.ModelID},
	}

	points := []Datum{
		{Name: MetricInputTokens, Value: float64(rec.InputTokens), Unit: UnitCount, Dimensions: base, Timestamp: ts},
		{Name: MetricOutputTokens, Value: float64(rec.OutputTokens), Unit: UnitCount, Dimensions: base, Timestamp: ts},
		{Name: MetricTotalTokens, Value: float64(rec.TotalTokens), Unit: UnitCount, Dimensions: base, Timestamp: ts},
		{Name: MetricEstimatedCost, Value: rec.EstimatedCost, Unit: UnitNone, Dimensions: base, Timestamp: ts},
	}
	if rec.IncidentID != "" {
		incident := append(base[:len(base):len(base)], Dimension{Name: DimIncidentID, Value: rec.IncidentID})
		points = append(points, Datum{
			Name:       MetricTotalTokensPerIncident,
			Value:      float64(rec.TotalTokens),
			Unit:       UnitCount,
			Dimensions: incident,
			Timestamp:  ts,
		})
	}

	if p.add(points...) {
		return p.Flush(ctx)
	}
	return nil
}

// RecordError buffers one APIErrors point and flushes immediately.
func (p *Publisher) RecordError(ctx context.Context, agentID, modelID, errorCode, incidentID string) error {
	dims := []Dimension{
		{Name: DimAgentID, Value: agentID},
		{Name: DimModelID, Value: modelID},
		{Name: DimErrorCode, Value: errorCode},
	}
	if incidentID != "" {
		dims = append(dims, Dimension{Name: DimIncidentID, Value: incidentID})
	}

	p.add(Datum{Name: MetricAPIErrors, Value: 1, Unit: UnitCount, Dimensions: dims, Timestamp: p.now().UTC()})
	return p.Flush(ctx)
}

// Custom buffers one custom point and flushes when the buffer is full.
func (p *Publisher) Custom(ctx context.Context, name string, value float64, unit string, dims map[string]string) error {
	if name == "" {
		return fmt.Errorf("metric name is required")
	}
	if unit == "" {
		unit = UnitNone
	}
	if p.add(Datum{Name: name, Value: value, Unit: unit, Dimensions: Dimensions(dims), Timestamp: p.now().UTC()}) {
		return p.Flush(ctx)
	}
	return nil
}

// Flush sends all buffered points in batches of BatchSize. A batch the
// backend rejects is dropped; the errors of all failed batches are joined.
func (p *Publisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	pending := p.buffer
	p.buffer = make([]Datum, 0, BatchSize)
	p.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	var errs []error
	sent := 0
	for start := 0; start < len(pending); start += BatchSize {
		batch := pending[start:min(start+BatchSize, len(pending))]
		if err := p.backend.PutMetricData(ctx, p.namespace, batch); err != nil {
			p.logger.ErrorContext(ctx, "failed to publish metrics, dropping batch",
				"namespace", p.namespace,
				"points", len(batch),
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		sent += len(batch)
	}

	if sent > 0 {
		p.logger.DebugContext(ctx, "published metrics", "namespace", p.namespace, "points", sent)
	}
	return errors.Join(errs...)
}

// PublishBatch sends points directly, bypassing the buffer. Points without a
// timestamp are stamped with the current time. It stops at the first failed
// batch.
func (p *Publisher) PublishBatch(ctx context.Context, data []Datum) error {
	now := p.now().UTC()
	stamped := make([]Datum, len(data))
	for i, d := range data {
		if d.Timestamp.IsZero() {
			d.Timestamp = now
		}
		if d.Unit == "" {
			d.Unit = UnitNone
		}
		stamped[i] = d
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	for start := 0; start < len(stamped); start += BatchSize {
		batch := stamped[start:min(start+BatchSize, len(stamped))]
		if err := p.backend.PutMetricData(ctx, p.namespace, batch); err != nil {
			return fmt.Errorf("publish batch at offset %d: %w", start, err)
		}
	}

	p.logger.InfoContext(ctx, "published metric batch", "namespace", p.namespace, "points", len(stamped))
	return nil
}

// add appends points and reports whether the buffer is full.
func (p *Publisher) add(points ...Datum) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffer = append(p.buffer, points...)
	return len(p.buffer) >= BatchSize
}
