package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"mercator-hq/tokenmeter/pkg/config"
	"mercator-hq/tokenmeter/pkg/telemetry/metrics"
	"mercator-hq/tokenmeter/pkg/telemetry/tracing"
	"mercator-hq/tokenmeter/pkg/usage"
)

// Sink names, used for lanes, breakers, logs and metric labels.
const (
	SinkMetrics = "metrics"
	SinkStore   = "store"
)

// ErrClosed is returned by FlushAll after Close.
var ErrClosed = errors.New("dispatcher closed")

// ErrDrainTimeout is returned by Close when queued work is still pending
// after the shutdown grace period.
var ErrDrainTimeout = errors.New("dispatcher drain timed out")

// MetricsSink receives usage metrics. *publisher.Publisher implements it.
type MetricsSink interface {
	Record(ctx context.Context, rec *usage.Record) error
	RecordError(ctx context.Context, agentID, modelID, errorCode, incidentID string) error
	Flush(ctx context.Context) error
}

// RecordSink persists usage records. Every usage.Writer implements it.
type RecordSink interface {
	Put(ctx context.Context, rec *usage.Record) error
}

// task is one unit of work on a lane. A task with a barrier channel is not
// a sink call; the worker closes the channel when it reaches it.
type task struct {
	op      string
	ctx     context.Context
	fn      func(ctx context.Context) error
	barrier chan struct{}
}

type lane struct {
	name    string
	queue   chan task
	breaker *CircuitBreaker
	done    chan struct{}

	delivered atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
	dropped   atomic.Int64
}

// LaneStats is a snapshot of one lane's counters.
type LaneStats struct {
	Queued    int    `json:"queued"`
	Delivered int64  `json:"delivered"`
	Failed    int64  `json:"failed"`
	Skipped   int64  `json:"skipped"`
	Dropped   int64  `json:"dropped"`
	Breaker   string `json:"breaker"`
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics reports outcomes, drops, queue depth and breaker state.
func WithMetrics(m *metrics.DispatchMetrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTracer traces each sink call.
func WithTracer(t *tracing.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithClock replaces time.Now in the breakers.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithIncidents shares an incident registry.
func WithIncidents(r *Incidents) Option {
	return func(d *Dispatcher) { d.incidents = r }
}

// Dispatcher fans usage records out to a metrics sink and a record sink.
// Either sink may be nil, in which case its lane does not exist.
type Dispatcher struct {
	cfg       config.DispatcherConfig
	publisher MetricsSink
	store     RecordSink
	incidents *Incidents
	metrics   *metrics.DispatchMetrics
	tracer    *tracing.Tracer
	now       func() time.Time
	logger    *slog.Logger

	// mu guards closed and sends on lane queues against Close. It is never
	// held across a blocking send; closing releases those first.
	mu     sync.RWMutex
	closed bool
	lanes  map[string]*lane

	closing    chan struct{}
	stopOnce   sync.Once
	stopTicker chan struct{}
	tickerDone chan struct{}
}

// New creates a dispatcher and starts its workers. Zero values in cfg are
// replaced by the config package defaults.
func New(cfg config.DispatcherConfig, publisher MetricsSink, store RecordSink, opts ...Option) *Dispatcher {
	applyDefaults(&cfg)

	d := &Dispatcher{
		cfg:        cfg,
		publisher:  publisher,
		store:      store,
		tracer:     tracing.Noop(),
		now:        time.Now,
		logger:     slog.Default().With("component", "dispatcher"),
		lanes:      make(map[string]*lane),
		closing:    make(chan struct{}),
		stopTicker: make(chan struct{}),
		tickerDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.incidents == nil {
		d.incidents = NewIncidents()
	}

	if publisher != nil {
		d.addLane(SinkMetrics)
	}
	if store != nil {
		d.addLane(SinkStore)
	}

	if publisher != nil {
		go d.flushLoop()
	} else {
		close(d.tickerDone)
	}

	d.logger.Info("dispatcher started",
		"metrics_sink", publisher != nil,
		"store_sink", store != nil,
		"queue_size", cfg.QueueSize,
		"flush_interval", cfg.FlushInterval,
		"failure_threshold", cfg.CircuitBreaker.FailureThreshold,
		"recovery_timeout", cfg.CircuitBreaker.RecoveryTimeout,
	)
	return d
}

func applyDefaults(cfg *config.DispatcherConfig) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = config.DefaultDispatcherQueueSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = config.DefaultDispatcherFlushInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = config.DefaultDispatcherWriteTimeout
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = config.DefaultDispatcherShutdownGrace
	}
	if cfg.CircuitBreaker.FailureThreshold <= 0 {
		cfg.CircuitBreaker.FailureThreshold = config.DefaultBreakerFailureThreshold
	}
	if cfg.CircuitBreaker.RecoveryTimeout <= 0 {
		cfg.CircuitBreaker.RecoveryTimeout = config.DefaultBreakerRecoveryTimeout
	}
}

func (d *Dispatcher) addLane(name string) {
	l := &lane{
		name:  name,
		queue: make(chan task, d.cfg.QueueSize),
		done:  make(chan struct{}),
	}
	l.breaker = NewCircuitBreaker(name,
		d.cfg.CircuitBreaker.FailureThreshold,
		d.cfg.CircuitBreaker.RecoveryTimeout,
		WithBreakerClock(func() time.Time { return d.now() }),
		WithStateChange(d.breakerChanged),
	)
	d.lanes[name] = l
	if d.metrics != nil {
		d.metrics.SetBreakerState(name, int(StateClosed))
	}
	go d.worker(l)
}

func (d *Dispatcher) breakerChanged(name string, from, to State) {
	level := slog.LevelWarn
	if to == StateClosed {
		level = slog.LevelInfo
	}
	d.logger.Log(context.Background(), level, "circuit breaker state changed",
		"sink", name,
		"from", from.String(),
		"to", to.String(),
	)
	if d.metrics != nil {
		d.metrics.SetBreakerState(name, int(to))
	}
}

// Breaker returns the breaker of a sink, or nil if the sink is not
// configured.
func (d *Dispatcher) Breaker(sink string) *CircuitBreaker {
	if l, ok := d.lanes[sink]; ok {
		return l.breaker
	}
	return nil
}

// Incidents returns the incident registry.
func (d *Dispatcher) Incidents() *Incidents {
	return d.incidents
}

// IncidentContext runs fn with the incident registered as active. See
// Incidents.IncidentContext.
func (d *Dispatcher) IncidentContext(ctx context.Context, id string, meta map[string]any, fn func(ctx context.Context) error) error {
	return d.incidents.IncidentContext(ctx, id, meta, fn)
}

// Submit queues rec for both sinks and returns immediately. Values carried
// by ctx reach the sink calls; its cancellation does not.
func (d *Dispatcher) Submit(ctx context.Context, rec *usage.Record) {
	if rec == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	if d.publisher != nil {
		d.enqueue(SinkMetrics, task{op: "record", ctx: ctx, fn: func(c context.Context) error {
			return d.publisher.Record(c, rec)
		}})
	}
	if d.store != nil {
		d.enqueue(SinkStore, task{op: "put", ctx: ctx, fn: func(c context.Context) error {
			return d.store.Put(c, rec)
		}})
	}
}

// SubmitError queues an invocation failure for the metrics sink.
func (d *Dispatcher) SubmitError(ctx context.Context, agentID, modelID, errorCode, incidentID string) {
	if d.publisher == nil {
		return
	}
	d.enqueue(SinkMetrics, task{op: "record_error", ctx: context.WithoutCancel(ctx), fn: func(c context.Context) error {
		return d.publisher.RecordError(c, agentID, modelID, errorCode, incidentID)
	}})
}

// enqueue sends without blocking. A full or closed lane drops the task.
func (d *Dispatcher) enqueue(sink string, t task) bool {
	l := d.lanes[sink]

	// Once Close has begun, drop without touching mu so a pending Close
	// cannot hold up the caller.
	select {
	case <-d.closing:
		d.drop(l, t, "closed")
		return false
	default:
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(l, t, "closed")
		return false
	}

	select {
	case l.queue <- t:
		if d.metrics != nil {
			d.metrics.SetQueueDepth(sink, len(l.queue))
		}
		return true
	default:
		d.drop(l, t, "queue full")
		return false
	}
}

func (d *Dispatcher) drop(l *lane, t task, reason string) {
	l.dropped.Add(1)
	if d.metrics != nil {
		d.metrics.RecordDropped(l.name)
	}
	d.logger.Warn("dropping sink task",
		"sink", l.name,
		"op", t.op,
		"reason", reason,
		"queue_capacity", cap(l.queue),
	)
}

// worker drains a lane until its queue is closed.
func (d *Dispatcher) worker(l *lane) {
	defer close(l.done)
	for t := range l.queue {
		if d.metrics != nil {
			d.metrics.SetQueueDepth(l.name, len(l.queue))
		}
		if t.barrier != nil {
			close(t.barrier)
			continue
		}
		d.run(l, t)
	}
}

// run performs one sink call through the lane's breaker.
func (d *Dispatcher) run(l *lane, t task) {
	if !l.breaker.Allow() {
		l.skipped.Add(1)
		if d.metrics != nil {
			d.metrics.RecordOutcome(l.name, metrics.OutcomeSkipped)
		}
		d.logger.Debug("circuit breaker open, skipping sink call", "sink", l.name, "op", t.op)
		return
	}

	base := t.ctx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithTimeout(base, d.cfg.WriteTimeout)
	defer cancel()
	ctx, span := d.tracer.Start(ctx, "dispatcher."+l.name+"."+t.op)
	defer span.End()
	span.SetAttributes(attribute.String(tracing.AttrSink, l.name))

	start := time.Now()
	err := safeCall(ctx, t.fn)
	tracing.SetStatus(span, err)

	if err != nil {
		l.breaker.Failure()
		l.failed.Add(1)
		if d.metrics != nil {
			d.metrics.RecordOutcome(l.name, metrics.OutcomeFailed)
		}
		d.logger.Warn("sink call failed",
			"sink", l.name,
			"op", t.op,
			"error", err,
			"breaker", l.breaker.State().String(),
		)
		return
	}

	l.breaker.Success()
	l.delivered.Add(1)
	if d.metrics != nil {
		d.metrics.RecordOutcome(l.name, metrics.OutcomeDelivered)
	}

	if elapsed := time.Since(start); elapsed > d.cfg.WriteTimeout/2 {
		d.logger.Warn("slow sink call",
			"sink", l.name,
			"op", t.op,
			"duration_ms", elapsed.Milliseconds(),
			"threshold_ms", (d.cfg.WriteTimeout / 2).Milliseconds(),
		)
	}
}

// safeCall turns a panic in fn into an error.
func safeCall(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Default().Error("sink call panicked",
				"component", "dispatcher",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return fn(ctx)
}

// flushLoop queues a publisher flush every FlushInterval.
func (d *Dispatcher) flushLoop() {
	defer close(d.tickerDone)
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.enqueue(SinkMetrics, d.flushTask())
		case <-d.stopTicker:
			return
		}
	}
}

func (d *Dispatcher) flushTask() task {
	return task{op: "flush", fn: func(ctx context.Context) error {
		return d.publisher.Flush(ctx)
	}}
}

// FlushAll waits until every task queued before the call has been handled
// and the metrics buffer has been flushed, or ctx is done.
func (d *Dispatcher) FlushAll(ctx context.Context) error {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return ErrClosed
	}

	var barriers []chan struct{}
	var err error
	for _, name := range []string{SinkMetrics, SinkStore} {
		l, ok := d.lanes[name]
		if !ok {
			continue
		}
		if name == SinkMetrics {
			if err = d.send(ctx, l, d.flushTask()); err != nil {
				break
			}
		}
		b := make(chan struct{})
		if err = d.send(ctx, l, task{op: "barrier", barrier: b}); err != nil {
			break
		}
		barriers = append(barriers, b)
	}
	d.mu.RUnlock()
	if err != nil {
		return err
	}

	for _, b := range barriers {
		select {
		case <-b:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// send blocks until t is queued, ctx is done or Close begins. Callers
// hold d.mu for reading.
func (d *Dispatcher) send(ctx context.Context, l *lane, t task) error {
	select {
	case l.queue <- t:
		return nil
	case <-d.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake, queues a final flush of the metrics buffer and waits
// for the lanes to drain. The wait is bounded by ShutdownGrace and ctx;
// work still queued after that is abandoned and ErrDrainTimeout returned.
// Close is idempotent.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.stopOnce.Do(func() {
		close(d.closing)
		close(d.stopTicker)
	})
	<-d.tickerDone

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}

	if l, ok := d.lanes[SinkMetrics]; ok {
		select {
		case l.queue <- d.flushTask():
		default:
			d.drop(l, d.flushTask(), "queue full")
		}
	}
	d.closed = true
	for _, l := range d.lanes {
		close(l.queue)
	}
	d.mu.Unlock()

	d.logger.Info("draining sink lanes", "grace", d.cfg.ShutdownGrace)

	ctx, cancel := context.WithTimeout(ctx, d.cfg.ShutdownGrace)
	defer cancel()

	for _, l := range d.lanes {
		select {
		case <-l.done:
		case <-ctx.Done():
			d.logger.Error("shutdown grace elapsed with queued sink tasks",
				"sink", l.name,
				"pending", len(l.queue),
			)
			return ErrDrainTimeout
		}
	}

	d.logger.Info("dispatcher closed")
	return nil
}

// Stats returns a snapshot of every lane's counters keyed by sink name.
func (d *Dispatcher) Stats() map[string]LaneStats {
	out := make(map[string]LaneStats, len(d.lanes))
	for name, l := range d.lanes {
		out[name] = LaneStats{
			Queued:    len(l.queue),
			Delivered: l.delivered.Load(),
			Failed:    l.failed.Load(),
			Skipped:   l.skipped.Load(),
			Dropped:   l.dropped.Load(),
			Breaker:   l.breaker.State().String(),
		}
	}
	return out
}
