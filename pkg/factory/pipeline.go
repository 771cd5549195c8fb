package factory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"mercator-hq/tokenmeter/pkg/analyzer"
	"mercator-hq/tokenmeter/pkg/config"
	"mercator-hq/tokenmeter/pkg/dispatcher"
	"mercator-hq/tokenmeter/pkg/monitor"
	"mercator-hq/tokenmeter/pkg/pricing"
	"mercator-hq/tokenmeter/pkg/publisher"
	"mercator-hq/tokenmeter/pkg/recorder"
	"mercator-hq/tokenmeter/pkg/store/retention"
	"mercator-hq/tokenmeter/pkg/telemetry/health"
	"mercator-hq/tokenmeter/pkg/telemetry/metrics"
	"mercator-hq/tokenmeter/pkg/telemetry/tracing"
	"mercator-hq/tokenmeter/pkg/usage"
)

// ErrStoreDisabled is returned by operations that need a usage store when
// none is configured.
var ErrStoreDisabled = errors.New("usage store is disabled")

// Pipeline is a fully wired metering pipeline. Agents created from it share
// one dispatcher. Pipeline is safe for concurrent use.
type Pipeline struct {
	Config       *config.Config
	Prices       *pricing.Table
	PriceWatcher *pricing.Watcher
	Metrics      *metrics.Collector
	Tracer       *tracing.Tracer
	Store        usage.Store
	CloudWatch   *publisher.CloudWatchBackend
	Publisher    *publisher.Publisher
	Dispatcher   *dispatcher.Dispatcher
	Recorder     *recorder.Recorder
	Health       *health.Checker

	mu     sync.Mutex
	agents map[string]*monitor.Agent
	closed bool
	logger *slog.Logger
}

// Build wires every component described by cfg. On error, whatever was
// already opened is closed.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (_ *Pipeline, err error) {
	b := newBuilder(cfg, opts)
	p := &Pipeline{
		Config: cfg,
		agents: make(map[string]*monitor.Agent),
		logger: slog.Default().With("component", "factory"),
	}
	defer func() {
		if err != nil {
			p.closeResources(ctx)
		}
	}()

	if p.Tracer, err = tracing.New(&cfg.Telemetry.Tracing); err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	if p.Tracer.Enabled() {
		p.Tracer.SetGlobal()
	}
	p.Metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, b.registry)

	if p.Prices, p.PriceWatcher, err = NewPricingTable(&cfg.Pricing); err != nil {
		return nil, err
	}
	if p.Store, err = b.store(ctx); err != nil {
		return nil, err
	}
	if p.Publisher, p.CloudWatch, err = b.publisher(ctx, p.Metrics); err != nil {
		return nil, err
	}
	if p.Recorder, err = b.recorder(ctx, p.Prices, p.Tracer); err != nil {
		return nil, err
	}

	// Typed nils must not reach the dispatcher as non-nil sinks.
	var metricsSink dispatcher.MetricsSink
	if p.Publisher != nil {
		metricsSink = p.Publisher
	}
	var recordSink dispatcher.RecordSink
	if p.Store != nil {
		recordSink = p.Store
	}
	p.Dispatcher = dispatcher.New(cfg.Dispatcher, metricsSink, recordSink,
		dispatcher.WithMetrics(p.Metrics.Dispatch()),
		dispatcher.WithTracer(p.Tracer),
	)

	p.Health = health.New(0)
	for _, sink := range []string{dispatcher.SinkMetrics, dispatcher.SinkStore} {
		if br := p.Dispatcher.Breaker(sink); br != nil {
			p.Health.Register("sink:"+sink, health.BreakerCheck(br))
		}
	}
	if pinger, ok := p.Store.(interface{ Ping(context.Context) error }); ok {
		p.Health.Register("store", pinger.Ping)
	}

	p.logger.Info("pipeline built",
		"store", storeName(cfg),
		"metrics_backends", publisherNames(cfg),
		"tracing", p.Tracer.Enabled(),
	)
	return p, nil
}

func storeName(cfg *config.Config) string {
	if !cfg.Store.Enabled {
		return "disabled"
	}
	return cfg.Store.Backend
}

func publisherNames(cfg *config.Config) []string {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return cfg.Metrics.Backends
}

// Agent returns the monitor for agentID, creating it on first use.
func (p *Pipeline) Agent(agentID string) *monitor.Agent {
	p.mu.Lock()
	defer p.mu.Unlock()

	if a, ok := p.agents[agentID]; ok {
		return a
	}
	a := monitor.New(agentID, p.Recorder, p.Dispatcher)
	p.agents[agentID] = a
	p.logger.Debug("agent monitor created", "agent_id", agentID, "total_agents", len(p.agents))
	return a
}

// AgentIDs returns the ids of the agents created so far, sorted.
func (p *Pipeline) AgentIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Sorted(maps.Keys(p.agents))
}

// Analyzer returns a cost analyzer reading from the store.
func (p *Pipeline) Analyzer(opts ...analyzer.Option) (*analyzer.Analyzer, error) {
	if p.Store == nil {
		return nil, ErrStoreDisabled
	}
	return analyzer.New(p.Store, analyzer.ConfigFrom(&p.Config.Analyzer, &p.Config.Alerts), opts...), nil
}

// Purger returns a purger for the store's expired records.
func (p *Pipeline) Purger() (*retention.Purger, error) {
	if p.Store == nil {
		return nil, ErrStoreDisabled
	}
	return retention.NewPurger(p.Store), nil
}

// WatchPrices reloads the pricing file on change until ctx is done. It is a
// no-op when watching is not configured.
func (p *Pipeline) WatchPrices(ctx context.Context) {
	if p.PriceWatcher == nil {
		return
	}
	go func() {
		if err := p.PriceWatcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Error("pricing watcher stopped", "error", err)
		}
	}()
}

// Close drains the dispatcher, then releases the store and the tracer.
// Calling Close more than once is safe.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	var errs []error
	if p.Dispatcher != nil {
		if err := p.Dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("dispatcher: %w", err))
		}
	}
	errs = append(errs, p.closeResources(ctx)...)
	return errors.Join(errs...)
}

func (p *Pipeline) closeResources(ctx context.Context) []error {
	var errs []error
	if p.Store != nil {
		if err := p.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if p.Tracer != nil {
		if err := p.Tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer: %w", err))
		}
	}
	return errs
}
