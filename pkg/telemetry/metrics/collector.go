package metrics

import (
	"sync"

	"mercator-hq/tokenmeter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultMaxIncidents bounds the number of distinct incident label values.
const DefaultMaxIncidents = 10000

// Collector manages metric registration for tokenmeter.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	usage    *UsageMetrics
	dispatch *DispatchMetrics
}

// NewCollector creates a collector with the specified configuration and
// registry. If registry is nil a fresh registry is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultPrometheusNamespace
	}
	if len(cfg.TokenCountBuckets) == 0 {
		cfg.TokenCountBuckets = []float64{100, 500, 1000, 5000, 10000, 50000, 100000}
	}
	if len(cfg.CostBuckets) == 0 {
		cfg.CostBuckets = []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0}
	}

	return &Collector{
		config:   cfg,
		registry: registry,
		usage:    NewUsageMetrics(cfg, registry, NewCardinalityLimiter(DefaultMaxIncidents)),
		dispatch: NewDispatchMetrics(cfg, registry),
	}
}

// Usage returns the usage metric group.
func (c *Collector) Usage() *UsageMetrics {
	return c.usage
}

// Dispatch returns the dispatcher metric group.
func (c *Collector) Dispatch() *DispatchMetrics {
	return c.dispatch
}

// Enabled reports whether collection is active. Metric groups of a
// disabled collector accept updates but the CLI does not serve them.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents label cardinality explosion by limiting the
// number of unique values admitted.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting at most maxCardinality
// distinct values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value is already tracked or can still be added.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[value] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
