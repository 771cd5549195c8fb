package metrics

import (
	"mercator-hq/tokenmeter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// OverflowLabel replaces label values rejected by a CardinalityLimiter.
const OverflowLabel = "other"

// UsageMetrics tracks token usage and cost.
//
// Metrics:
//   - tokenmeter_input_tokens_total{agent_id,model_id}
//   - tokenmeter_output_tokens_total{agent_id,model_id}
//   - tokenmeter_tokens_per_call{model_id} (histogram)
//   - tokenmeter_cost_usd_total{agent_id,model_id}
//   - tokenmeter_cost_per_call_usd{model_id} (histogram)
//   - tokenmeter_incident_tokens_total{incident_id}
//   - tokenmeter_api_errors_total{agent_id,model_id,error_code}
//   - tokenmeter_custom_metric_total{name}
type UsageMetrics struct {
	inputTokens    *prometheus.CounterVec
	outputTokens   *prometheus.CounterVec
	tokensPerCall  *prometheus.HistogramVec
	costTotal      *prometheus.CounterVec
	costPerCall    *prometheus.HistogramVec
	incidentTokens *prometheus.CounterVec
	apiErrors      *prometheus.CounterVec
	custom         *prometheus.CounterVec

	incidents *CardinalityLimiter
}

// NewUsageMetrics creates and registers usage metrics with the provided registry.
func NewUsageMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry, incidents *CardinalityLimiter) *UsageMetrics {
	um := &UsageMetrics{
		inputTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "input_tokens_total",
				Help:      "Input tokens consumed by agent and model",
			},
			[]string{"agent_id", "model_id"},
		),
		outputTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "output_tokens_total",
				Help:      "Output tokens produced by agent and model",
			},
			[]string{"agent_id", "model_id"},
		),
		tokensPerCall: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tokens_per_call",
				Help:      "Total tokens per model invocation",
				Buckets:   cfg.TokenCountBuckets,
			},
			[]string{"model_id"},
		),
		costTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cost_usd_total",
				Help:      "Estimated cost in USD by agent and model",
			},
			[]string{"agent_id", "model_id"},
		),
		costPerCall: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cost_per_call_usd",
				Help:      "Estimated cost per model invocation in USD",
				Buckets:   cfg.CostBuckets,
			},
			[]string{"model_id"},
		),
		incidentTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "incident_tokens_total",
				Help:      "Total tokens consumed while handling an incident",
			},
			[]string{"incident_id"},
		),
		apiErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "api_errors_total",
				Help:      "Failed model invocations by error code",
			},
			[]string{"agent_id", "model_id", "error_code"},
		),
		custom: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "custom_metric_total",
				Help:      "Sum of custom metric values by name",
			},
			[]string{"name"},
		),
		incidents: incidents,
	}

	registry.MustRegister(
		um.inputTokens,
		um.outputTokens,
		um.tokensPerCall,
		um.costTotal,
		um.costPerCall,
		um.incidentTokens,
		um.apiErrors,
		um.custom,
	)

	return um
}

// AddInputTokens adds input tokens for an agent and model.
func (um *UsageMetrics) AddInputTokens(agentID, modelID string, tokens float64) {
	if tokens > 0 {
		um.inputTokens.WithLabelValues(agentID, modelID).Add(tokens)
	}
}

// AddOutputTokens adds output tokens for an agent and model.
func (um *UsageMetrics) AddOutputTokens(agentID, modelID string, tokens float64) {
	if tokens > 0 {
		um.outputTokens.WithLabelValues(agentID, modelID).Add(tokens)
	}
}

// ObserveCallTokens records the total tokens of one call.
func (um *UsageMetrics) ObserveCallTokens(modelID string, tokens float64) {
	um.tokensPerCall.WithLabelValues(modelID).Observe(tokens)
}

// AddCost adds the estimated cost of one call and records it in the
// per-call histogram.
func (um *UsageMetrics) AddCost(agentID, modelID string, costUSD float64) {
	if costUSD <= 0 {
		return
	}
	um.costTotal.WithLabelValues(agentID, modelID).Add(costUSD)
	um.costPerCall.WithLabelValues(modelID).Observe(costUSD)
}

// AddIncidentTokens adds tokens consumed for an incident.
func (um *UsageMetrics) AddIncidentTokens(incidentID string, tokens float64) {
	if incidentID == "" || tokens <= 0 {
		return
	}
	if !um.incidents.Allow(incidentID) {
		incidentID = OverflowLabel
	}
	um.incidentTokens.WithLabelValues(incidentID).Add(tokens)
}

// AddAPIErrors counts failed invocations.
func (um *UsageMetrics) AddAPIErrors(agentID, modelID, errorCode string, count float64) {
	if count > 0 {
		um.apiErrors.WithLabelValues(agentID, modelID, errorCode).Add(count)
	}
}

// AddCustom adds the value of a custom metric.
func (um *UsageMetrics) AddCustom(name string, value float64) {
	if value > 0 {
		um.custom.WithLabelValues(name).Add(value)
	}
}
