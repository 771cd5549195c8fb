package publisher

import (
	"context"

	"mercator-hq/tokenmeter/pkg/telemetry/metrics"
)

// PrometheusBackend maps points onto Prometheus usage metrics. Points with
// unknown names are counted as custom metrics.
type PrometheusBackend struct {
	usage *metrics.UsageMetrics
}

// NewPrometheusBackend creates a backend that updates m.
func NewPrometheusBackend(m *metrics.UsageMetrics) *PrometheusBackend {
	return &PrometheusBackend{usage: m}
}

// PutMetricData implements Backend. The namespace is ignored; Prometheus
// metrics carry their own.
func (b *PrometheusBackend) PutMetricData(_ context.Context, _ string, data []Datum) error {
	for _, d := range data {
		agent := d.Dimension(DimAgentID)
		model := d.Dimension(DimModelID)

		switch d.Name {
		case MetricInputTokens:
			b.usage.AddInputTokens(agent, model, d.Value)
		case MetricOutputTokens:
			b.usage.AddOutputTokens(agent, model, d.Value)
		case MetricTotalTokens:
			b.usage.ObserveCallTokens(model, d.Value)
		case MetricEstimatedCost:
			b.usage.AddCost(agent, model, d.Value)
		case MetricTotalTokensPerIncident:
			b.usage.AddIncidentTokens(d.Dimension(DimIncidentID), d.Value)
		case MetricAPIErrors:
			b.usage.AddAPIErrors(agent, model, d.Dimension(DimErrorCode), d.Value)
		default:
			b.usage.AddCustom(d.Name, d.Value)
		}
	}
	return nil
}
