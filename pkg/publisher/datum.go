package publisher

import (
	"context"
	"maps"
	"slices"
	"time"
)

// BatchSize is the maximum number of points sent in one call.
const BatchSize = 20

// DefaultNamespace is the metric namespace used when none is configured.
const DefaultNamespace = "BedrockUsage"

// Metric names.
const (
	MetricInputTokens            = "InputTokens"
	MetricOutputTokens           = "OutputTokens"
	MetricTotalTokens            = "TotalTokens"
	MetricEstimatedCost          = "EstimatedCost"
	MetricTotalTokensPerIncident = "TotalTokensPerIncident"
	MetricAPIErrors              = "APIErrors"
)

// Dimension names.
const (
	DimAgentID    = "AgentId"
	DimModelID    = "ModelId"
	DimIncidentID = "IncidentId"
	DimErrorCode  = "ErrorCode"
)

// Units. CloudWatch has no currency unit, so cost is published as None.
const (
	UnitCount = "Count"
	UnitNone  = "None"
)

// Dimension is one name/value pair of a data point.
type Dimension struct {
	Name  string
	Value string
}

// Datum is one metric data point.
type Datum struct {
	Name       string
	Value      float64
	Unit       string
	Dimensions []Dimension
	Timestamp  time.Time
}

// Dimension returns the value of the named dimension, or "".
func (d Datum) Dimension(name string) string {
	for _, dim := range d.Dimensions {
		if dim.Name == name {
			return dim.Value
		}
	}
	return ""
}

// Dimensions converts a map into dimensions ordered by name.
func Dimensions(m map[string]string) []Dimension {
	dims := make([]Dimension, 0, len(m))
	for _, name := range slices.Sorted(maps.Keys(m)) {
		dims = append(dims, Dimension{Name: name, Value: m[name]})
	}
	return dims
}

// Backend receives batches of data points.
type Backend interface {
	// PutMetricData publishes at most BatchSize points under namespace.
	PutMetricData(ctx context.Context, namespace string, data []Datum) error
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, namespace string, data []Datum) error

// PutMetricData calls f(ctx, namespace, data).
func (f BackendFunc) PutMetricData(ctx context.Context, namespace string, data []Datum) error {
	return f(ctx, namespace, data)
}
