package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// MultiBackend sends every batch to all of its backends. A failure of one
// backend does not stop delivery to the others.
type MultiBackend struct {
	names    []string
	backends []Backend
}

// NewMultiBackend creates an empty fan-out backend.
func NewMultiBackend() *MultiBackend {
	return &MultiBackend{}
}

// Add registers a named backend.
func (m *MultiBackend) Add(name string, b Backend) *MultiBackend {
	m.names = append(m.names, name)
	m.backends = append(m.backends, b)
	return m
}

// Len returns the number of backends.
func (m *MultiBackend) Len() int {
	return len(m.backends)
}

// PutMetricData implements Backend.
func (m *MultiBackend) PutMetricData(ctx context.Context, namespace string, data []Datum) error {
	var errs []error
	for i, b := range m.backends {
		if err := b.PutMetricData(ctx, namespace, data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.names[i], err))
		}
	}
	return errors.Join(errs...)
}

// LogBackend writes points to a logger.
type LogBackend struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogBackend creates a log backend. A nil logger uses the default logger.
func NewLogBackend(logger *slog.Logger, level slog.Level) *LogBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogBackend{logger: logger.With("component", "publisher.log"), level: level}
}

// PutMetricData implements Backend.
func (b *LogBackend) PutMetricData(ctx context.Context, namespace string, data []Datum) error {
	for _, d := range data {
		attrs := []any{
			"namespace", namespace,
			"metric", d.Name,
			"value", d.Value,
			"unit", d.Unit,
			"timestamp", d.Timestamp,
		}
		for _, dim := range d.Dimensions {
			attrs = append(attrs, dim.Name, dim.Value)
		}
		b.logger.Log(ctx, b.level, "metric", attrs...)
	}
	return nil
}
