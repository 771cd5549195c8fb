package export

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"mercator-hq/tokenmeter/pkg/usage"
)

// Supported formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Exporter writes usage records to w.
type Exporter interface {
	Export(ctx context.Context, records []*usage.Record, w io.Writer) error
	ExportStream(ctx context.Context, records <-chan *usage.Record, w io.Writer) error
}

// New returns the exporter for format. pretty only affects JSON.
func New(format string, pretty bool) (Exporter, error) {
	switch strings.ToLower(format) {
	case FormatCSV:
		return NewCSVExporter(true), nil
	case FormatJSON:
		return NewJSONExporter(pretty), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (supported: %s, %s)", format, FormatCSV, FormatJSON)
	}
}

// DefaultFilename returns bedrock_usage_export_YYYYMMDD_HHMMSS.<format>.
func DefaultFilename(format string, now time.Time) string {
	return fmt.Sprintf("bedrock_usage_export_%s.%s", now.Format("20060102_150405"), strings.ToLower(format))
}
