package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"mercator-hq/tokenmeter/pkg/usage"
)

// Document is the JSON export envelope.
type Document struct {
	ExportTimestamp time.Time       `json:"export_timestamp"`
	RecordCount     int             `json:"record_count"`
	Records         []*usage.Record `json:"records"`
}

// JSONExporter exports usage records as a Document.
type JSONExporter struct {
	// Pretty indents the output.
	Pretty bool

	now func() time.Time
}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty, now: time.Now}
}

func (e *JSONExporter) timestamp() time.Time {
	if e.now == nil {
		return time.Now().UTC()
	}
	return e.now().UTC()
}

// Export writes one Document holding records.
func (e *JSONExporter) Export(ctx context.Context, records []*usage.Record, w io.Writer) error {
	if records == nil {
		records = []*usage.Record{}
	}
	doc := Document{
		ExportTimestamp: e.timestamp(),
		RecordCount:     len(records),
		Records:         records,
	}

	enc := json.NewEncoder(w)
	if e.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(doc); err != nil {
		return usage.NewExportError(FormatJSON, len(records), err)
	}
	return nil
}

// ExportStream writes a Document whose records arrive on a channel. Since
// the count is only known once the channel is closed, record_count follows
// the records array.
func (e *JSONExporter) ExportStream(ctx context.Context, records <-chan *usage.Record, w io.Writer) error {
	ts, err := json.Marshal(e.timestamp())
	if err != nil {
		return usage.NewExportError(FormatJSON, 0, err)
	}

	indent, sep := "", ""
	if e.Pretty {
		indent, sep = "  ", "\n"
	}
	if _, err := fmt.Fprintf(w, "{%s%s\"export_timestamp\": %s,%s%s\"records\": [", sep, indent, ts, sep, indent); err != nil {
		return usage.NewExportError(FormatJSON, 0, err)
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return usage.NewExportError(FormatJSON, count, ctx.Err())
		case rec, ok := <-records:
			if !ok {
				_, err := fmt.Fprintf(w, "],%s%s\"record_count\": %d%s}\n", sep, indent, count, sep)
				if err != nil {
					return usage.NewExportError(FormatJSON, count, err)
				}
				return nil
			}

			data, err := json.Marshal(rec)
			if err != nil {
				return usage.NewExportError(FormatJSON, count, err)
			}
			prefix := ","
			if count == 0 {
				prefix = ""
			}
			if _, err := fmt.Fprintf(w, "%s%s%s%s", prefix, sep, indent+indent, data); err != nil {
				return usage.NewExportError(FormatJSON, count, err)
			}
			count++
		}
	}
}
