package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"mercator-hq/tokenmeter/pkg/usage"
)

// Columns is the fixed CSV column order.
var Columns = []string{
	"timestamp",
	"agent_id",
	"model_id",
	"incident_id",
	"input_tokens",
	"output_tokens",
	"total_tokens",
	"estimated_cost",
}

// CSVExporter exports usage records to CSV.
type CSVExporter struct {
	// IncludeHeader writes the column names as the first row.
	IncludeHeader bool
}

// NewCSVExporter creates a CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// Export writes records to w.
func (e *CSVExporter) Export(ctx context.Context, records []*usage.Record, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(Columns); err != nil {
			return usage.NewExportError(FormatCSV, 0, err)
		}
	}
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return usage.NewExportError(FormatCSV, i, err)
		}
		if err := writer.Write(recordToRow(rec)); err != nil {
			return usage.NewExportError(FormatCSV, i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return usage.NewExportError(FormatCSV, len(records), err)
	}
	return nil
}

// ExportStream writes records from a channel until it is closed. The
// writer is flushed every 100 rows.
func (e *CSVExporter) ExportStream(ctx context.Context, records <-chan *usage.Record, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(Columns); err != nil {
			return usage.NewExportError(FormatCSV, 0, err)
		}
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return usage.NewExportError(FormatCSV, count, ctx.Err())
		case rec, ok := <-records:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return usage.NewExportError(FormatCSV, count, err)
				}
				return nil
			}
			if err := writer.Write(recordToRow(rec)); err != nil {
				return usage.NewExportError(FormatCSV, count, err)
			}
			count++

			if count%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return usage.NewExportError(FormatCSV, count, err)
				}
			}
		}
	}
}

func recordToRow(rec *usage.Record) []string {
	return []string{
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.AgentID,
		rec.ModelID,
		rec.IncidentID,
		strconv.FormatInt(rec.InputTokens, 10),
		strconv.FormatInt(rec.OutputTokens, 10),
		strconv.FormatInt(rec.TotalTokens, 10),
		fmt.Sprintf("%.6f", rec.EstimatedCost),
	}
}

// ParseCSV reads records written by CSVExporter. The first row must be a
// header naming every column in Columns; column order is taken from it and
// extra columns are ignored.
func ParseCSV(r io.Reader) ([]*usage.Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv: missing header row")
		}
		return nil, fmt.Errorf("csv: read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, col := range Columns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("csv: missing column %q", col)
		}
	}

	var records []*usage.Record
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return records, fmt.Errorf("csv: line %d: %w", line, err)
		}
		rec, err := rowToRecord(row, index)
		if err != nil {
			return records, fmt.Errorf("csv: line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func rowToRecord(row []string, index map[string]int) (*usage.Record, error) {
	field := func(name string) string {
		if i := index[name]; i < len(row) {
			return row[i]
		}
		return ""
	}
	integer := func(name string) (int64, error) {
		v, err := strconv.ParseInt(field(name), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return v, nil
	}

	ts, err := time.Parse(time.RFC3339Nano, field("timestamp"))
	if err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}
	in, err := integer("input_tokens")
	if err != nil {
		return nil, err
	}
	out, err := integer("output_tokens")
	if err != nil {
		return nil, err
	}
	total, err := integer("total_tokens")
	if err != nil {
		return nil, err
	}
	cost, err := strconv.ParseFloat(field("estimated_cost"), 64)
	if err != nil {
		return nil, fmt.Errorf("estimated_cost: %w", err)
	}

	rec := usage.NewRecord(ts, field("agent_id"), field("model_id"), field("incident_id"), in, out, cost)
	rec.TotalTokens = total
	return rec, nil
}
