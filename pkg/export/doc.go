// Package export writes usage records as CSV or JSON.
//
// # CSV
//
// The CSV exporter writes a header row followed by one row per record with
// the fixed columns
//
//	timestamp,agent_id,model_id,incident_id,input_tokens,output_tokens,total_tokens,estimated_cost
//
// Timestamps use RFC 3339 with nanoseconds and costs six decimal places.
// ParseCSV reads such a file back into records.
//
// # JSON
//
// The JSON exporter wraps the records in a document carrying the export
// time and the record count:
//
//	{"export_timestamp": "...", "record_count": 2, "records": [...]}
//
// # Streaming
//
// Both exporters offer ExportStream, which consumes records from a channel
// so that large result sets are never held in memory.
//
// Failures are reported as *usage.ExportError.
package export
