package store

import (
	"maps"
	"time"

	"mercator-hq/tokenmeter/pkg/usage"
)

// Backend names.
const (
	BackendDynamoDB = "dynamodb"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// TimestampLayout is the fixed-width UTC layout of stored timestamps, so
// that lexical order equals time order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// MaxBatchSize is the largest batch a backend writes in one request.
const MaxBatchSize = 25

// item is the stored shape of a record, shared by all backends.
type item struct {
	DatePartition  string         `dynamodbav:"date_partition" json:"date_partition"`
	TimestampAgent string         `dynamodbav:"timestamp_agent" json:"timestamp_agent"`
	Timestamp      string         `dynamodbav:"timestamp" json:"timestamp"`
	RequestID      string         `dynamodbav:"request_id,omitempty" json:"request_id,omitempty"`
	AgentID        string         `dynamodbav:"agent_id" json:"agent_id"`
	ModelID        string         `dynamodbav:"model_id" json:"model_id"`
	IncidentID     string         `dynamodbav:"incident_id,omitempty" json:"incident_id,omitempty"`
	InputTokens    int64          `dynamodbav:"input_tokens" json:"input_tokens"`
	OutputTokens   int64          `dynamodbav:"output_tokens" json:"output_tokens"`
	TotalTokens    int64          `dynamodbav:"total_tokens" json:"total_tokens"`
	EstimatedCost  float64        `dynamodbav:"estimated_cost" json:"estimated_cost"`
	Context        map[string]any `dynamodbav:"context,omitempty" json:"context,omitempty"`
	ExpiresAt      int64          `dynamodbav:"ttl" json:"expires_at"`
}

func newItem(rec *usage.Record, expiresAt int64) item {
	return item{
		DatePartition:  rec.PartitionKey(),
		TimestampAgent: rec.SortKey(),
		Timestamp:      formatTimestamp(rec.Timestamp),
		RequestID:      rec.RequestID,
		AgentID:        rec.AgentID,
		ModelID:        rec.ModelID,
		IncidentID:     rec.IncidentID,
		InputTokens:    rec.InputTokens,
		OutputTokens:   rec.OutputTokens,
		TotalTokens:    rec.TotalTokens,
		EstimatedCost:  rec.EstimatedCost,
		Context:        maps.Clone(rec.Context),
		ExpiresAt:      expiresAt,
	}
}

func (it item) key() string {
	return it.DatePartition + "|" + it.TimestampAgent
}

func (it item) record() (*usage.Record, error) {
	ts, err := time.Parse(TimestampLayout, it.Timestamp)
	if err != nil {
		// Fall back to the key, which carries millisecond precision.
		var keyErr error
		ts, _, keyErr = usage.ParseKey(it.DatePartition, it.TimestampAgent)
		if keyErr != nil {
			return nil, err
		}
	}
	return &usage.Record{
		RequestID:     it.RequestID,
		Timestamp:     ts.UTC(),
		AgentID:       it.AgentID,
		IncidentID:    it.IncidentID,
		ModelID:       it.ModelID,
		InputTokens:   it.InputTokens,
		OutputTokens:  it.OutputTokens,
		TotalTokens:   it.TotalTokens,
		EstimatedCost: it.EstimatedCost,
		Context:       it.Context,
	}, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Option configures a store.
type Option func(*options)

type options struct {
	retentionDays int
	batchSize     int
	now           func() time.Time
}

// WithRetentionDays sets the retention window used to derive expiry.
func WithRetentionDays(days int) Option {
	return func(o *options) {
		if days > 0 {
			o.retentionDays = days
		}
	}
}

// WithBatchSize sets the number of records written per batch request,
// capped at MaxBatchSize.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = min(n, MaxBatchSize)
		}
	}
}

// WithClock replaces time.Now for expiry calculation and purging.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func newOptions(opts []Option) options {
	o := options{
		retentionDays: usage.DefaultRetentionDays,
		batchSize:     MaxBatchSize,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) expiresAt() int64 {
	return usage.ExpiresAt(o.now(), o.retentionDays)
}

// chunk splits records into slices of at most size.
func chunk[T any](in []T, size int) [][]T {
	var out [][]T
	for start := 0; start < len(in); start += size {
		out = append(out, in[start:min(start+size, len(in))])
	}
	return out
}

// truncate sorts records newest first and applies limit. A limit of zero or
// less means no limit.
func truncate(records []*usage.Record, limit int) []*usage.Record {
	usage.SortNewestFirst(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

// splitValid rejects records that fail validation and returns the rest.
func splitValid(records []*usage.Record, result *usage.BatchResult) []*usage.Record {
	valid := make([]*usage.Record, 0, len(records))
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			result.Reject(rec)
			continue
		}
		valid = append(valid, rec)
	}
	return valid
}
