package usage

import (
	"context"
	"maps"
	"sort"
	"time"
)

// Record is one metered model invocation.
type Record struct {
	// RequestID correlates the record with log lines. It is not part of the
	// storage key.
	RequestID string `json:"request_id,omitempty"`

	Timestamp  time.Time `json:"timestamp"`
	AgentID    string    `json:"agent_id"`
	IncidentID string    `json:"incident_id,omitempty"`
	ModelID    string    `json:"model_id"`

	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`

	// EstimatedCost is in USD, rounded to 6 decimal places.
	EstimatedCost float64 `json:"estimated_cost"`

	// Context holds execution metadata such as execution_time_seconds.
	Context map[string]any `json:"context,omitempty"`
}

// NewRecord builds a record with TotalTokens derived from the token counts.
// The timestamp is normalized to UTC.
func NewRecord(ts time.Time, agentID, modelID, incidentID string, inputTokens, outputTokens int64, cost float64) *Record {
	return &Record{
		Timestamp:     ts.UTC(),
		AgentID:       agentID,
		IncidentID:    incidentID,
		ModelID:       modelID,
		InputTokens:   inputTokens,
		OutputTokens:  outputTokens,
		TotalTokens:   inputTokens + outputTokens,
		EstimatedCost: cost,
	}
}

// Validate checks the record invariants.
func (r *Record) Validate() error {
	switch {
	case r == nil:
		return &ValidationError{Field: "record", Message: "record is nil"}
	case r.AgentID == "":
		return &ValidationError{Field: "agent_id", Message: "agent id is required"}
	case r.ModelID == "":
		return &ValidationError{Field: "model_id", Message: "model id is required"}
	case r.Timestamp.IsZero():
		return &ValidationError{Field: "timestamp", Message: "timestamp is required"}
	case r.InputTokens < 0 || r.OutputTokens < 0:
		return &ValidationError{Field: "tokens", Message: "token counts must be non-negative"}
	case r.TotalTokens != r.InputTokens+r.OutputTokens:
		return &ValidationError{Field: "total_tokens", Message: "total tokens must equal input plus output tokens"}
	case r.EstimatedCost < 0:
		return &ValidationError{Field: "estimated_cost", Message: "estimated cost must be non-negative"}
	}
	return nil
}

// PartitionKey returns the date partition of the record.
func (r *Record) PartitionKey() string {
	return PartitionKey(r.Timestamp)
}

// SortKey returns the time sort key of the record.
func (r *Record) SortKey() string {
	return SortKey(r.Timestamp, r.AgentID)
}

// Clone returns a deep copy of the record. Context values are copied shallowly.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Context != nil {
		c.Context = maps.Clone(r.Context)
	}
	return &c
}

// SortNewestFirst orders records by timestamp, most recent first. Ties are
// broken by agent id so the order is stable across backends.
func SortNewestFirst(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		return records[i].AgentID < records[j].AgentID
	})
}

// BatchResult reports the outcome of a batch write.
type BatchResult struct {
	Succeeded int
	Failed    int

	// Rejected holds exactly the records counted in Failed.
	Rejected []*Record
}

// Reject counts records as failed and keeps them for the caller.
func (b *BatchResult) Reject(records ...*Record) {
	b.Failed += len(records)
	b.Rejected = append(b.Rejected, records...)
}

// Reader is the read side of a usage store.
type Reader interface {
	// ByAgent returns records for one agent, most recent first. A nil range
	// means no time bound.
	ByAgent(ctx context.Context, agentID string, dates *DateRange, limit int) ([]*Record, error)

	// ByIncident returns records for one incident, most recent first.
	ByIncident(ctx context.Context, incidentID string, limit int) ([]*Record, error)

	// ByDateRange returns records whose date partition lies within
	// [start, end] (inclusive days), optionally filtered by agent, most recent
	// first and bounded by limit.
	ByDateRange(ctx context.Context, start, end time.Time, agentID string, limit int) ([]*Record, error)
}

// Writer is the write side of a usage store.
type Writer interface {
	// Put stores a record. It is idempotent on the record's storage key.
	Put(ctx context.Context, record *Record) error

	// BatchPut stores records and reports per-record outcomes. Succeeded plus
	// Failed always equals len(records).
	BatchPut(ctx context.Context, records []*Record) (*BatchResult, error)
}

// Store is a durable, TTL-bounded usage record store.
type Store interface {
	Reader
	Writer

	// PurgeExpired deletes items whose expiry has passed. Backends with a
	// native reaper only need this as a manual fallback.
	PurgeExpired(ctx context.Context) (int64, error)

	// Close releases backend resources.
	Close() error
}
