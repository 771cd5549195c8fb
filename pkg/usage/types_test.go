package usage

import (
	"errors"
	"testing"
	"time"
)

func TestNewRecord_DerivesTotals(t *testing.T) {
	r := NewRecord(time.Now(), "agent", "model", "", 1000, 500, 0.0105)

	if r.TotalTokens != 1500 {
		t.Errorf("TotalTokens = %d, want 1500", r.TotalTokens)
	}
	if r.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp location = %v, want UTC", r.Timestamp.Location())
	}
	if err := r.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestRecord_Validate(t *testing.T) {
	base := func() *Record {
		return NewRecord(time.Now(), "agent", "model", "", 10, 5, 0.1)
	}

	tests := []struct {
		name   string
		mutate func(r *Record)
		field  string
	}{
		{"missing agent", func(r *Record) { r.AgentID = "" }, "agent_id"},
		{"missing model", func(r *Record) { r.ModelID = "" }, "model_id"},
		{"zero timestamp", func(r *Record) { r.Timestamp = time.Time{} }, "timestamp"},
		{"negative tokens", func(r *Record) { r.InputTokens = -1; r.TotalTokens = 4 }, "tokens"},
		{"bad total", func(r *Record) { r.TotalTokens = 99 }, "total_tokens"},
		{"negative cost", func(r *Record) { r.EstimatedCost = -0.5 }, "estimated_cost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base()
			tt.mutate(r)
			err := r.Validate()
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestSortNewestFirst(t *testing.T) {
	base := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	records := []*Record{
		NewRecord(base, "b", "m", "", 1, 1, 0),
		NewRecord(base.Add(2*time.Hour), "a", "m", "", 1, 1, 0),
		NewRecord(base, "a", "m", "", 1, 1, 0),
		NewRecord(base.Add(time.Hour), "a", "m", "", 1, 1, 0),
	}

	SortNewestFirst(records)

	wantHours := []int{2, 1, 0, 0}
	for i, r := range records {
		if r.Timestamp.Hour() != wantHours[i] {
			t.Errorf("records[%d] hour = %d, want %d", i, r.Timestamp.Hour(), wantHours[i])
		}
	}
	if records[2].AgentID != "a" || records[3].AgentID != "b" {
		t.Errorf("ties not broken by agent id: %s, %s", records[2].AgentID, records[3].AgentID)
	}
}

func TestRecord_CloneIsIndependent(t *testing.T) {
	r := NewRecord(time.Now(), "agent", "model", "", 1, 1, 0)
	r.Context = map[string]any{"execution_time_seconds": 1.25}

	c := r.Clone()
	c.Context["execution_time_seconds"] = 9.0
	c.AgentID = "other"

	if r.Context["execution_time_seconds"] != 1.25 {
		t.Error("clone shares context map with original")
	}
	if r.AgentID != "agent" {
		t.Error("clone shares fields with original")
	}
}

func TestStorageError_Unwrap(t *testing.T) {
	cause := errors.New("throttled")
	err := NewStorageError("dynamodb", "put", cause)
	if !errors.Is(err, cause) {
		t.Error("StorageError does not unwrap to its cause")
	}
}
