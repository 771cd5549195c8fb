package store

import (
	"context"
	"testing"
	"time"

	"mercator-hq/tokenmeter/pkg/usage"
)

var day = time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

func contractRecords() (r1, r2, r3, r4 *usage.Record) {
	r1 = usage.NewRecord(day.Add(10*time.Hour), "agent-a", "model-1", "INC-1", 1000, 500, 0.0105)
	r1.Context = map[string]any{"execution_time_seconds": 1.5}
	r1.RequestID = "req-1"
	r2 = usage.NewRecord(day.Add(11*time.Hour), "agent-b", "model-2", "", 200, 100, 0.002)
	r3 = usage.NewRecord(day.Add(33*time.Hour), "agent-a", "model-1", "", 10, 5, 0.0001)
	r4 = usage.NewRecord(day.Add(-time.Millisecond), "agent-a", "model-1", "INC-1", 30, 20, 0.0004)
	return
}

// testStoreContract exercises the behaviour every backend shares.
func testStoreContract(t *testing.T, s usage.Store) {
	t.Helper()
	ctx := context.Background()
	r1, r2, r3, r4 := contractRecords()

	for _, rec := range []*usage.Record{r1, r2, r3, r4, r1} {
		if err := s.Put(ctx, rec); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	assertOrder := func(t *testing.T, name string, got []*usage.Record, want ...*usage.Record) {
		t.Helper()
		if len(got) != len(want) {
			t.Fatalf("%s: got %d records, want %d", name, len(got), len(want))
		}
		for i := range want {
			if !got[i].Timestamp.Equal(want[i].Timestamp) || got[i].AgentID != want[i].AgentID {
				t.Errorf("%s[%d] = %s@%s, want %s@%s", name, i,
					got[i].AgentID, got[i].Timestamp, want[i].AgentID, want[i].Timestamp)
			}
		}
	}

	t.Run("by agent", func(t *testing.T) {
		got, err := s.ByAgent(ctx, "agent-a", nil, 0)
		if err != nil {
			t.Fatal(err)
		}
		assertOrder(t, "ByAgent", got, r3, r1, r4)
	})

	t.Run("by agent with range and limit", func(t *testing.T) {
		got, err := s.ByAgent(ctx, "agent-a", usage.NewDateRange(day, day.AddDate(0, 0, 1)), 0)
		if err != nil {
			t.Fatal(err)
		}
		assertOrder(t, "ByAgent range", got, r3, r1)

		got, err = s.ByAgent(ctx, "agent-a", nil, 2)
		if err != nil {
			t.Fatal(err)
		}
		assertOrder(t, "ByAgent limit", got, r3, r1)
	})

	t.Run("by incident", func(t *testing.T) {
		got, err := s.ByIncident(ctx, "INC-1", 10)
		if err != nil {
			t.Fatal(err)
		}
		assertOrder(t, "ByIncident", got, r1, r4)

		got, err = s.ByIncident(ctx, "INC-404", 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Errorf("unknown incident returned %d records", len(got))
		}
	})

	t.Run("by date range", func(t *testing.T) {
		got, err := s.ByDateRange(ctx, day.AddDate(0, 0, -1), day, "", 0)
		if err != nil {
			t.Fatal(err)
		}
		assertOrder(t, "ByDateRange", got, r2, r1, r4)

		got, err = s.ByDateRange(ctx, day.AddDate(0, 0, -1), day.AddDate(0, 0, 1), "agent-a", 2)
		if err != nil {
			t.Fatal(err)
		}
		assertOrder(t, "ByDateRange agent limit", got, r3, r1)
	})

	t.Run("fields round trip", func(t *testing.T) {
		got, err := s.ByIncident(ctx, "INC-1", 1)
		if err != nil || len(got) != 1 {
			t.Fatalf("ByIncident() = %v, %v", got, err)
		}
		rec := got[0]
		if rec.ModelID != "model-1" || rec.InputTokens != 1000 || rec.OutputTokens != 500 || rec.TotalTokens != 1500 {
			t.Errorf("record = %+v", rec)
		}
		if rec.EstimatedCost != 0.0105 || rec.RequestID != "req-1" {
			t.Errorf("cost/request id = %v/%q", rec.EstimatedCost, rec.RequestID)
		}
		if rec.Context["execution_time_seconds"] != 1.5 {
			t.Errorf("context = %v", rec.Context)
		}
	})

	t.Run("batch put rejects invalid records", func(t *testing.T) {
		good := usage.NewRecord(day.Add(12*time.Hour), "agent-c", "model-1", "", 1, 1, 0)
		bad := &usage.Record{Timestamp: day, ModelID: "model-1"}
		result, err := s.BatchPut(ctx, []*usage.Record{good, bad})
		if err != nil {
			t.Fatalf("BatchPut() error = %v", err)
		}
		if result.Succeeded != 1 || result.Failed != 1 || len(result.Rejected) != 1 || result.Rejected[0] != bad {
			t.Errorf("result = %+v", result)
		}
		got, _ := s.ByAgent(ctx, "agent-c", nil, 0)
		if len(got) != 1 {
			t.Errorf("batch record not stored, got %d", len(got))
		}
	})

	t.Run("put rejects invalid record", func(t *testing.T) {
		if err := s.Put(ctx, &usage.Record{AgentID: "x"}); err == nil {
			t.Error("expected validation error")
		}
	})
}
