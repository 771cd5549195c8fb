package store

import (
	"context"
	"testing"
	"time"

	"mercator-hq/tokenmeter/pkg/usage"
)

func TestMemoryStore_Contract(t *testing.T) {
	testStoreContract(t, NewMemoryStore())
}

func TestMemoryStore_PurgeExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	s := NewMemoryStore(WithRetentionDays(90), WithClock(func() time.Time { return clock }))

	ctx := context.Background()
	_ = s.Put(ctx, usage.NewRecord(now, "a", "m", "", 1, 1, 0))
	clock = now.AddDate(0, 0, 30)
	_ = s.Put(ctx, usage.NewRecord(now.Add(time.Second), "a", "m", "", 1, 1, 0))

	clock = now.AddDate(0, 0, 91)
	deleted, err := s.PurgeExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 || s.Len() != 1 {
		t.Errorf("deleted %d, remaining %d; want 1 and 1", deleted, s.Len())
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := usage.NewRecord(day, "a", "m", "", 1, 1, 0)
	rec.Context = map[string]any{"k": "v"}
	_ = s.Put(ctx, rec)

	got, _ := s.ByAgent(ctx, "a", nil, 0)
	got[0].Context["k"] = "changed"
	got[0].InputTokens = 99

	again, _ := s.ByAgent(ctx, "a", nil, 0)
	if again[0].Context["k"] != "v" || again[0].InputTokens != 1 {
		t.Error("stored record was mutated through a query result")
	}
}

func TestChunk(t *testing.T) {
	got := chunk([]int{1, 2, 3, 4, 5}, 2)
	if len(got) != 3 || len(got[2]) != 1 {
		t.Errorf("chunk() = %v", got)
	}
	if len(chunk([]int{}, 25)) != 0 {
		t.Error("empty input should produce no chunks")
	}
}

func TestWithBatchSizeCapped(t *testing.T) {
	o := newOptions([]Option{WithBatchSize(100)})
	if o.batchSize != MaxBatchSize {
		t.Errorf("batchSize = %d, want %d", o.batchSize, MaxBatchSize)
	}
	o = newOptions([]Option{WithBatchSize(10), WithRetentionDays(0)})
	if o.batchSize != 10 || o.retentionDays != usage.DefaultRetentionDays {
		t.Errorf("options = %+v", o)
	}
}

func TestMemoryStore_IndexesFollowOverwriteAndPurge(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	s := NewMemoryStore(WithRetentionDays(1), WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	first := usage.NewRecord(day, "a", "m", "INC-1", 1, 1, 0)
	_ = s.Put(ctx, first)

	// Same timestamp and agent replaces the record under a new incident.
	moved := usage.NewRecord(day, "a", "m", "INC-2", 2, 2, 0)
	_ = s.Put(ctx, moved)

	if got, _ := s.ByIncident(ctx, "INC-1", 0); len(got) != 0 {
		t.Errorf("old incident still indexed: %v", got)
	}
	if got, _ := s.ByIncident(ctx, "INC-2", 0); len(got) != 1 || got[0].InputTokens != 2 {
		t.Errorf("ByIncident(INC-2) = %v", got)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}

	clock = now.AddDate(0, 0, 2)
	if deleted, _ := s.PurgeExpired(ctx); deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	if len(s.byAgent) != 0 || len(s.byIncident) != 0 || len(s.byDay) != 0 {
		t.Errorf("indexes not emptied: agent=%d incident=%d day=%d", len(s.byAgent), len(s.byIncident), len(s.byDay))
	}
	if got, _ := s.ByDateRange(ctx, day, day, "", 0); len(got) != 0 {
		t.Errorf("ByDateRange after purge = %v", got)
	}
}
