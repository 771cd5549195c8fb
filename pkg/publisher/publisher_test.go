package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mercator-hq/tokenmeter/pkg/usage"
)

// captureBackend records every batch it receives.
type captureBackend struct {
	mu      sync.Mutex
	batches [][]Datum
	fail    func(call int) error
	calls   int
}

func (c *captureBackend) PutMetricData(ctx context.Context, namespace string, data []Datum) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.fail != nil {
		if err := c.fail(c.calls); err != nil {
			return err
		}
	}
	c.batches = append(c.batches, append([]Datum(nil), data...))
	return nil
}

func (c *captureBackend) points() []Datum {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []Datum
	for _, b := range c.batches {
		all = append(all, b...)
	}
	return all
}

var testTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testRecord(incident string) *usage.Record {
	return usage.NewRecord(testTime, "agent-1", "model-1", incident, 100, 50, 0.00105)
}

func TestPublisher_RecordBuffersFourPoints(t *testing.T) {
	backend := &captureBackend{}
	pub := New(backend, "")

	if err := pub.Record(context.Background(), testRecord("")); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if got := pub.Buffered(); got != 4 {
		t.Fatalf("Buffered() = %d, want 4", got)
	}
	if backend.calls != 0 {
		t.Fatalf("expected no send before the buffer is full")
	}

	if err := pub.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	points := backend.points()
	want := []string{MetricInputTokens, MetricOutputTokens, MetricTotalTokens, MetricEstimatedCost}
	if len(points) != len(want) {
		t.Fatalf("got %d points, want %d", len(points), len(want))
	}
	for i, name := range want {
		if points[i].Name != name {
			t.Errorf("point %d = %s, want %s", i, points[i].Name, name)
		}
		if points[i].Dimension(DimAgentID) != "agent-1" || points[i].Dimension(DimModelID) != "model-1" {
			t.Errorf("point %d dimensions = %v", i, points[i].Dimensions)
		}
		if !points[i].Timestamp.Equal(testTime) {
			t.Errorf("point %d timestamp = %v", i, points[i].Timestamp)
		}
	}
	if points[2].Value != 150 {
		t.Errorf("TotalTokens = %v, want 150", points[2].Value)
	}
	if points[3].Unit != UnitNone || points[3].Value != 0.00105 {
		t.Errorf("EstimatedCost = %v %s", points[3].Value, points[3].Unit)
	}
	if pub.Namespace() != DefaultNamespace {
		t.Errorf("Namespace() = %q", pub.Namespace())
	}
}

func TestPublisher_RecordWithIncident(t *testing.T) {
	backend := &captureBackend{}
	pub := New(backend, "Custom")

	_ = pub.Record(context.Background(), testRecord("INC-1"))
	_ = pub.Flush(context.Background())

	points := backend.points()
	if len(points) != 5 {
		t.Fatalf("got %d points, want 5", len(points))
	}
	last := points[4]
	if last.Name != MetricTotalTokensPerIncident || last.Value != 150 {
		t.Errorf("incident point = %+v", last)
	}
	if last.Dimension(DimIncidentID) != "INC-1" {
		t.Errorf("incident dimension missing: %v", last.Dimensions)
	}
	if points[0].Dimension(DimIncidentID) != "" {
		t.Error("base points must not carry the incident dimension")
	}
}

func TestPublisher_AutoFlushAtBatchSize(t *testing.T) {
	backend := &captureBackend{}
	pub := New(backend, "")

	// Five records without incident make exactly 20 points.
	for i := 0; i < 5; i++ {
		if err := pub.Record(context.Background(), testRecord("")); err != nil {
			t.Fatal(err)
		}
	}
	if backend.calls != 1 {
		t.Fatalf("expected one automatic flush, got %d calls", backend.calls)
	}
	if len(backend.batches[0]) != BatchSize {
		t.Errorf("batch size = %d", len(backend.batches[0]))
	}
	if pub.Buffered() != 0 {
		t.Errorf("Buffered() = %d after flush", pub.Buffered())
	}
}

func TestPublisher_RecordErrorFlushesImmediately(t *testing.T) {
	backend := &captureBackend{}
	pub := New(backend, "", WithClock(func() time.Time { return testTime }))

	if err := pub.RecordError(context.Background(), "agent-1", "model-1", "ThrottlingException", "INC-2"); err != nil {
		t.Fatalf("RecordError() error = %v", err)
	}
	points := backend.points()
	if len(points) != 1 {
		t.Fatalf("got %d points, want 1", len(points))
	}
	p := points[0]
	if p.Name != MetricAPIErrors || p.Value != 1 || p.Unit != UnitCount {
		t.Errorf("error point = %+v", p)
	}
	if p.Dimension(DimErrorCode) != "ThrottlingException" || p.Dimension(DimIncidentID) != "INC-2" {
		t.Errorf("dimensions = %v", p.Dimensions)
	}
}

func TestPublisher_FlushDropsFailedBatch(t *testing.T) {
	boom := errors.New("service unavailable")
	backend := &captureBackend{fail: func(call int) error {
		if call == 1 {
			return boom
		}
		return nil
	}}
	pub := New(backend, "")

	for i := 0; i < 6; i++ {
		pub.add(Datum{Name: "x", Value: float64(i)})
	}
	for i := 0; i < 20; i++ {
		pub.add(Datum{Name: "y", Value: float64(i)})
	}

	err := pub.Flush(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to contain the backend error, got %v", err)
	}
	if backend.calls != 2 {
		t.Fatalf("expected 2 batches, got %d", backend.calls)
	}
	if got := len(backend.points()); got != 6 {
		t.Errorf("delivered %d points, want the 6 of the second batch", got)
	}
	if pub.Buffered() != 0 {
		t.Errorf("failed batch should be dropped, %d still buffered", pub.Buffered())
	}
}

func TestPublisher_FlushEmpty(t *testing.T) {
	backend := &captureBackend{}
	if err := New(backend, "").Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if backend.calls != 0 {
		t.Error("empty flush should not call the backend")
	}
}

func TestPublisher_PublishBatch(t *testing.T) {
	backend := &captureBackend{}
	pub := New(backend, "", WithClock(func() time.Time { return testTime }))

	data := make([]Datum, 45)
	for i := range data {
		data[i] = Datum{Name: "Batch", Value: float64(i)}
	}
	if err := pub.PublishBatch(context.Background(), data); err != nil {
		t.Fatalf("PublishBatch() error = %v", err)
	}
	if len(backend.batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(backend.batches))
	}
	if len(backend.batches[2]) != 5 {
		t.Errorf("last batch = %d points", len(backend.batches[2]))
	}
	first := backend.batches[0][0]
	if !first.Timestamp.Equal(testTime) || first.Unit != UnitNone {
		t.Errorf("defaults not applied: %+v", first)
	}
	if pub.Buffered() != 0 {
		t.Error("PublishBatch must bypass the buffer")
	}

	backend.fail = func(int) error { return errors.New("denied") }
	if err := pub.PublishBatch(context.Background(), data); err == nil {
		t.Error("expected an error from a failing backend")
	}
}

func TestPublisher_Custom(t *testing.T) {
	backend := &captureBackend{}
	pub := New(backend, "")

	if err := pub.Custom(context.Background(), "", 1, "", nil); err == nil {
		t.Error("expected error for empty name")
	}
	if err := pub.Custom(context.Background(), "CacheHits", 3, UnitCount, map[string]string{"ModelId": "m", "AgentId": "a"}); err != nil {
		t.Fatal(err)
	}
	_ = pub.Flush(context.Background())

	points := backend.points()
	if len(points) != 1 {
		t.Fatalf("got %d points", len(points))
	}
	dims := points[0].Dimensions
	if len(dims) != 2 || dims[0].Name != "AgentId" || dims[1].Name != "ModelId" {
		t.Errorf("dimensions should be sorted by name, got %v", dims)
	}
}
