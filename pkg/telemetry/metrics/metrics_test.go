package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"mercator-hq/tokenmeter/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:   true,
		Namespace: "test",
		Subsystem: "usage",
	}
}

func TestCollector_NewCollector(t *testing.T) {
	cfg := testConfig()
	registry := prometheus.NewRegistry()

	collector := NewCollector(cfg, registry)

	if collector.Registry() != registry {
		t.Error("Collector registry not set correctly")
	}
	if !collector.Enabled() {
		t.Error("expected enabled collector")
	}
	if len(cfg.TokenCountBuckets) == 0 || len(cfg.CostBuckets) == 0 {
		t.Error("expected default buckets to be applied")
	}
}

func TestUsageMetrics_Counters(t *testing.T) {
	collector := NewCollector(testConfig(), nil)
	um := collector.Usage()

	um.AddInputTokens("agent-a", "model-x", 100)
	um.AddInputTokens("agent-a", "model-x", 50)
	um.AddOutputTokens("agent-a", "model-x", 20)
	um.AddCost("agent-a", "model-x", 0.25)
	um.AddCost("agent-a", "model-x", 0)
	um.AddAPIErrors("agent-a", "model-x", "ThrottlingException", 1)
	um.AddCustom("CacheHits", 3)

	if got := testutil.ToFloat64(um.inputTokens.WithLabelValues("agent-a", "model-x")); got != 150 {
		t.Errorf("input tokens = %v, want 150", got)
	}
	if got := testutil.ToFloat64(um.outputTokens.WithLabelValues("agent-a", "model-x")); got != 20 {
		t.Errorf("output tokens = %v, want 20", got)
	}
	if got := testutil.ToFloat64(um.costTotal.WithLabelValues("agent-a", "model-x")); got != 0.25 {
		t.Errorf("cost = %v, want 0.25", got)
	}
	if got := testutil.ToFloat64(um.apiErrors.WithLabelValues("agent-a", "model-x", "ThrottlingException")); got != 1 {
		t.Errorf("api errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(um.custom.WithLabelValues("CacheHits")); got != 3 {
		t.Errorf("custom = %v, want 3", got)
	}
	if n := testutil.CollectAndCount(um.costPerCall); n != 1 {
		t.Errorf("expected one cost histogram series, got %d", n)
	}
}

func TestUsageMetrics_IncidentCardinality(t *testing.T) {
	registry := prometheus.NewRegistry()
	um := NewUsageMetrics(testConfigWithBuckets(), registry, NewCardinalityLimiter(2))

	um.AddIncidentTokens("INC-1", 10)
	um.AddIncidentTokens("INC-2", 10)
	um.AddIncidentTokens("INC-3", 10)
	um.AddIncidentTokens("INC-4", 5)
	um.AddIncidentTokens("", 99)

	if got := testutil.ToFloat64(um.incidentTokens.WithLabelValues("INC-1")); got != 10 {
		t.Errorf("INC-1 = %v, want 10", got)
	}
	if got := testutil.ToFloat64(um.incidentTokens.WithLabelValues(OverflowLabel)); got != 15 {
		t.Errorf("overflow = %v, want 15", got)
	}
	if n := testutil.CollectAndCount(um.incidentTokens); n != 3 {
		t.Errorf("expected 3 incident series, got %d", n)
	}
}

func testConfigWithBuckets() *config.MetricsConfig {
	cfg := testConfig()
	cfg.TokenCountBuckets = []float64{100, 1000}
	cfg.CostBuckets = []float64{0.01, 0.1}
	return cfg
}

func TestDispatchMetrics(t *testing.T) {
	dm := NewCollector(testConfig(), nil).Dispatch()

	dm.RecordOutcome("store", OutcomeDelivered)
	dm.RecordOutcome("store", OutcomeDelivered)
	dm.RecordOutcome("store", OutcomeFailed)
	dm.RecordDropped("metrics")
	dm.SetQueueDepth("store", 7)
	dm.SetBreakerState("store", 2)

	if got := testutil.ToFloat64(dm.outcomes.WithLabelValues("store", OutcomeDelivered)); got != 2 {
		t.Errorf("delivered = %v, want 2", got)
	}
	if got := testutil.ToFloat64(dm.dropped.WithLabelValues("metrics")); got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(dm.queueDepth.WithLabelValues("store")); got != 7 {
		t.Errorf("queue depth = %v, want 7", got)
	}
	if got := testutil.ToFloat64(dm.breakerState.WithLabelValues("store")); got != 2 {
		t.Errorf("breaker state = %v, want 2", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	collector := NewCollector(testConfig(), nil)
	collector.Usage().AddInputTokens("agent-a", "model-x", 42)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_usage_input_tokens_total") {
		t.Errorf("metrics output missing input tokens:\n%s", rec.Body.String())
	}
}

func TestCardinalityLimiter(t *testing.T) {
	cl := NewCardinalityLimiter(2)
	if !cl.Allow("a") || !cl.Allow("b") {
		t.Fatal("expected first two values to be allowed")
	}
	if cl.Allow("c") {
		t.Error("expected third value to be rejected")
	}
	if !cl.Allow("a") {
		t.Error("expected existing value to be allowed")
	}
	if cl.Count() != 2 {
		t.Errorf("count = %d, want 2", cl.Count())
	}
}
