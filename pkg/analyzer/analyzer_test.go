package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"mercator-hq/tokenmeter/pkg/config"
	"mercator-hq/tokenmeter/pkg/export"
	"mercator-hq/tokenmeter/pkg/store"
	"mercator-hq/tokenmeter/pkg/usage"
)

const (
	haiku  = "claude-haiku"
	sonnet = "claude-sonnet"
)

// day is a Wednesday.
var day = time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

func at(d time.Time, hour, min int) time.Time {
	return d.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func seed(t *testing.T, records ...*usage.Record) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	res, err := s.BatchPut(context.Background(), records)
	if err != nil {
		t.Fatalf("BatchPut() error = %v", err)
	}
	if res.Failed != 0 {
		t.Fatalf("BatchPut() rejected %d records", res.Failed)
	}
	return s
}

func fixture(t *testing.T, cfg Config) *Analyzer {
	t.Helper()
	next := day.AddDate(0, 0, 1)
	s := seed(t,
		usage.NewRecord(at(day, 10, 5), "agent-a", haiku, "INC-1", 1000, 500, 0.01),
		usage.NewRecord(at(day, 10, 35), "agent-a", sonnet, "INC-1", 2000, 1000, 0.05),
		usage.NewRecord(at(day, 14, 0), "agent-b", haiku, "", 100, 50, 0.002),
		usage.NewRecord(at(day, 14, 30), "agent-b", haiku, "INC-2", 300, 200, 0.02),
		usage.NewRecord(at(next, 9, 0), "agent-a", haiku, "INC-1", 500, 500, 0.004),
	)
	return New(s, cfg)
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestDailyReport(t *testing.T) {
	a := fixture(t, DefaultConfig())

	got, err := a.DailyReport(context.Background(), day)
	if err != nil {
		t.Fatalf("DailyReport() error = %v", err)
	}

	if got.TotalCost != 0.082 || got.TotalTokens != 5150 || got.TotalRequests != 4 {
		t.Errorf("totals = %v/%d/%d, want 0.082/5150/4", got.TotalCost, got.TotalTokens, got.TotalRequests)
	}
	if got.AverageCostPerRequest != 0.0205 || got.AverageTokensPerRequest != 1287.5 {
		t.Errorf("averages = %v/%v", got.AverageCostPerRequest, got.AverageTokensPerRequest)
	}
	if got.DateRange != (DateRange{StartDate: "2025-01-15", EndDate: "2025-01-15"}) {
		t.Errorf("DateRange = %+v", got.DateRange)
	}
	if got.Truncated {
		t.Error("Truncated = true, want false")
	}

	if b := got.ByAgent["agent-a"]; b.Cost != 0.06 || b.Tokens != 4500 || b.Requests != 2 {
		t.Errorf("ByAgent[agent-a] = %+v", b)
	}
	if b := got.ByModel[haiku]; b.Cost != 0.032 || b.Requests != 3 {
		t.Errorf("ByModel[haiku] = %+v", b)
	}
	if len(got.ByHour) != 2 {
		t.Fatalf("ByHour = %v, want 2 hours", got.ByHour)
	}
	if b := got.ByHour["10:00"]; b.Cost != 0.06 || b.Requests != 2 {
		t.Errorf("ByHour[10:00] = %+v", b)
	}
	if b := got.ByHour["14:00"]; b.Cost != 0.022 {
		t.Errorf("ByHour[14:00] = %+v", b)
	}

	want := []IncidentCost{
		{IncidentID: "INC-1", Breakdown: Breakdown{Cost: 0.06, Tokens: 4500, Requests: 2}},
		{IncidentID: "INC-2", Breakdown: Breakdown{Cost: 0.02, Tokens: 500, Requests: 1}},
	}
	if !slices.Equal(got.TopIncidents, want) {
		t.Errorf("TopIncidents = %+v, want %+v", got.TopIncidents, want)
	}
}

func TestDailyReport_AgentFilter(t *testing.T) {
	a := fixture(t, DefaultConfig())
	ctx := context.Background()

	one, err := a.DailyReport(ctx, day, "agent-b")
	if err != nil {
		t.Fatal(err)
	}
	if one.TotalCost != 0.022 || one.TotalRequests != 2 || len(one.ByAgent) != 1 {
		t.Errorf("agent-b report = %+v", one)
	}

	many, err := a.DailyReport(ctx, day, "agent-a", "agent-c")
	if err != nil {
		t.Fatal(err)
	}
	if many.TotalCost != 0.06 || many.TotalRequests != 2 {
		t.Errorf("agent-a/agent-c report = %+v", many)
	}
}

func TestDailyReport_EmptyDay(t *testing.T) {
	a := New(store.NewMemoryStore(), DefaultConfig())

	got, err := a.DailyReport(context.Background(), day)
	if err != nil {
		t.Fatalf("DailyReport() error = %v", err)
	}
	if got.TotalRequests != 0 || got.AverageCostPerRequest != 0 || got.AverageTokensPerRequest != 0 {
		t.Errorf("empty report = %+v", got)
	}
	if got.TopIncidents == nil || len(got.TopIncidents) != 0 {
		t.Errorf("TopIncidents = %#v, want empty slice", got.TopIncidents)
	}
}

func TestDailyReport_TopIncidentsLimit(t *testing.T) {
	var records []*usage.Record
	for i, id := range []string{"INC-1", "INC-2", "INC-3", "INC-4"} {
		records = append(records, usage.NewRecord(at(day, i, 0), "agent", haiku, id, 1, 1, float64(i+1)))
	}
	cfg := DefaultConfig()
	cfg.TopIncidents = 2
	a := New(seed(t, records...), cfg)

	got, err := a.DailyReport(context.Background(), day)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.TopIncidents) != 2 || got.TopIncidents[0].IncidentID != "INC-4" || got.TopIncidents[1].IncidentID != "INC-3" {
		t.Errorf("TopIncidents = %+v", got.TopIncidents)
	}
}

func TestDailyReport_Truncated(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueryLimit = 2
	a := fixture(t, cfg)

	got, err := a.DailyReport(context.Background(), day)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Truncated || got.TotalRequests != 2 {
		t.Errorf("Truncated = %v, requests = %d", got.Truncated, got.TotalRequests)
	}
}

type failingReader struct{ err error }

func (f failingReader) ByAgent(context.Context, string, *usage.DateRange, int) ([]*usage.Record, error) {
	return nil, f.err
}

func (f failingReader) ByIncident(context.Context, string, int) ([]*usage.Record, error) {
	return nil, f.err
}

func (f failingReader) ByDateRange(context.Context, time.Time, time.Time, string, int) ([]*usage.Record, error) {
	return nil, f.err
}

func TestReaderErrorsPropagate(t *testing.T) {
	boom := usage.NewStorageError("memory", "query", errors.New("boom"))
	a := New(failingReader{err: boom}, DefaultConfig())
	ctx := context.Background()

	if _, err := a.DailyReport(ctx, day); !errors.Is(err, boom) {
		t.Errorf("DailyReport() error = %v, want %v", err, boom)
	}
	if _, err := a.IncidentAnalysis(ctx, "INC-1"); !errors.Is(err, boom) {
		t.Errorf("IncidentAnalysis() error = %v, want %v", err, boom)
	}
	if _, err := a.Trends(ctx, day, day, GranularityDaily); !errors.Is(err, boom) {
		t.Errorf("Trends() error = %v, want %v", err, boom)
	}
}

func TestAgentBreakdown(t *testing.T) {
	a := fixture(t, DefaultConfig())

	got, err := a.AgentBreakdown(context.Background(), day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("AgentBreakdown() error = %v", err)
	}

	if got.Summary != (AgentSummary{TotalAgents: 2, TotalCost: 0.086, TotalTokens: 6150, TotalRequests: 5}) {
		t.Errorf("Summary = %+v", got.Summary)
	}

	ac := got.Agents["agent-a"]
	if ac == nil {
		t.Fatal("agent-a missing")
	}
	if ac.TotalCost != 0.064 || ac.TotalRequests != 3 || ac.TotalTokens != 5500 {
		t.Errorf("agent-a totals = %+v", ac)
	}
	if ac.AverageTokensPerRequest != 1833.33 {
		t.Errorf("AverageTokensPerRequest = %v, want 1833.33", ac.AverageTokensPerRequest)
	}
	if !slices.Equal(ac.ModelsUsed, []string{haiku, sonnet}) {
		t.Errorf("ModelsUsed = %v", ac.ModelsUsed)
	}
	if ac.UniqueIncidents != 1 {
		t.Errorf("UniqueIncidents = %d, want 1", ac.UniqueIncidents)
	}
	if len(ac.Daily) != 2 || ac.Daily["2025-01-16"].Cost != 0.004 || ac.Daily["2025-01-15"].Requests != 2 {
		t.Errorf("Daily = %+v", ac.Daily)
	}

	if b := got.Agents["agent-b"]; b == nil || b.UniqueIncidents != 1 || len(b.ModelsUsed) != 1 {
		t.Errorf("agent-b = %+v", b)
	}
}

func TestAgentBreakdown_InvertedRange(t *testing.T) {
	a := fixture(t, DefaultConfig())
	if _, err := a.AgentBreakdown(context.Background(), day, day.AddDate(0, 0, -1)); err == nil {
		t.Error("AgentBreakdown() with end before start should fail")
	}
}

func TestIncidentAnalysis(t *testing.T) {
	a := fixture(t, DefaultConfig())

	got, err := a.IncidentAnalysis(context.Background(), "INC-1")
	if err != nil {
		t.Fatalf("IncidentAnalysis() error = %v", err)
	}

	s := got.Summary
	if s.TotalCost != 0.064 || s.TotalTokens != 5500 || s.TotalRequests != 3 {
		t.Errorf("totals = %+v", s)
	}
	if !s.StartTime.Equal(at(day, 10, 5)) || !s.EndTime.Equal(at(day.AddDate(0, 0, 1), 9, 0)) {
		t.Errorf("window = %s..%s", s.StartTime, s.EndTime)
	}
	if s.DurationMinutes != 1375 {
		t.Errorf("DurationMinutes = %v, want 1375", s.DurationMinutes)
	}
	if s.CostPerMinute != 0.000047 {
		t.Errorf("CostPerMinute = %v, want 0.000047", s.CostPerMinute)
	}

	if len(got.Timeline) != 3 {
		t.Fatalf("Timeline has %d entries, want 3", len(got.Timeline))
	}
	for i := 1; i < len(got.Timeline); i++ {
		if got.Timeline[i].Timestamp.Before(got.Timeline[i-1].Timestamp) {
			t.Errorf("Timeline not ascending at %d", i)
		}
	}
	if got.Timeline[0].ModelID != haiku || got.Timeline[1].ModelID != sonnet {
		t.Errorf("Timeline = %+v", got.Timeline)
	}
	if got.ByModel[sonnet].Cost != 0.05 || got.ByAgent["agent-a"].Requests != 3 {
		t.Errorf("breakdowns = %+v / %+v", got.ByModel, got.ByAgent)
	}
}

func TestIncidentAnalysis_SingleRecord(t *testing.T) {
	a := fixture(t, DefaultConfig())

	got, err := a.IncidentAnalysis(context.Background(), "INC-2")
	if err != nil {
		t.Fatal(err)
	}
	if got.Summary.DurationMinutes != 0 || got.Summary.CostPerMinute != 0 {
		t.Errorf("summary = %+v, want zero duration and rate", got.Summary)
	}
}

func TestIncidentAnalysis_NoData(t *testing.T) {
	a := fixture(t, DefaultConfig())

	_, err := a.IncidentAnalysis(context.Background(), "INC-404")
	if !errors.Is(err, ErrNoData) || !errors.Is(err, usage.ErrNotFound) {
		t.Errorf("error = %v, want ErrNoData", err)
	}

	var ve *usage.ValidationError
	if _, err := a.IncidentAnalysis(context.Background(), ""); !errors.As(err, &ve) {
		t.Errorf("empty id error = %v, want ValidationError", err)
	}
}

func TestUsageSummary(t *testing.T) {
	a := fixture(t, DefaultConfig())
	ctx := context.Background()
	end := day.AddDate(0, 0, 1)

	got, err := a.UsageSummary(ctx, day, end, GroupByIncident)
	if err != nil {
		t.Fatalf("UsageSummary() error = %v", err)
	}
	if len(got.Groups) != 3 {
		t.Fatalf("Groups = %v, want INC-1, INC-2 and unknown", got.Groups)
	}
	inc := got.Groups["INC-1"]
	if inc.RequestCount != 3 || inc.InputTokens != 3500 || inc.OutputTokens != 2000 || inc.TotalCost != 0.064 {
		t.Errorf("INC-1 = %+v", inc)
	}
	if got.Groups["unknown"].RequestCount != 1 {
		t.Errorf("unknown = %+v", got.Groups["unknown"])
	}
	if got.TotalCost != 0.086 || got.TotalRequests != 5 || got.TotalTokens != 6150 {
		t.Errorf("totals = %v/%d/%d", got.TotalCost, got.TotalRequests, got.TotalTokens)
	}

	byModel, err := a.UsageSummary(ctx, day, end, GroupByModel)
	if err != nil {
		t.Fatal(err)
	}
	if byModel.Groups[haiku].RequestCount != 4 || byModel.Groups[sonnet].TotalCost != 0.05 {
		t.Errorf("by model = %+v", byModel.Groups)
	}

	if _, err := a.UsageSummary(ctx, day, end, "region"); err == nil {
		t.Error("unknown group should fail")
	}
}

func TestTrends(t *testing.T) {
	// 2025-01-12 and 2025-01-19 are Sundays.
	jan := func(d int) time.Time { return time.Date(2025, 1, d, 12, 0, 0, 0, time.UTC) }
	s := seed(t,
		usage.NewRecord(jan(12), "a", haiku, "", 10, 10, 1),
		usage.NewRecord(jan(13), "a", haiku, "", 10, 10, 2),
		usage.NewRecord(jan(19), "a", haiku, "", 10, 10, 3),
		usage.NewRecord(jan(20), "a", haiku, "", 10, 10, 4),
		usage.NewRecord(jan(20).Add(time.Hour), "b", haiku, "", 10, 10, 5),
		usage.NewRecord(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), "a", haiku, "", 10, 10, 6),
	)
	a := New(s, DefaultConfig())
	ctx := context.Background()
	start, end := jan(1), time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		granularity string
		want        []TrendPoint
	}{
		{GranularityDaily, []TrendPoint{
			{"2025-01-12", 1, 20, 1},
			{"2025-01-13", 2, 20, 1},
			{"2025-01-19", 3, 20, 1},
			{"2025-01-20", 9, 40, 2},
			{"2025-02-01", 6, 20, 1},
		}},
		{GranularityWeekly, []TrendPoint{
			{"2025-01-06", 1, 20, 1},
			{"2025-01-13", 5, 40, 2},
			{"2025-01-20", 9, 40, 2},
			{"2025-01-27", 6, 20, 1},
		}},
		{GranularityMonthly, []TrendPoint{
			{"2025-01", 15, 100, 5},
			{"2025-02", 6, 20, 1},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.granularity, func(t *testing.T) {
			got, err := a.Trends(ctx, start, end, tt.granularity)
			if err != nil {
				t.Fatalf("Trends() error = %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Trends() = %+v, want %+v", got, tt.want)
			}
		})
	}

	if _, err := a.Trends(ctx, start, end, "hourly"); err == nil {
		t.Error("unknown granularity should fail")
	}
	if _, err := a.Trends(ctx, end, start, GranularityDaily); err == nil {
		t.Error("inverted range should fail")
	}
}

func series(costs ...float64) []TrendPoint {
	out := make([]TrendPoint, len(costs))
	for i, c := range costs {
		out[i] = TrendPoint{Period: day.AddDate(0, 0, i).Format(usage.PartitionLayout), Cost: c}
	}
	return out
}

func TestForecastFrom(t *testing.T) {
	a := New(store.NewMemoryStore(), DefaultConfig())
	from := time.Date(2025, 1, 31, 18, 0, 0, 0, time.UTC)

	t.Run("increasing", func(t *testing.T) {
		fc := a.ForecastFrom(series(1, 2, 3, 4, 5, 6, 7), 3, from)
		if fc.Insufficient || len(fc.Points) != 3 {
			t.Fatalf("forecast = %+v", fc)
		}
		if fc.Slope != 1 || fc.Intercept != 1 || fc.StdDev != 0 {
			t.Errorf("fit = %v/%v/%v, want 1/1/0", fc.Slope, fc.Intercept, fc.StdDev)
		}
		for i, want := range []float64{8, 9, 10} {
			p := fc.Points[i]
			if p.PredictedCost != want || p.ConfidenceInterval != [2]float64{want, want} {
				t.Errorf("point %d = %+v, want %v", i, p, want)
			}
			if p.TrendDirection != TrendIncreasing {
				t.Errorf("point %d direction = %s", i, p.TrendDirection)
			}
		}
		if fc.Points[0].Period != "2025-02-01" || fc.Points[2].Period != "2025-02-03" {
			t.Errorf("periods = %s..%s", fc.Points[0].Period, fc.Points[2].Period)
		}
	})

	t.Run("decreasing clamps at zero", func(t *testing.T) {
		fc := a.ForecastFrom(series(7, 6, 5, 4, 3, 2, 1), 2, from)
		for _, p := range fc.Points {
			if p.PredictedCost != 0 || p.ConfidenceInterval[0] != 0 {
				t.Errorf("point = %+v, want zero", p)
			}
			if p.TrendDirection != TrendDecreasing {
				t.Errorf("direction = %s", p.TrendDirection)
			}
		}
	})

	t.Run("stable with band", func(t *testing.T) {
		fc := a.ForecastFrom(series(10, 12, 10, 12, 10, 12, 10), 0, from)
		if len(fc.Points) != a.Config().ForecastDays {
			t.Fatalf("got %d points, want default %d", len(fc.Points), a.Config().ForecastDays)
		}
		sigma := math.Sqrt(8.0 / 7)
		if !approx(fc.StdDev, sigma) {
			t.Errorf("StdDev = %v, want %v", fc.StdDev, sigma)
		}
		p := fc.Points[0]
		mean := 76.0 / 7
		if p.TrendDirection != TrendStable || math.Abs(p.PredictedCost-mean) > 1e-6 {
			t.Errorf("point = %+v, want stable around %v", p, mean)
		}
		if math.Abs(p.ConfidenceInterval[0]-(mean-2*sigma)) > 1e-6 || math.Abs(p.ConfidenceInterval[1]-(mean+2*sigma)) > 1e-6 {
			t.Errorf("interval = %v", p.ConfidenceInterval)
		}
	})

	t.Run("insufficient history", func(t *testing.T) {
		fc := a.ForecastFrom(series(1, 2, 3, 4, 5, 6), 7, from)
		if !fc.Insufficient || fc.Points == nil || len(fc.Points) != 0 || fc.HistoryBuckets != 6 {
			t.Errorf("forecast = %+v, want empty and insufficient", fc)
		}
	})
}

func TestForecast_UsesClock(t *testing.T) {
	now := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)
	var records []*usage.Record
	for k := range 10 {
		records = append(records, usage.NewRecord(now.AddDate(0, 0, -k), "a", haiku, "", 1, 1, float64(10-k)))
	}
	a := New(seed(t, records...), DefaultConfig(), WithClock(func() time.Time { return now }))

	fc, err := a.Forecast(context.Background())
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if fc.HistoryBuckets != 10 || len(fc.Points) != 7 {
		t.Fatalf("forecast = %+v", fc)
	}
	if fc.Points[0].Period != "2025-02-11" || !approx(fc.Points[0].PredictedCost, 11) {
		t.Errorf("first point = %+v", fc.Points[0])
	}

	sparse := New(seed(t, records[:3]...), DefaultConfig(), WithClock(func() time.Time { return now }))
	fc, err = sparse.Forecast(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !fc.Insufficient || len(fc.Points) != 0 {
		t.Errorf("sparse forecast = %+v", fc)
	}
}

func TestCheckThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyThreshold = 0.05
	cfg.HourlyThreshold = 0.05
	a := fixture(t, cfg)
	ctx := context.Background()

	got, err := a.CheckThresholds(ctx, day, at(day, 10, 45))
	if err != nil {
		t.Fatalf("CheckThresholds() error = %v", err)
	}
	want := ThresholdCheck{
		Date:                    "2025-01-15",
		DailyThresholdExceeded:  true,
		HourlyThresholdExceeded: true,
		DailyCost:               0.082,
		DailyThreshold:          0.05,
		CurrentHour:             "10:00",
		CurrentHourCost:         0.06,
		HourlyThreshold:         0.05,
		AlertRequired:           true,
	}
	if *got != want {
		t.Errorf("CheckThresholds() = %+v, want %+v", *got, want)
	}

	got, _ = a.CheckThresholds(ctx, day, at(day, 14, 10))
	if got.HourlyThresholdExceeded || !got.AlertRequired {
		t.Errorf("14:00 check = %+v", got)
	}

	quiet := fixture(t, Config{DailyThreshold: 1, HourlyThreshold: 1})
	got, _ = quiet.CheckThresholds(ctx, day, at(day, 3, 0))
	if got.AlertRequired || got.CurrentHourCost != 0 {
		t.Errorf("quiet check = %+v", got)
	}
}

func TestExport(t *testing.T) {
	a := fixture(t, DefaultConfig())
	ctx := context.Background()
	end := day.AddDate(0, 0, 1)

	var buf bytes.Buffer
	n, err := a.Export(ctx, day, end, export.FormatCSV, &buf)
	if err != nil {
		t.Fatalf("Export(csv) error = %v", err)
	}
	parsed, err := export.ParseCSV(&buf)
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if n != 5 || len(parsed) != 5 {
		t.Errorf("exported %d, parsed %d; want 5", n, len(parsed))
	}

	buf.Reset()
	if _, err := a.Export(ctx, day, day, export.FormatJSON, &buf); err != nil {
		t.Fatalf("Export(json) error = %v", err)
	}
	var doc export.Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.RecordCount != 4 || len(doc.Records) != 4 {
		t.Errorf("document holds %d/%d records, want 4", doc.RecordCount, len(doc.Records))
	}

	if _, err := a.Export(ctx, day, end, "xml", &buf); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestExportStreamMatchesExport(t *testing.T) {
	a := fixture(t, DefaultConfig())
	ctx := context.Background()
	end := day.AddDate(0, 0, 1)

	var whole, streamed bytes.Buffer
	n, err := a.Export(ctx, day, end, export.FormatCSV, &whole)
	if err != nil {
		t.Fatal(err)
	}
	m, err := a.ExportStream(ctx, day, end, export.FormatCSV, &streamed)
	if err != nil {
		t.Fatalf("ExportStream(csv) error = %v", err)
	}
	if n != m {
		t.Errorf("ExportStream wrote %d records, Export wrote %d", m, n)
	}
	if whole.String() != streamed.String() {
		t.Errorf("streamed CSV differs:\n%s\nwant:\n%s", streamed.String(), whole.String())
	}

	streamed.Reset()
	if _, err := a.ExportStream(ctx, day, end, export.FormatJSON, &streamed); err != nil {
		t.Fatalf("ExportStream(json) error = %v", err)
	}
	var doc export.Document
	if err := json.Unmarshal(streamed.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.RecordCount != n || len(doc.Records) != n {
		t.Errorf("document holds %d/%d records, want %d", doc.RecordCount, len(doc.Records), n)
	}

	if _, err := a.ExportStream(ctx, end, day, export.FormatCSV, &streamed); err == nil {
		t.Error("reversed range should fail")
	}
	if _, err := a.ExportStream(ctx, day, end, "xml", &streamed); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(&config.AnalyzerConfig{TopIncidents: 3, StableSlope: 0.5}, &config.AlertsConfig{
		DailyCostThreshold:  25,
		HourlyCostThreshold: 2.5,
	})
	if cfg.TopIncidents != 3 || cfg.StableSlope != 0.5 {
		t.Errorf("analyzer overrides lost: %+v", cfg)
	}
	if cfg.QueryLimit != config.DefaultAnalyzerQueryLimit || cfg.MinHistory != config.DefaultAnalyzerMinHistory {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if cfg.DailyThreshold != 25 || cfg.HourlyThreshold != 2.5 {
		t.Errorf("thresholds = %v/%v", cfg.DailyThreshold, cfg.HourlyThreshold)
	}

	if got := ConfigFrom(nil, nil); got != DefaultConfig() {
		t.Errorf("ConfigFrom(nil, nil) = %+v", got)
	}
}
