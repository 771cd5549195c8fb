package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"mercator-hq/tokenmeter/pkg/analyzer"
	"mercator-hq/tokenmeter/pkg/export"
	"mercator-hq/tokenmeter/pkg/store"
	"mercator-hq/tokenmeter/pkg/usage"
)

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)

	out := buf.String()
	for _, want := range []string{"tokenmeter " + Version, "Git Commit:", "Go Version:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCommandTree(t *testing.T) {
	paths := [][]string{
		{"version"},
		{"config", "validate"},
		{"config", "env"},
		{"pricing", "list"},
		{"pricing", "cost"},
		{"invoke"},
		{"report", "daily"},
		{"report", "agent"},
		{"report", "incident"},
		{"report", "summary"},
		{"trends"},
		{"forecast"},
		{"alerts", "check"},
		{"alerts", "create"},
		{"export"},
		{"store", "init"},
		{"store", "purge"},
		{"store", "serve-retention"},
		{"store", "import"},
		{"metrics", "serve"},
		{"metrics", "stats"},
	}
	for _, path := range paths {
		cmd, _, err := rootCmd.Find(path)
		if err != nil {
			t.Errorf("Find(%v) error = %v", path, err)
			continue
		}
		if cmd.Name() != path[len(path)-1] {
			t.Errorf("Find(%v) = %q", path, cmd.Name())
		}
	}
}

func TestParseDate(t *testing.T) {
	def := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "", want: def},
		{in: "2025-01-15", want: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)},
		{in: "2025-01-15T10:30:00+02:00", want: time.Date(2025, 1, 15, 8, 30, 0, 0, time.UTC)},
		{in: "15/01/2025", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseDate(tt.in, def)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseDate(%q) succeeded", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseDate(%q) error = %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseRange(t *testing.T) {
	start, end, err := parseRange("2025-01-01", "2025-01-31", 7)
	if err != nil {
		t.Fatalf("parseRange() error = %v", err)
	}
	if !start.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", start)
	}
	if end.Format(time.DateOnly) != "2025-01-31" || end.Hour() != 23 {
		t.Errorf("end = %v, want the end of 2025-01-31", end)
	}

	start, _, err = parseRange("", "2025-01-10", 7)
	if err != nil {
		t.Fatalf("parseRange() error = %v", err)
	}
	if got := start.Format(time.DateOnly); got != "2025-01-03" {
		t.Errorf("default start = %s, want 2025-01-03", got)
	}

	if _, _, err := parseRange("2025-02-01", "2025-01-01", 7); err == nil {
		t.Error("inverted range accepted")
	}
}

func TestPrintThresholdCheck(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	err := printThresholdCheck(&buf, &analyzer.ThresholdCheck{
		Date:                   "2025-01-15",
		DailyThresholdExceeded: true,
		DailyCost:              120.5,
		DailyThreshold:         100,
		CurrentHour:            "10:00",
		CurrentHourCost:        2,
		HourlyThreshold:        10,
		AlertRequired:          true,
	})
	if err != nil {
		t.Fatalf("printThresholdCheck() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"2025-01-15", "EXCEEDED", "hour 10:00", "Alert required"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCostChart(t *testing.T) {
	points := []analyzer.TrendPoint{
		{Period: "2025-01-01", Cost: 1.5},
		{Period: "2025-01-02", Cost: 3},
		{Period: "2025-01-03", Cost: 2},
	}
	chart := costChart(points, 5, analyzer.GranularityDaily)
	if !strings.Contains(chart, "daily cost (USD) 2025-01-01 to 2025-01-03") {
		t.Errorf("chart missing caption:\n%s", chart)
	}
	if lines := strings.Count(chart, "\n"); lines < 5 {
		t.Errorf("chart has %d lines, want at least 5", lines)
	}
}

func TestReadExport(t *testing.T) {
	dir := t.TempDir()
	records := []*usage.Record{
		usage.NewRecord(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC), "agent-a", "model-x", "INC-1", 1000, 200, 0.006),
		usage.NewRecord(time.Date(2025, 1, 15, 11, 0, 0, 0, time.UTC), "agent-b", "model-y", "", 50, 10, 0.0003),
	}

	for _, format := range []string{export.FormatCSV, export.FormatJSON} {
		t.Run(format, func(t *testing.T) {
			exp, err := export.New(format, false)
			if err != nil {
				t.Fatalf("export.New() error = %v", err)
			}
			var buf bytes.Buffer
			if err := exp.Export(context.Background(), records, &buf); err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			path := filepath.Join(dir, "usage."+format)
			if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
				t.Fatal(err)
			}

			got, err := readExport(path)
			if err != nil {
				t.Fatalf("readExport() error = %v", err)
			}
			if len(got) != len(records) {
				t.Fatalf("readExport() returned %d records, want %d", len(got), len(records))
			}
			if got[0].AgentID != "agent-a" || got[0].IncidentID != "INC-1" || got[0].TotalTokens != 1200 {
				t.Errorf("first record = %+v", got[0])
			}
			if !got[1].Timestamp.Equal(records[1].Timestamp) {
				t.Errorf("timestamp = %v, want %v", got[1].Timestamp, records[1].Timestamp)
			}
		})
	}
}

func TestReadExport_MissingFile(t *testing.T) {
	if _, err := readExport(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Fatal("readExport() of a missing file succeeded")
	}
}

func TestExportRecords(t *testing.T) {
	ctx := context.Background()
	first := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	mem := store.NewMemoryStore()
	for i := 0; i < 3; i++ {
		ts := first.AddDate(0, 0, i).Add(9 * time.Hour)
		if err := mem.Put(ctx, usage.NewRecord(ts, "agent", "model", "", 10, 5, 0.001)); err != nil {
			t.Fatal(err)
		}
	}
	a := analyzer.New(mem, analyzer.DefaultConfig())

	old := exportFlags.exportType
	exportFlags.exportType = export.FormatCSV
	t.Cleanup(func() { exportFlags.exportType = old })

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  int
	}{
		{"single day", first, first.Add(23 * time.Hour), 1},
		{"multi day streamed", first, first.AddDate(0, 0, 2), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := exportRecords(ctx, a, tt.start, tt.end, &buf)
			if err != nil {
				t.Fatalf("exportRecords() error = %v", err)
			}
			records, err := export.ParseCSV(&buf)
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.want || len(records) != tt.want {
				t.Errorf("exported %d, parsed %d; want %d", n, len(records), tt.want)
			}
		})
	}
}
