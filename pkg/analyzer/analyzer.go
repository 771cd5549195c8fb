package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"mercator-hq/tokenmeter/pkg/config"
	"mercator-hq/tokenmeter/pkg/export"
	"mercator-hq/tokenmeter/pkg/usage"
)

// ErrNoData is returned when a report has no records to work from.
var ErrNoData = fmt.Errorf("analyzer: %w", usage.ErrNotFound)

// Config holds the analyzer settings.
type Config struct {
	QueryLimit     int
	TopIncidents   int
	HistoricalDays int
	ForecastDays   int
	MinHistory     int
	StableSlope    float64

	DailyThreshold  float64
	HourlyThreshold float64
}

// DefaultConfig returns the built-in analyzer settings.
func DefaultConfig() Config {
	return Config{
		QueryLimit:      config.DefaultAnalyzerQueryLimit,
		TopIncidents:    config.DefaultAnalyzerTopIncidents,
		HistoricalDays:  config.DefaultAnalyzerHistoricalDays,
		ForecastDays:    config.DefaultAnalyzerForecastDays,
		MinHistory:      config.DefaultAnalyzerMinHistory,
		StableSlope:     config.DefaultAnalyzerStableSlope,
		DailyThreshold:  config.DefaultDailyCostThreshold,
		HourlyThreshold: config.DefaultHourlyCostThreshold,
	}
}

// ConfigFrom builds a Config from the loaded configuration sections. Unset
// values keep their defaults; either section may be nil.
func ConfigFrom(ac *config.AnalyzerConfig, alerts *config.AlertsConfig) Config {
	cfg := DefaultConfig()
	if ac != nil {
		setInt(&cfg.QueryLimit, ac.QueryLimit)
		setInt(&cfg.TopIncidents, ac.TopIncidents)
		setInt(&cfg.HistoricalDays, ac.HistoricalDays)
		setInt(&cfg.ForecastDays, ac.ForecastDays)
		setInt(&cfg.MinHistory, ac.MinHistory)
		if ac.StableSlope > 0 {
			cfg.StableSlope = ac.StableSlope
		}
	}
	if alerts != nil {
		cfg.DailyThreshold = alerts.DailyCostThreshold
		cfg.HourlyThreshold = alerts.HourlyCostThreshold
	}
	return cfg
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithClock replaces time.Now for forecasts.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// Analyzer computes reports over a usage.Reader.
type Analyzer struct {
	reader usage.Reader
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// New creates an Analyzer reading from reader.
func New(reader usage.Reader, cfg Config, opts ...Option) *Analyzer {
	def := DefaultConfig()
	if cfg.QueryLimit <= 0 {
		cfg.QueryLimit = def.QueryLimit
	}
	if cfg.TopIncidents <= 0 {
		cfg.TopIncidents = def.TopIncidents
	}
	if cfg.HistoricalDays <= 0 {
		cfg.HistoricalDays = def.HistoricalDays
	}
	if cfg.ForecastDays <= 0 {
		cfg.ForecastDays = def.ForecastDays
	}
	if cfg.MinHistory <= 0 {
		cfg.MinHistory = def.MinHistory
	}
	if cfg.StableSlope <= 0 {
		cfg.StableSlope = def.StableSlope
	}

	a := &Analyzer{
		reader: reader,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default().With("component", "analyzer"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the effective settings.
func (a *Analyzer) Config() Config {
	return a.cfg
}

// query loads the records of [start, end] restricted to agentIDs when any
// are given. The second result reports whether the query limit was hit.
func (a *Analyzer) query(ctx context.Context, start, end time.Time, agentIDs []string) ([]*usage.Record, bool, error) {
	if usage.StartOfDay(end).Before(usage.StartOfDay(start)) {
		return nil, false, fmt.Errorf("analyzer: end date %s is before start date %s",
			usage.PartitionKey(end), usage.PartitionKey(start))
	}

	agent := ""
	if len(agentIDs) == 1 {
		agent = agentIDs[0]
	}
	records, err := a.reader.ByDateRange(ctx, start, end, agent, a.cfg.QueryLimit)
	if err != nil {
		return nil, false, fmt.Errorf("analyzer: query %s..%s: %w",
			usage.PartitionKey(start), usage.PartitionKey(end), err)
	}

	truncated := len(records) >= a.cfg.QueryLimit
	if truncated {
		a.logger.Warn("query limit reached, report is partial",
			"start", usage.PartitionKey(start),
			"end", usage.PartitionKey(end),
			"limit", a.cfg.QueryLimit,
		)
	}

	if len(agentIDs) > 1 {
		records = slices.DeleteFunc(records, func(r *usage.Record) bool {
			return !slices.Contains(agentIDs, r.AgentID)
		})
	}
	return records, truncated, nil
}

// Export writes the records of [start, end] to w in format and returns how
// many were written.
func (a *Analyzer) Export(ctx context.Context, start, end time.Time, format string, w io.Writer) (int, error) {
	exp, err := export.New(format, true)
	if err != nil {
		return 0, err
	}

	records, _, err := a.query(ctx, start, end, nil)
	if err != nil {
		return 0, err
	}

	if err := exp.Export(ctx, records, w); err != nil {
		var ee *usage.ExportError
		if errors.As(err, &ee) {
			return 0, err
		}
		return 0, usage.NewExportError(format, len(records), err)
	}

	a.logger.Info("records exported",
		"format", format,
		"records", len(records),
		"start", usage.PartitionKey(start),
		"end", usage.PartitionKey(end),
	)
	return len(records), nil
}

// exportBuffer is the number of records read ahead of the exporter.
const exportBuffer = 256

// ExportStream is Export for long ranges. Records are read one day
// partition at a time, newest day first, and handed to the exporter as they
// arrive, so the range is never held in memory. The output matches Export
// unless a single day exceeds the query limit.
func (a *Analyzer) ExportStream(ctx context.Context, start, end time.Time, format string, w io.Writer) (int, error) {
	exp, err := export.New(format, true)
	if err != nil {
		return 0, err
	}
	if usage.StartOfDay(end).Before(usage.StartOfDay(start)) {
		return 0, fmt.Errorf("analyzer: end date %s is before start date %s",
			usage.PartitionKey(end), usage.PartitionKey(start))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	records := make(chan *usage.Record, exportBuffer)
	done := make(chan struct{})
	var (
		count   int
		readErr error
	)
	go func() {
		defer close(done)
		defer close(records)
		count, readErr = a.readDays(ctx, start, end, records)
		if readErr != nil {
			cancel()
		}
	}()

	err = exp.ExportStream(ctx, records, w)
	cancel()
	<-done

	if readErr != nil {
		return count, readErr
	}
	if err != nil {
		return count, err
	}

	a.logger.Info("records exported",
		"format", format,
		"records", count,
		"start", usage.PartitionKey(start),
		"end", usage.PartitionKey(end),
		"streamed", true,
	)
	return count, nil
}

// readDays sends the records of each day in [start, end] to out, newest
// first, and returns how many were sent.
func (a *Analyzer) readDays(ctx context.Context, start, end time.Time, out chan<- *usage.Record) (int, error) {
	days := usage.NewDateRange(start, end).Days()
	sent := 0
	for i := len(days) - 1; i >= 0; i-- {
		d, err := time.ParseInLocation(usage.PartitionLayout, days[i], time.UTC)
		if err != nil {
			return sent, err
		}
		recs, err := a.reader.ByDateRange(ctx, d, d, "", a.cfg.QueryLimit)
		if err != nil {
			return sent, fmt.Errorf("analyzer: query %s: %w", days[i], err)
		}
		if len(recs) >= a.cfg.QueryLimit {
			a.logger.Warn("query limit reached, export of day is partial",
				"day", days[i],
				"limit", a.cfg.QueryLimit,
			)
		}
		for _, rec := range recs {
			select {
			case out <- rec:
				sent++
			case <-ctx.Done():
				return sent, ctx.Err()
			}
		}
	}
	return sent, nil
}
