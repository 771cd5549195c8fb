package analyzer

import (
	"context"
	"time"
)

// CheckThresholds compares the spend of day, and of the hour containing
// now, against the configured thresholds.
func (a *Analyzer) CheckThresholds(ctx context.Context, day, now time.Time) (*ThresholdCheck, error) {
	report, err := a.DailyReport(ctx, day)
	if err != nil {
		return nil, err
	}

	hour := hourKey(now)
	check := &ThresholdCheck{
		Date:            report.DateRange.StartDate,
		DailyCost:       report.TotalCost,
		DailyThreshold:  a.cfg.DailyThreshold,
		CurrentHour:     hour,
		CurrentHourCost: report.ByHour[hour].Cost,
		HourlyThreshold: a.cfg.HourlyThreshold,
	}
	check.DailyThresholdExceeded = check.DailyCost > check.DailyThreshold
	check.HourlyThresholdExceeded = check.CurrentHourCost > check.HourlyThreshold
	check.AlertRequired = check.DailyThresholdExceeded || check.HourlyThresholdExceeded

	if check.AlertRequired {
		a.logger.Warn("cost threshold exceeded",
			"date", check.Date,
			"daily_cost", check.DailyCost,
			"daily_threshold", check.DailyThreshold,
			"hour", hour,
			"hourly_cost", check.CurrentHourCost,
			"hourly_threshold", check.HourlyThreshold,
		)
	}
	return check, nil
}
