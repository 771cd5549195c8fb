package analyzer

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"mercator-hq/tokenmeter/pkg/pricing"
	"mercator-hq/tokenmeter/pkg/usage"
)

// periodKey returns the bucket a timestamp falls in.
func periodKey(t time.Time, granularity string) string {
	day := usage.StartOfDay(t)
	switch granularity {
	case GranularityWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset).Format(usage.PartitionLayout)
	case GranularityMonthly:
		return day.Format("2006-01")
	default:
		return day.Format(usage.PartitionLayout)
	}
}

// Trends buckets the spend of [start, end] by granularity. Buckets are
// chronological and only present when they contain records.
func (a *Analyzer) Trends(ctx context.Context, start, end time.Time, granularity string) ([]TrendPoint, error) {
	switch granularity {
	case GranularityDaily, GranularityWeekly, GranularityMonthly:
	default:
		return nil, &usage.ValidationError{Field: "granularity", Message: fmt.Sprintf("unsupported granularity %q", granularity)}
	}

	records, _, err := a.query(ctx, start, end, nil)
	if err != nil {
		return nil, err
	}

	buckets := make(map[string]*TrendPoint)
	for _, r := range records {
		k := periodKey(r.Timestamp, granularity)
		p, ok := buckets[k]
		if !ok {
			p = &TrendPoint{Period: k}
			buckets[k] = p
		}
		p.Cost += r.EstimatedCost
		p.Tokens += r.TotalTokens
		p.Requests++
	}

	out := make([]TrendPoint, 0, len(buckets))
	for _, p := range buckets {
		p.Cost = pricing.Round(p.Cost, 6)
		out = append(out, *p)
	}
	slices.SortFunc(out, func(x, y TrendPoint) int { return cmp.Compare(x.Period, y.Period) })
	return out, nil
}

// Forecast projects daily spend ForecastDays ahead from the last
// HistoricalDays of history.
func (a *Analyzer) Forecast(ctx context.Context) (*Forecast, error) {
	now := a.now().UTC()
	trends, err := a.Trends(ctx, now.AddDate(0, 0, -a.cfg.HistoricalDays), now, GranularityDaily)
	if err != nil {
		return nil, err
	}
	return a.ForecastFrom(trends, a.cfg.ForecastDays, now), nil
}

// ForecastFrom fits a least-squares line to the cost of trends, indexed by
// position, and projects days points starting the day after from.
func (a *Analyzer) ForecastFrom(trends []TrendPoint, days int, from time.Time) *Forecast {
	n := len(trends)
	fc := &Forecast{Points: []ForecastPoint{}, HistoryBuckets: n}
	if n < a.cfg.MinHistory || n == 0 {
		fc.Insufficient = true
		a.logger.Info("not enough history to forecast",
			"buckets", n,
			"required", a.cfg.MinHistory,
		)
		return fc
	}
	if days <= 0 {
		days = a.cfg.ForecastDays
	}

	slope, intercept := leastSquares(trends)
	residuals := make([]float64, n)
	for i, p := range trends {
		residuals[i] = p.Cost - (slope*float64(i) + intercept)
	}
	sigma := sampleStdDev(residuals)

	direction := TrendStable
	switch {
	case math.Abs(slope) < a.cfg.StableSlope:
	case slope > 0:
		direction = TrendIncreasing
	default:
		direction = TrendDecreasing
	}

	base := usage.StartOfDay(from)
	for i := 0; i < days; i++ {
		predicted := math.Max(0, slope*float64(n+i)+intercept)
		fc.Points = append(fc.Points, ForecastPoint{
			Period:        base.AddDate(0, 0, i+1).Format(usage.PartitionLayout),
			PredictedCost: pricing.Round(predicted, 6),
			ConfidenceInterval: [2]float64{
				pricing.Round(math.Max(0, predicted-2*sigma), 6),
				pricing.Round(predicted+2*sigma, 6),
			},
			TrendDirection: direction,
		})
	}

	fc.Slope = slope
	fc.Intercept = intercept
	fc.StdDev = sigma
	return fc
}

// leastSquares fits cost = slope*index + intercept. A degenerate fit has a
// zero slope.
func leastSquares(trends []TrendPoint) (slope, intercept float64) {
	n := float64(len(trends))
	var sumX, sumY float64
	for i, p := range trends {
		sumX += float64(i)
		sumY += p.Cost
	}
	meanX, meanY := sumX/n, sumY/n

	var num, den float64
	for i, p := range trends {
		dx := float64(i) - meanX
		num += dx * (p.Cost - meanY)
		den += dx * dx
	}
	if den != 0 {
		slope = num / den
	}
	return slope, meanY - slope*meanX
}

func sampleStdDev(values []float64) float64 {
	n := len(values)
	if n <= 1 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	return math.Sqrt(ss / float64(n-1))
}
