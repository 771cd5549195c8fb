package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"mercator-hq/tokenmeter/pkg/analyzer"
	"mercator-hq/tokenmeter/pkg/cli"
)

var trendsFlags struct {
	start       string
	end         string
	granularity string
	chart       bool
	height      int
}

var forecastFlags struct {
	days int
}

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Cost per day, week or month",
	Long: `Show cost, tokens and requests bucketed by day, ISO week (starting Monday)
or calendar month. Buckets without usage are omitted.

Examples:
  # Daily costs for the last 30 days with a chart
  tokenmeter trends --chart

  # Monthly costs for a year
  tokenmeter trends --start 2025-01-01 --end 2025-12-31 --granularity monthly`,
	RunE: showTrends,
}

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Project daily cost from recent history",
	Long: `Fit a line to the daily costs of the configured history window
(analyzer.historical_days) and project it forward. The confidence band is
two residual standard deviations either side; predictions are clamped at zero.`,
	RunE: showForecast,
}

func init() {
	rootCmd.AddCommand(trendsCmd, forecastCmd)

	trendsCmd.Flags().StringVar(&trendsFlags.start, "start", "", "range start (default: 30 days before end)")
	trendsCmd.Flags().StringVar(&trendsFlags.end, "end", "", "range end (default: now)")
	trendsCmd.Flags().StringVarP(&trendsFlags.granularity, "granularity", "g", analyzer.GranularityDaily, "daily, weekly or monthly")
	trendsCmd.Flags().BoolVar(&trendsFlags.chart, "chart", false, "plot the cost series")
	trendsCmd.Flags().IntVar(&trendsFlags.height, "height", 10, "chart height in lines")

	forecastCmd.Flags().IntVar(&forecastFlags.days, "days", 0, "days to project (default: analyzer.forecast_days)")
}

func showTrends(cmd *cobra.Command, args []string) error {
	start, end, err := parseRange(trendsFlags.start, trendsFlags.end, 30)
	if err != nil {
		return cli.NewConfigError("start/end", err.Error())
	}
	out, err := outputFormat()
	if err != nil {
		return err
	}

	return withAnalyzer("trends", func(ctx context.Context, a *analyzer.Analyzer) error {
		points, err := a.Trends(ctx, start, end, trendsFlags.granularity)
		if err != nil {
			return err
		}
		return cli.Print(cmd.OutOrStdout(), out, points, func(w io.Writer) error {
			if len(points) == 0 {
				fmt.Fprintln(w, "No usage recorded in range.")
				return nil
			}
			if trendsFlags.chart {
				fmt.Fprintln(w, costChart(points, trendsFlags.height, trendsFlags.granularity))
				fmt.Fprintln(w)
			}
			t := cli.NewTable(w, "PERIOD", "COST", "TOKENS", "REQUESTS")
			for _, p := range points {
				t.Row(p.Period, p.Cost, p.Tokens, p.Requests)
			}
			return t.Flush()
		})
	})
}

func costChart(points []analyzer.TrendPoint, height int, granularity string) string {
	data := make([]float64, len(points))
	for i, p := range points {
		data[i] = p.Cost
	}
	caption := fmt.Sprintf("%s cost (USD) %s to %s", granularity, points[0].Period, points[len(points)-1].Period)
	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Caption(caption),
	)
}

func showForecast(cmd *cobra.Command, args []string) error {
	out, err := outputFormat()
	if err != nil {
		return err
	}

	return withAnalyzer("forecast", func(ctx context.Context, a *analyzer.Analyzer) error {
		now := time.Now().UTC()
		history, err := a.Trends(ctx, now.AddDate(0, 0, -a.Config().HistoricalDays), now, analyzer.GranularityDaily)
		if err != nil {
			return err
		}
		f := a.ForecastFrom(history, forecastFlags.days, now)
		return cli.Print(cmd.OutOrStdout(), out, f, func(w io.Writer) error {
			if f.Insufficient {
				fmt.Fprintf(w, "Not enough history to forecast (%d of %d days with usage).\n",
					f.HistoryBuckets, a.Config().MinHistory)
				return nil
			}
			fmt.Fprintf(w, "Forecast from %d days of history (slope $%.6f/day)\n\n", f.HistoryBuckets, f.Slope)
			t := cli.NewTable(w, "DATE", "PREDICTED", "LOW", "HIGH", "TREND")
			for _, p := range f.Points {
				t.Row(p.Period, p.PredictedCost, p.ConfidenceInterval[0], p.ConfidenceInterval[1], p.TrendDirection)
			}
			return t.Flush()
		})
	})
}
