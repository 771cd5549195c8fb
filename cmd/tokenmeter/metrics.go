package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/tokenmeter/pkg/cli"
	"mercator-hq/tokenmeter/pkg/factory"
	"mercator-hq/tokenmeter/pkg/publisher"
	"mercator-hq/tokenmeter/pkg/server"
)

var metricsFlags struct {
	address string
	metric  string
	agent   string
	model   string
	hours   int
	period  time.Duration
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Serve and query usage metrics",
	Long: `Serve the Prometheus endpoint or read published CloudWatch metrics.

Examples:
  # Expose /metrics, /healthz and /readyz on :9090
  tokenmeter metrics serve

  # Hourly EstimatedCost sums for one agent over the last day
  tokenmeter metrics stats --metric EstimatedCost --agent triage --hours 24 --period 1h`,
}

var metricsServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve Prometheus metrics and health probes",
	RunE:  serveMetrics,
}

var metricsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Read CloudWatch statistics for a usage metric",
	RunE:  metricStats,
}

func init() {
	rootCmd.AddCommand(metricsCmd)
	metricsCmd.AddCommand(metricsServeCmd, metricsStatsCmd)

	metricsServeCmd.Flags().StringVarP(&metricsFlags.address, "listen", "l", "", "listen address (default: telemetry.metrics.address)")

	metricsStatsCmd.Flags().StringVar(&metricsFlags.metric, "metric", publisher.MetricEstimatedCost, "metric name")
	metricsStatsCmd.Flags().StringVar(&metricsFlags.agent, "agent", "", "AgentId dimension")
	metricsStatsCmd.Flags().StringVar(&metricsFlags.model, "model", "", "ModelId dimension")
	metricsStatsCmd.Flags().IntVar(&metricsFlags.hours, "hours", 24, "look-back window in hours")
	metricsStatsCmd.Flags().DurationVar(&metricsFlags.period, "period", 5*time.Minute, "aggregation period")
}

func serveMetrics(cmd *cobra.Command, args []string) error {
	return withPipeline("metrics serve", func(ctx context.Context, p *factory.Pipeline) error {
		if !p.Metrics.Enabled() {
			return errors.New("prometheus metrics are disabled (telemetry.metrics.enabled)")
		}

		addr := metricsFlags.address
		if addr == "" {
			addr = p.Config.Telemetry.Metrics.Address
		}
		srv := server.New(server.Config{Address: addr, ShutdownTimeout: p.Config.Dispatcher.ShutdownGrace})
		srv.Handle(p.Config.Telemetry.Metrics.Path, p.Metrics.Handler())
		p.Health.Mount(srv.Mux())

		p.WatchPrices(ctx)
		return srv.Start(ctx)
	})
}

func metricStats(cmd *cobra.Command, args []string) error {
	if metricsFlags.hours <= 0 {
		return cli.NewConfigError("hours", "must be positive")
	}
	out, err := outputFormat()
	if err != nil {
		return err
	}

	return withPipeline("metrics stats", func(ctx context.Context, p *factory.Pipeline) error {
		if p.CloudWatch == nil {
			return errors.New("statistics need the cloudwatch metrics backend")
		}

		dims := map[string]string{}
		if metricsFlags.agent != "" {
			dims[publisher.DimAgentID] = metricsFlags.agent
		}
		if metricsFlags.model != "" {
			dims[publisher.DimModelID] = metricsFlags.model
		}

		end := time.Now().UTC()
		points, err := p.CloudWatch.Statistics(ctx, publisher.StatisticsQuery{
			Namespace:  p.Config.Metrics.Namespace,
			MetricName: metricsFlags.metric,
			Start:      end.Add(-time.Duration(metricsFlags.hours) * time.Hour),
			End:        end,
			Period:     metricsFlags.period,
			Dimensions: dims,
		})
		if err != nil {
			return err
		}
		slices.SortFunc(points, func(a, b publisher.Datapoint) int { return a.Timestamp.Compare(b.Timestamp) })

		return cli.Print(cmd.OutOrStdout(), out, points, func(w io.Writer) error {
			if len(points) == 0 {
				fmt.Fprintf(w, "No datapoints for %s in the last %dh.\n", metricsFlags.metric, metricsFlags.hours)
				return nil
			}
			t := cli.NewTable(w, "TIME", "SUM", "AVERAGE")
			for _, dp := range points {
				t.Row(dp.Timestamp.Format(time.RFC3339), dp.Sum, dp.Average)
			}
			return t.Flush()
		})
	})
}
