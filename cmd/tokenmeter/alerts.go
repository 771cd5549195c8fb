package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"mercator-hq/tokenmeter/pkg/analyzer"
	"mercator-hq/tokenmeter/pkg/cli"
	"mercator-hq/tokenmeter/pkg/factory"
	"mercator-hq/tokenmeter/pkg/publisher"
)

var (
	okColor    = color.New(color.FgGreen)
	alertColor = color.New(color.FgRed, color.Bold)
	labelColor = color.New(color.Bold)
)

var alertsFlags struct {
	date   string
	agents []string
	model  string
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Cost threshold alerts",
	Long: `Check recorded spend against the configured cost thresholds
(alerts.daily_cost_threshold and alerts.hourly_cost_threshold) and manage
the matching CloudWatch alarms.

"alerts check" exits with status 3 when a threshold is exceeded, so it can
gate scripts and cron jobs.

Examples:
  # Check today's spend
  tokenmeter alerts check

  # Create alarms for two agents, notifying alerts.sns_topic_arn
  tokenmeter alerts create --agent triage --agent remediation`,
}

var alertsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check spend against the thresholds",
	RunE:  checkAlerts,
}

var alertsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create CloudWatch cost alarms",
	RunE:  createAlerts,
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsCheckCmd, alertsCreateCmd)

	alertsCheckCmd.Flags().StringVar(&alertsFlags.date, "date", "", "day to check, YYYY-MM-DD (default: today UTC)")

	alertsCreateCmd.Flags().StringSliceVar(&alertsFlags.agents, "agent", nil, "agent ids to alarm on (default: recorder.default_agent_id)")
	alertsCreateCmd.Flags().StringVar(&alertsFlags.model, "model", "", "model id to alarm on (default: recorder.default_model)")
}

func checkAlerts(cmd *cobra.Command, args []string) error {
	now := time.Now().UTC()
	day, err := parseDate(alertsFlags.date, now)
	if err != nil {
		return cli.NewConfigError("date", err.Error())
	}
	out, err := outputFormat()
	if err != nil {
		return err
	}

	return withAnalyzer("alerts check", func(ctx context.Context, a *analyzer.Analyzer) error {
		check, err := a.CheckThresholds(ctx, day, now)
		if err != nil {
			return err
		}
		if err := cli.Print(cmd.OutOrStdout(), out, check, func(w io.Writer) error {
			return printThresholdCheck(w, check)
		}); err != nil {
			return err
		}
		if check.AlertRequired {
			return cli.ErrAlert
		}
		return nil
	})
}

func printThresholdCheck(w io.Writer, c *analyzer.ThresholdCheck) error {
	verdict := func(exceeded bool) string {
		if exceeded {
			return alertColor.Sprint("EXCEEDED")
		}
		return okColor.Sprint("ok")
	}

	labelColor.Fprintf(w, "Cost thresholds for %s\n", c.Date)
	fmt.Fprintf(w, "  daily:   $%.6f of $%.2f  %s\n", c.DailyCost, c.DailyThreshold, verdict(c.DailyThresholdExceeded))
	fmt.Fprintf(w, "  hour %s: $%.6f of $%.2f  %s\n", c.CurrentHour, c.CurrentHourCost, c.HourlyThreshold, verdict(c.HourlyThresholdExceeded))
	if c.AlertRequired {
		alertColor.Fprintln(w, "Alert required")
	} else {
		okColor.Fprintln(w, "Within budget")
	}
	return nil
}

func createAlerts(cmd *cobra.Command, args []string) error {
	return withPipeline("alerts create", func(ctx context.Context, p *factory.Pipeline) error {
		arns, err := createCostAlarms(ctx, p, alertsFlags.agents, alertsFlags.model)
		for _, arn := range arns {
			fmt.Fprintf(cmd.OutOrStdout(), "Created alarm %s\n", arn)
		}
		return err
	})
}

// createCostAlarms creates a daily and an hourly EstimatedCost alarm per
// agent, at the configured thresholds.
func createCostAlarms(ctx context.Context, p *factory.Pipeline, agents []string, model string) ([]string, error) {
	if p.CloudWatch == nil {
		return nil, errors.New("alarms need the cloudwatch metrics backend")
	}
	if len(agents) == 0 {
		agents = []string{p.Config.Recorder.DefaultAgentID}
	}
	if model == "" {
		model = p.Config.Recorder.DefaultModel
	}

	var actions []string
	if arn := p.Config.Alerts.SNSTopicARN; arn != "" {
		actions = []string{arn}
	}

	windows := []struct {
		suffix    string
		period    time.Duration
		threshold float64
	}{
		{"daily", 24 * time.Hour, p.Config.Alerts.DailyCostThreshold},
		{"hourly", time.Hour, p.Config.Alerts.HourlyCostThreshold},
	}

	var arns []string
	var errs []error
	for _, agent := range agents {
		for _, win := range windows {
			arn, err := p.CloudWatch.CreateAlarm(ctx, publisher.AlarmSpec{
				Name:              fmt.Sprintf("%s-%s-cost-%s", p.Config.Metrics.Namespace, agent, win.suffix),
				Namespace:         p.Config.Metrics.Namespace,
				MetricName:        publisher.MetricEstimatedCost,
				Threshold:         win.threshold,
				EvaluationPeriods: 1,
				Period:            win.period,
				Dimensions: map[string]string{
					publisher.DimAgentID: agent,
					publisher.DimModelID: model,
				},
				Actions: actions,
			})
			if err != nil {
				errs = append(errs, err)
				continue
			}
			arns = append(arns, arn)
		}
	}
	return arns, errors.Join(errs...)
}
