package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/tokenmeter/pkg/analyzer"
	"mercator-hq/tokenmeter/pkg/cli"
)

var reportFlags struct {
	date    string
	start   string
	end     string
	agents  []string
	groupBy string
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Cost reports from recorded usage",
	Long: `Build cost reports from the usage store.

Subcommands:
  daily     - Totals for one UTC day by agent, model and hour
  agent     - Per-agent totals and daily breakdown over a range
  incident  - Cost and timeline of one incident
  summary   - Token and cost totals grouped by agent, model or incident

Examples:
  # Yesterday's report as JSON
  tokenmeter report daily --date 2025-01-14 --format json

  # Two agents over a week
  tokenmeter report agent --start 2025-01-08 --end 2025-01-14 --agent triage --agent remediation

  # One incident
  tokenmeter report incident INC-42`,
}

var reportDailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Daily cost report",
	RunE:  dailyReport,
}

var reportAgentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Per-agent cost breakdown",
	RunE:  agentReport,
}

var reportIncidentCmd = &cobra.Command{
	Use:   "incident <incident-id>",
	Short: "Cost analysis of one incident",
	Args:  cobra.ExactArgs(1),
	RunE:  incidentReport,
}

var reportSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Usage grouped by a field",
	RunE:  summaryReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportDailyCmd, reportAgentCmd, reportIncidentCmd, reportSummaryCmd)

	reportDailyCmd.Flags().StringVar(&reportFlags.date, "date", "", "day to report, YYYY-MM-DD (default: today UTC)")
	reportDailyCmd.Flags().StringSliceVar(&reportFlags.agents, "agent", nil, "limit to agent ids (repeatable)")

	reportAgentCmd.Flags().StringVar(&reportFlags.start, "start", "", "range start (default: 7 days before end)")
	reportAgentCmd.Flags().StringVar(&reportFlags.end, "end", "", "range end (default: now)")
	reportAgentCmd.Flags().StringSliceVar(&reportFlags.agents, "agent", nil, "limit to agent ids (repeatable)")

	reportSummaryCmd.Flags().StringVar(&reportFlags.start, "start", "", "range start (default: 7 days before end)")
	reportSummaryCmd.Flags().StringVar(&reportFlags.end, "end", "", "range end (default: now)")
	reportSummaryCmd.Flags().StringVar(&reportFlags.groupBy, "group-by", analyzer.GroupByAgent, "agent_id, model_id or incident_id")
}

func dailyReport(cmd *cobra.Command, args []string) error {
	day, err := parseDate(reportFlags.date, time.Now().UTC())
	if err != nil {
		return cli.NewConfigError("date", err.Error())
	}
	out, err := outputFormat()
	if err != nil {
		return err
	}

	return withAnalyzer("report daily", func(ctx context.Context, a *analyzer.Analyzer) error {
		s, err := a.DailyReport(ctx, day, reportFlags.agents...)
		if err != nil {
			return err
		}
		return cli.Print(cmd.OutOrStdout(), out, s, func(w io.Writer) error {
			return printCostSummary(w, s)
		})
	})
}

func printCostSummary(w io.Writer, s *analyzer.CostSummary) error {
	fmt.Fprintf(w, "Cost report %s\n", s.DateRange.StartDate)
	fmt.Fprintf(w, "  total cost:      $%.6f\n", s.TotalCost)
	fmt.Fprintf(w, "  total tokens:    %d\n", s.TotalTokens)
	fmt.Fprintf(w, "  requests:        %d\n", s.TotalRequests)
	fmt.Fprintf(w, "  avg cost/req:    $%.6f\n", s.AverageCostPerRequest)
	fmt.Fprintf(w, "  avg tokens/req:  %.2f\n", s.AverageTokensPerRequest)
	if s.Truncated {
		fmt.Fprintln(w, "  (query limit reached, totals are partial)")
	}
	if s.TotalRequests == 0 {
		return nil
	}

	for _, section := range []struct {
		title string
		rows  map[string]analyzer.Breakdown
	}{
		{"AGENT", s.ByAgent},
		{"MODEL", s.ByModel},
		{"HOUR", s.ByHour},
	} {
		fmt.Fprintln(w)
		if err := printBreakdowns(w, section.title, section.rows); err != nil {
			return err
		}
	}

	if len(s.TopIncidents) > 0 {
		fmt.Fprintln(w)
		t := cli.NewTable(w, "INCIDENT", "COST", "TOKENS", "REQUESTS")
		for _, inc := range s.TopIncidents {
			t.Row(inc.IncidentID, inc.Cost, inc.Tokens, inc.Requests)
		}
		return t.Flush()
	}
	return nil
}

func printBreakdowns(w io.Writer, title string, rows map[string]analyzer.Breakdown) error {
	t := cli.NewTable(w, title, "COST", "TOKENS", "REQUESTS")
	for _, k := range slices.Sorted(maps.Keys(rows)) {
		b := rows[k]
		t.Row(k, b.Cost, b.Tokens, b.Requests)
	}
	return t.Flush()
}

func agentReport(cmd *cobra.Command, args []string) error {
	start, end, err := parseRange(reportFlags.start, reportFlags.end, 7)
	if err != nil {
		return cli.NewConfigError("start/end", err.Error())
	}
	out, err := outputFormat()
	if err != nil {
		return err
	}

	return withAnalyzer("report agent", func(ctx context.Context, a *analyzer.Analyzer) error {
		r, err := a.AgentBreakdown(ctx, start, end, reportFlags.agents...)
		if err != nil {
			return err
		}
		return cli.Print(cmd.OutOrStdout(), out, r, func(w io.Writer) error {
			fmt.Fprintf(w, "Agent report %s to %s\n", r.DateRange.StartDate, r.DateRange.EndDate)
			fmt.Fprintf(w, "  agents: %d  cost: $%.6f  tokens: %d  requests: %d\n\n",
				r.Summary.TotalAgents, r.Summary.TotalCost, r.Summary.TotalTokens, r.Summary.TotalRequests)
			if r.Truncated {
				fmt.Fprintln(w, "  (query limit reached, totals are partial)")
			}

			t := cli.NewTable(w, "AGENT", "COST", "TOKENS", "REQUESTS", "AVG COST", "INCIDENTS", "MODELS")
			for _, id := range slices.Sorted(maps.Keys(r.Agents)) {
				ac := r.Agents[id]
				t.Row(id, ac.TotalCost, ac.TotalTokens, ac.TotalRequests, ac.AverageCostPerRequest,
					ac.UniqueIncidents, strings.Join(ac.ModelsUsed, ","))
			}
			return t.Flush()
		})
	})
}

func incidentReport(cmd *cobra.Command, args []string) error {
	out, err := outputFormat()
	if err != nil {
		return err
	}

	return withAnalyzer("report incident", func(ctx context.Context, a *analyzer.Analyzer) error {
		r, err := a.IncidentAnalysis(ctx, args[0])
		if err != nil {
			return err
		}
		return cli.Print(cmd.OutOrStdout(), out, r, func(w io.Writer) error {
			s := r.Summary
			fmt.Fprintf(w, "Incident %s\n", r.IncidentID)
			fmt.Fprintf(w, "  window:       %s to %s (%.1f min)\n",
				s.StartTime.Format(time.RFC3339), s.EndTime.Format(time.RFC3339), s.DurationMinutes)
			fmt.Fprintf(w, "  total cost:   $%.6f\n", s.TotalCost)
			fmt.Fprintf(w, "  cost/minute:  $%.6f\n", s.CostPerMinute)
			fmt.Fprintf(w, "  tokens:       %d\n", s.TotalTokens)
			fmt.Fprintf(w, "  requests:     %d\n\n", s.TotalRequests)

			if err := printBreakdowns(w, "AGENT", r.ByAgent); err != nil {
				return err
			}
			fmt.Fprintln(w)
			if err := printBreakdowns(w, "MODEL", r.ByModel); err != nil {
				return err
			}
			fmt.Fprintln(w)

			t := cli.NewTable(w, "TIME", "AGENT", "MODEL", "COST", "TOKENS")
			for _, e := range r.Timeline {
				t.Row(e.Timestamp.Format(time.RFC3339), e.AgentID, e.ModelID, e.Cost, e.Tokens)
			}
			return t.Flush()
		})
	})
}

func summaryReport(cmd *cobra.Command, args []string) error {
	start, end, err := parseRange(reportFlags.start, reportFlags.end, 7)
	if err != nil {
		return cli.NewConfigError("start/end", err.Error())
	}
	out, err := outputFormat()
	if err != nil {
		return err
	}

	return withAnalyzer("report summary", func(ctx context.Context, a *analyzer.Analyzer) error {
		s, err := a.UsageSummary(ctx, start, end, reportFlags.groupBy)
		if err != nil {
			return err
		}
		return cli.Print(cmd.OutOrStdout(), out, s, func(w io.Writer) error {
			fmt.Fprintf(w, "Usage by %s, %s to %s\n", s.GroupBy, s.DateRange.StartDate, s.DateRange.EndDate)
			fmt.Fprintf(w, "  cost: $%.6f  tokens: %d  requests: %d\n\n", s.TotalCost, s.TotalTokens, s.TotalRequests)

			t := cli.NewTable(w, strings.ToUpper(s.GroupBy), "COST", "INPUT", "OUTPUT", "TOTAL", "REQUESTS")
			for _, k := range slices.Sorted(maps.Keys(s.Groups)) {
				g := s.Groups[k]
				t.Row(k, g.TotalCost, g.InputTokens, g.OutputTokens, g.TotalTokens, g.RequestCount)
			}
			return t.Flush()
		})
	})
}
