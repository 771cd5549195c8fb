package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/tokenmeter/pkg/analyzer"
	"mercator-hq/tokenmeter/pkg/cli"
	"mercator-hq/tokenmeter/pkg/config"
	"mercator-hq/tokenmeter/pkg/factory"
	"mercator-hq/tokenmeter/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile string
	verbose bool
	format  string
)

var rootCmd = &cobra.Command{
	Use:   "tokenmeter",
	Short: "tokenmeter - token usage and cost analytics for Bedrock agents",
	Long: `tokenmeter records the token usage of every model call an agent makes on
Amazon Bedrock, prices it, and publishes it as metrics and usage records.

The recorded usage can then be reported on:
  - Daily cost reports, per-agent and per-incident breakdowns
  - Cost trends and a linear forecast
  - Threshold checks against daily and hourly cost limits
  - CSV and JSON export

Configuration is read from a YAML file (--config) and TOKENMETER_*
environment variables. A .env file in the working directory is loaded first.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, cli.ErrAlert) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return cli.ExitCode(err)
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "text", "result format: text, json")
}

// loadConfig reads the configuration once and installs the logger it
// describes. A missing config file yields the defaults.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, cli.WrapConfigError(err)
	}
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.WrapConfigError(err)
	}
	cfg := config.GetConfig()
	if cfg == nil {
		return nil, cli.NewConfigError("", "configuration was not initialised")
	}

	logCfg := logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
		Writer:    os.Stderr,
	}
	if verbose {
		logCfg.Level = "debug"
	}
	if _, err := logging.Setup(logCfg); err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	return cfg, nil
}

// outputFormat parses the --format flag.
func outputFormat() (cli.OutputFormat, error) {
	f, err := cli.ParseFormat(format)
	if err != nil {
		return "", cli.NewConfigError("format", err.Error())
	}
	return f, nil
}

// withPipeline builds the pipeline, runs fn with a context cancelled on
// SIGINT/SIGTERM, and drains the pipeline afterwards.
func withPipeline(name string, fn func(ctx context.Context, p *factory.Pipeline) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := cli.SetupSignalHandler()
	defer cancel()

	p, err := factory.Build(ctx, cfg)
	if err != nil {
		return cli.NewCommandError(name, err)
	}

	runErr := fn(ctx, p)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.Dispatcher.ShutdownGrace+time.Second)
	defer closeCancel()
	if err := p.Close(closeCtx); err != nil {
		slog.Warn("pipeline did not close cleanly", "error", err)
	}

	if runErr != nil && !errors.Is(runErr, cli.ErrAlert) {
		return cli.NewCommandError(name, runErr)
	}
	return runErr
}

// withAnalyzer is withPipeline for commands that only read usage records.
func withAnalyzer(name string, fn func(ctx context.Context, a *analyzer.Analyzer) error) error {
	return withPipeline(name, func(ctx context.Context, p *factory.Pipeline) error {
		a, err := p.Analyzer()
		if err != nil {
			return err
		}
		return fn(ctx, a)
	})
}

// parseDate accepts YYYY-MM-DD or RFC3339. An empty value yields def.
func parseDate(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD or RFC3339)", s)
	}
	return t.UTC(), nil
}

// parseRange parses --start/--end. The end defaults to now and the start
// to days before the end. A date-only end covers that whole day.
func parseRange(start, end string, days int) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	to, err := parseDate(end, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end != "" && len(end) == len(time.DateOnly) {
		to = to.Add(24*time.Hour - time.Nanosecond)
	}
	from, err := parseDate(start, to.AddDate(0, 0, -days))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("end %s is before start %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	return from, to, nil
}
