package main

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"
	"mercator-hq/tokenmeter/pkg/cli"
	"mercator-hq/tokenmeter/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
	Long: `Inspect the effective configuration.

Subcommands:
  validate  - Load and validate the configuration
  env       - Print the environment variables that reproduce it

Examples:
  # Validate a configuration file
  tokenmeter config validate --config /etc/tokenmeter/config.yaml

  # Export the effective configuration as environment variables
  tokenmeter config env > tokenmeter.env`,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	RunE:  validateConfig,
}

var configEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "Print the configuration as environment variables",
	RunE:  printConfigEnv,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd, configEnvCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out, err := outputFormat()
	if err != nil {
		return err
	}

	summary := map[string]any{
		"valid":            true,
		"region":           cfg.AWS.Region,
		"cost_model":       cfg.Pricing.CostModel,
		"store":            cfg.Store.Backend,
		"store_enabled":    cfg.Store.Enabled,
		"metrics_backends": cfg.Metrics.Backends,
		"metrics_enabled":  cfg.Metrics.Enabled,
	}
	return cli.Print(cmd.OutOrStdout(), out, summary, func(w io.Writer) error {
		fmt.Fprintf(w, "Configuration is valid (%s)\n", cfgFile)
		fmt.Fprintf(w, "  region:     %s\n", cfg.AWS.Region)
		fmt.Fprintf(w, "  cost model: %s\n", cfg.Pricing.CostModel)
		if cfg.Store.Enabled {
			fmt.Fprintf(w, "  store:      %s\n", cfg.Store.Backend)
		} else {
			fmt.Fprintln(w, "  store:      disabled")
		}
		if cfg.Metrics.Enabled {
			fmt.Fprintf(w, "  metrics:    %v\n", cfg.Metrics.Backends)
		} else {
			fmt.Fprintln(w, "  metrics:    disabled")
		}
		return nil
	})
}

func printConfigEnv(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out, err := outputFormat()
	if err != nil {
		return err
	}

	vars := config.EnvVars(cfg)
	return cli.Print(cmd.OutOrStdout(), out, vars, func(w io.Writer) error {
		for _, k := range slices.Sorted(maps.Keys(vars)) {
			fmt.Fprintf(w, "%s=%s\n", k, vars[k])
		}
		return nil
	})
}
