package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"mercator-hq/tokenmeter/pkg/cli"
	"mercator-hq/tokenmeter/pkg/config"
	"mercator-hq/tokenmeter/pkg/factory"
	"mercator-hq/tokenmeter/pkg/pricing"
)

var pricingFlags struct {
	model        string
	inputTokens  int64
	outputTokens int64
}

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Show model prices and estimate costs",
	Long: `Show the price table used to estimate invocation costs.

The table holds the built-in Bedrock models, the configured cost model
preset as the default entry, custom prices from the config file and,
when configured, a YAML or TOML pricing file.

Examples:
  # List all priced models
  tokenmeter pricing list

  # Estimate a call
  tokenmeter pricing cost --model anthropic.claude-3-haiku-20240307-v1:0 --input-tokens 1200 --output-tokens 300`,
}

var pricingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List model prices",
	RunE:  listPrices,
}

var pricingCostCmd = &cobra.Command{
	Use:   "cost",
	Short: "Estimate the cost of an invocation",
	RunE:  estimateCost,
}

func init() {
	rootCmd.AddCommand(pricingCmd)
	pricingCmd.AddCommand(pricingListCmd, pricingCostCmd)

	pricingCostCmd.Flags().StringVar(&pricingFlags.model, "model", "", "model id (default: the recorder's default model)")
	pricingCostCmd.Flags().Int64Var(&pricingFlags.inputTokens, "input-tokens", 0, "input token count")
	pricingCostCmd.Flags().Int64Var(&pricingFlags.outputTokens, "output-tokens", 0, "output token count")
}

func loadPrices() (*pricing.Table, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	table, _, err := factory.NewPricingTable(&cfg.Pricing)
	if err != nil {
		return nil, cli.NewConfigError("pricing", err.Error())
	}
	return table, nil
}

func listPrices(cmd *cobra.Command, args []string) error {
	table, err := loadPrices()
	if err != nil {
		return err
	}
	out, err := outputFormat()
	if err != nil {
		return err
	}

	result := struct {
		Default pricing.Price        `json:"default"`
		Models  []pricing.ModelPrice `json:"models"`
	}{Default: table.Default(), Models: table.Models()}

	return cli.Print(cmd.OutOrStdout(), out, result, func(w io.Writer) error {
		t := cli.NewTable(w, "MODEL", "INPUT/1M", "OUTPUT/1M", "DESCRIPTION")
		for _, m := range result.Models {
			t.Row(m.ModelID, m.InputPerMillion, m.OutputPerMillion, m.Description)
		}
		t.Row("(default)", result.Default.InputPerMillion, result.Default.OutputPerMillion, result.Default.Description)
		return t.Flush()
	})
}

func estimateCost(cmd *cobra.Command, args []string) error {
	if pricingFlags.inputTokens < 0 || pricingFlags.outputTokens < 0 {
		return cli.NewConfigError("tokens", "token counts must be non-negative")
	}
	table, err := loadPrices()
	if err != nil {
		return err
	}
	out, err := outputFormat()
	if err != nil {
		return err
	}

	model := pricingFlags.model
	if model == "" {
		model = config.GetConfig().Recorder.DefaultModel
	}
	price, known := table.Lookup(model)

	result := map[string]any{
		"model_id":       model,
		"input_tokens":   pricingFlags.inputTokens,
		"output_tokens":  pricingFlags.outputTokens,
		"estimated_cost": table.Cost(model, pricingFlags.inputTokens, pricingFlags.outputTokens),
		"default_price":  !known,
	}
	return cli.Print(cmd.OutOrStdout(), out, result, func(w io.Writer) error {
		fmt.Fprintf(w, "Model:          %s\n", model)
		if !known {
			fmt.Fprintln(w, "                (not in the price table, default price applied)")
		}
		fmt.Fprintf(w, "Price:          $%.2f in / $%.2f out per 1M tokens\n", price.InputPerMillion, price.OutputPerMillion)
		fmt.Fprintf(w, "Tokens:         %d in / %d out\n", pricingFlags.inputTokens, pricingFlags.outputTokens)
		fmt.Fprintf(w, "Estimated cost: $%.6f\n", result["estimated_cost"])
		return nil
	})
}
