package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"mercator-hq/tokenmeter/pkg/cli"
	"mercator-hq/tokenmeter/pkg/factory"
	"mercator-hq/tokenmeter/pkg/recorder"
)

// anthropicVersion is the Messages API version Bedrock expects in the body.
const anthropicVersion = "bedrock-2023-05-31"

var invokeFlags struct {
	model        string
	agent        string
	incident     string
	prompt       string
	bodyFile     string
	maxTokens    int
	showResponse bool
}

var invokeCmd = &cobra.Command{
	Use:   "invoke",
	Short: "Make one metered model call",
	Long: `Invoke a Bedrock model through the metering pipeline.

The call's token counts are read from the response, priced, published as
metrics and stored as a usage record, exactly as for an instrumented agent.

Examples:
  # Ask the default model a question
  tokenmeter invoke --agent triage --prompt "Summarise the last alert"

  # Attribute the call to an incident
  tokenmeter invoke --agent triage --incident INC-42 --prompt "What changed?"

  # Send a prepared request body
  tokenmeter invoke --model anthropic.claude-3-haiku-20240307-v1:0 --body-file request.json`,
	RunE: runInvoke,
}

func init() {
	rootCmd.AddCommand(invokeCmd)

	invokeCmd.Flags().StringVar(&invokeFlags.model, "model", "", "model id (default: recorder.default_model)")
	invokeCmd.Flags().StringVar(&invokeFlags.agent, "agent", "", "agent id (default: recorder.default_agent_id)")
	invokeCmd.Flags().StringVar(&invokeFlags.incident, "incident", "", "incident id")
	invokeCmd.Flags().StringVarP(&invokeFlags.prompt, "prompt", "p", "", "user message")
	invokeCmd.Flags().StringVar(&invokeFlags.bodyFile, "body-file", "", "file holding the raw request body")
	invokeCmd.Flags().IntVar(&invokeFlags.maxTokens, "max-tokens", 512, "max_tokens of the generated body")
	invokeCmd.Flags().BoolVar(&invokeFlags.showResponse, "show-response", false, "print the model response body")
	invokeCmd.MarkFlagsMutuallyExclusive("prompt", "body-file")
}

func invokeBody() (any, error) {
	if invokeFlags.bodyFile != "" {
		data, err := os.ReadFile(invokeFlags.bodyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read body file: %w", err)
		}
		return data, nil
	}
	if invokeFlags.prompt == "" {
		return nil, cli.NewConfigError("prompt", "one of --prompt or --body-file is required")
	}
	return map[string]any{
		"anthropic_version": anthropicVersion,
		"max_tokens":        invokeFlags.maxTokens,
		"messages": []map[string]any{
			{"role": "user", "content": invokeFlags.prompt},
		},
	}, nil
}

func runInvoke(cmd *cobra.Command, args []string) error {
	body, err := invokeBody()
	if err != nil {
		return err
	}
	out, err := outputFormat()
	if err != nil {
		return err
	}

	return withPipeline("invoke", func(ctx context.Context, p *factory.Pipeline) error {
		agentID := invokeFlags.agent
		if agentID == "" {
			agentID = p.Config.Recorder.DefaultAgentID
		}

		resp, rec, err := p.Agent(agentID).Invoke(ctx, &recorder.Call{
			ModelID:    invokeFlags.model,
			Body:       body,
			IncidentID: invokeFlags.incident,
		})
		if err != nil {
			return err
		}

		return cli.Print(cmd.OutOrStdout(), out, rec, func(w io.Writer) error {
			t := cli.NewTable(w)
			t.Row("Agent:", rec.AgentID)
			t.Row("Model:", rec.ModelID)
			if rec.IncidentID != "" {
				t.Row("Incident:", rec.IncidentID)
			}
			t.Row("Tokens:", fmt.Sprintf("%d in / %d out (%d total)", rec.InputTokens, rec.OutputTokens, rec.TotalTokens))
			t.Row("Estimated cost:", fmt.Sprintf("$%.6f", rec.EstimatedCost))
			if err := t.Flush(); err != nil {
				return err
			}
			if invokeFlags.showResponse {
				fmt.Fprintf(w, "\n%s\n", resp.Body)
			}
			return nil
		})
	})
}
