package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/tokenmeter/pkg/cli"
	"mercator-hq/tokenmeter/pkg/export"
	"mercator-hq/tokenmeter/pkg/factory"
	"mercator-hq/tokenmeter/pkg/store"
	"mercator-hq/tokenmeter/pkg/store/retention"
	"mercator-hq/tokenmeter/pkg/usage"
)

var storeFlags struct {
	wait      time.Duration
	schedule  string
	batchSize int
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the usage store",
	Long: `Manage the usage record store.

Subcommands:
  init             - Create the DynamoDB table (and alarms when alerts are enabled)
  purge            - Delete expired records now
  serve-retention  - Purge expired records on a cron schedule until interrupted
  import           - Load records from a CSV or JSON export

Examples:
  # Create the table and wait for it to become active
  tokenmeter store init --wait 2m

  # Purge every night at 03:00
  tokenmeter store serve-retention --schedule "0 3 * * *"

  # Re-import an export into a local SQLite store
  TOKENMETER_STORE_BACKEND=sqlite tokenmeter store import bedrock_usage_export_20250115_120000.csv`,
}

var storeInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the storage schema",
	RunE:  initStore,
}

var storePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired records",
	RunE:  purgeStore,
}

var storeServeRetentionCmd = &cobra.Command{
	Use:   "serve-retention",
	Short: "Purge expired records on a schedule",
	RunE:  serveRetention,
}

var storeImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import records from an export file",
	Args:  cobra.ExactArgs(1),
	RunE:  importRecords,
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeInitCmd, storePurgeCmd, storeServeRetentionCmd, storeImportCmd)

	storeInitCmd.Flags().DurationVar(&storeFlags.wait, "wait", time.Minute, "how long to wait for the table to become active")
	storeServeRetentionCmd.Flags().StringVar(&storeFlags.schedule, "schedule", "", "cron schedule (default: store.retention.schedule)")
	storeImportCmd.Flags().IntVar(&storeFlags.batchSize, "batch-size", 100, "records per write")
}

func initStore(cmd *cobra.Command, args []string) error {
	return withPipeline("store init", func(ctx context.Context, p *factory.Pipeline) error {
		if p.Store == nil {
			return factory.ErrStoreDisabled
		}
		out := cmd.OutOrStdout()

		if ds, ok := p.Store.(*store.DynamoStore); ok {
			if err := ds.CreateTable(ctx, storeFlags.wait); err != nil {
				return err
			}
			fmt.Fprintf(out, "Table %s is active\n", ds.Table())
		} else {
			// Other backends create their schema when opened.
			fmt.Fprintf(out, "Store %s is ready\n", p.Config.Store.Backend)
		}

		if !p.Config.Alerts.Enabled {
			return nil
		}
		arns, err := createCostAlarms(ctx, p, nil, "")
		for _, arn := range arns {
			fmt.Fprintf(out, "Created alarm %s\n", arn)
		}
		return err
	})
}

func purgeStore(cmd *cobra.Command, args []string) error {
	out, err := outputFormat()
	if err != nil {
		return err
	}

	return withPipeline("store purge", func(ctx context.Context, p *factory.Pipeline) error {
		purger, err := p.Purger()
		if err != nil {
			return err
		}
		result, err := purger.Purge(ctx)
		if err != nil {
			return err
		}
		return cli.Print(cmd.OutOrStdout(), out, result, func(w io.Writer) error {
			fmt.Fprintf(w, "Deleted %d expired records at %s\n", result.DeletedCount, result.PurgedAt.Format(time.RFC3339))
			return nil
		})
	})
}

func serveRetention(cmd *cobra.Command, args []string) error {
	return withPipeline("store serve-retention", func(ctx context.Context, p *factory.Pipeline) error {
		purger, err := p.Purger()
		if err != nil {
			return err
		}

		schedule := storeFlags.schedule
		if schedule == "" {
			schedule = p.Config.Store.Retention.Schedule
		}
		sched := retention.NewScheduler(purger, schedule)
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()

		if next := sched.NextRun(); next != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Retention scheduled (%s), next run %s\n", schedule, next.Format(time.RFC3339))
		}
		<-ctx.Done()
		return nil
	})
}

// readExport loads records from a CSV export, or a JSON export when the
// file name ends in .json.
func readExport(path string) ([]*usage.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), "."+export.FormatJSON) {
		var doc export.Document
		if err := json.NewDecoder(f).Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		return doc.Records, nil
	}
	return export.ParseCSV(f)
}

func importRecords(cmd *cobra.Command, args []string) error {
	if storeFlags.batchSize <= 0 {
		return cli.NewConfigError("batch-size", "must be positive")
	}
	records, err := readExport(args[0])
	if err != nil {
		return cli.NewCommandError("store import", err)
	}

	return withPipeline("store import", func(ctx context.Context, p *factory.Pipeline) error {
		if p.Store == nil {
			return factory.ErrStoreDisabled
		}

		progress := cli.NewProgress(cmd.ErrOrStderr(), "import", len(records))
		failed := 0
		for start := 0; start < len(records); start += storeFlags.batchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			batch := records[start:min(start+storeFlags.batchSize, len(records))]
			result, err := p.Store.BatchPut(ctx, batch)
			if err != nil {
				return err
			}
			progress.Add(result.Succeeded, result.Failed)
			failed += result.Failed
		}
		progress.Finish()

		if failed > 0 {
			return fmt.Errorf("%d of %d records were rejected", failed, len(records))
		}
		return nil
	})
}
