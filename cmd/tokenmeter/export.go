package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/tokenmeter/pkg/analyzer"
	"mercator-hq/tokenmeter/pkg/cli"
	"mercator-hq/tokenmeter/pkg/export"
	"mercator-hq/tokenmeter/pkg/usage"
)

var exportFlags struct {
	start      string
	end        string
	exportType string
	file       string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export usage records to CSV or JSON",
	Long: `Export the usage records of a date range.

Without --file the records are written to
bedrock_usage_export_YYYYMMDD_HHMMSS.<type> in the working directory.
Use --file - to write to stdout. Ranges longer than a day are streamed
one day at a time.

Examples:
  # Last 7 days as CSV
  tokenmeter export

  # January as JSON to stdout
  tokenmeter export --start 2025-01-01 --end 2025-01-31 --type json --file -`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportFlags.start, "start", "", "range start (default: 7 days before end)")
	exportCmd.Flags().StringVar(&exportFlags.end, "end", "", "range end (default: now)")
	exportCmd.Flags().StringVarP(&exportFlags.exportType, "type", "t", export.FormatCSV, "export format: csv, json")
	exportCmd.Flags().StringVar(&exportFlags.file, "file", "", "output file, - for stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	start, end, err := parseRange(exportFlags.start, exportFlags.end, 7)
	if err != nil {
		return cli.NewConfigError("start/end", err.Error())
	}
	if _, err := export.New(exportFlags.exportType, true); err != nil {
		return cli.NewConfigError("type", err.Error())
	}

	return withAnalyzer("export", func(ctx context.Context, a *analyzer.Analyzer) error {
		if exportFlags.file == "-" {
			_, err := exportRecords(ctx, a, start, end, cmd.OutOrStdout())
			return err
		}

		path := exportFlags.file
		if path == "" {
			path = export.DefaultFilename(exportFlags.exportType, time.Now())
		}
		n, err := exportToFile(ctx, a, start, end, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d records to %s\n", n, path)
		return nil
	})
}

func exportToFile(ctx context.Context, a *analyzer.Analyzer, start, end time.Time, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create export file: %w", err)
	}

	n, err := exportRecords(ctx, a, start, end, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	return n, nil
}

// exportRecords streams multi-day ranges and exports single days in one
// query.
func exportRecords(ctx context.Context, a *analyzer.Analyzer, start, end time.Time, w io.Writer) (int, error) {
	if usage.PartitionKey(start) == usage.PartitionKey(end) {
		return a.Export(ctx, start, end, exportFlags.exportType, w)
	}
	return a.ExportStream(ctx, start, end, exportFlags.exportType, w)
}
