// Command freightctl writes the bundled rate workbooks and answers quotes
// against a local file without starting the server.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/freight/internal/core"
	"github.com/JonMunkholm/freight/internal/core/rates"
	"github.com/JonMunkholm/freight/internal/logging"
	"github.com/JonMunkholm/freight/internal/sheet"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "freightctl",
		Short:         "Freight rate workbook tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			logging.SetupWriter(cmd.ErrOrStderr(), logLevel, "text")
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug|info|warn|error")

	rootCmd.AddCommand(
		newSampleCmd(),
		newTemplateCmd(),
		newQuoteCmd(),
	)
	return rootCmd
}

func newSampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sample [path]",
		Short: "Write the default rate workbook",
		Long: `Write the wide-layout workbook the server loads when no upload is cached.

Example: freightctl sample public/freight_data.xlsx`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "public/freight_data.xlsx"
			if len(args) == 1 {
				path = args[0]
			}
			return writeWorkbook(cmd.OutOrStdout(), path, "", sheet.SampleRows())
		},
	}
}

func newTemplateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "template [path]",
		Short: "Write the interval-layout upload template",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "freight_template.xlsx"
			if len(args) == 1 {
				path = args[0]
			}
			return writeWorkbook(cmd.OutOrStdout(), path, sheet.TemplateSheet, sheet.TemplateRows())
		},
	}
}

func newQuoteCmd() *cobra.Command {
	var file string
	var q rates.Query

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Look up a price in a rate workbook",
		Long: `Load a rate workbook or CSV and print the price for one route and weight.

Example: freightctl quote --file public/freight_data.xlsx --origin 北京 --destination 上海 --weight 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuote(cmd.OutOrStdout(), file, q)
		},
	}

	cmd.Flags().StringVar(&file, "file", "public/freight_data.xlsx", "Rate workbook (.xlsx) or .csv file")
	cmd.Flags().StringVar(&q.Origin, "origin", "", "Origin")
	cmd.Flags().StringVar(&q.Destination, "destination", "", "Destination")
	cmd.Flags().Float64Var(&q.Weight, "weight", 0, "Weight in kg")
	_ = cmd.MarkFlagRequired("origin")
	_ = cmd.MarkFlagRequired("destination")
	_ = cmd.MarkFlagRequired("weight")

	return cmd
}

func writeWorkbook(out io.Writer, path, sheetName string, rows []rates.RawRow) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := sheet.WriteRows(f, sheetName, rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	slog.Info("workbook written", "path", path, "rows", len(rows))
	fmt.Fprintf(out, "wrote %d rows to %s\n", len(rows), path)
	return nil
}

func runQuote(out io.Writer, path string, q rates.Query) error {
	if err := core.ValidateQuery(q); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := sheet.Decode(f, path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	set, issues, err := rates.NormalizeWithIssues(rows)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, issue := range issues {
		slog.Debug("cell skipped", "row", issue.Row, "column", issue.Column, "value", issue.Value)
	}
	slog.Info("rate data loaded", "file", path, "shape", set.Shape, "rules", set.Len(), "skipped", len(issues))

	price, err := rates.Resolve(&set, q)
	if err != nil {
		return fmt.Errorf("%s (%s → %s, %gkg)", core.FormatUserError(err), q.Origin, q.Destination, q.Weight)
	}

	fmt.Fprintf(out, "%.2f\n", price)
	return nil
}
