package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newScrapeCmd creates the 'scrape' subcommand, which runs one indexing pass.
func newScrapeCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Runs one scrape and publishes the records to the index",
		Long: `Fetches the configured listing page, scrapes every program page with
bounded concurrency, and replaces the index contents with the results. The run
summary is printed as JSON.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			records, summary, err := appInstance.RunWithSummary(cmd.Context())
			if err != nil {
				return fmt.Errorf("scrape: %w", err)
			}
			if output != "" {
				if err := writeJSONFile(output, records); err != nil {
					return err
				}
				appInstance.Logger().Info("wrote aggregate", zap.String("path", output), zap.Int("records", len(records)))
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return fmt.Errorf("print summary: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "also write the aggregated records as JSON to this file")
	return cmd
}

func writeJSONFile(path string, v any) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(body, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
