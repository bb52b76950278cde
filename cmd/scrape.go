package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newScrapeCmd() *cobra.Command {
	var maxPosts int

	cmd := &cobra.Command{
		Use:   "scrape <platform> <profile>",
		Short: "Runs one scrape of a profile and prints the result",
		Long: `Performs a single end-to-end scrape of the given profile:
discovers post links, extracts and parses comments, and merges the
posts into the stored aggregate. The run result is printed as JSON.`,
		Args: cobra.ExactArgs(2),

		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			result, err := appInstance.Worker.ScrapeProfile(cmd.Context(), args[0], args[1], maxPosts)
			if err != nil {
				return fmt.Errorf("scrape %s/%s: %w", args[0], args[1], err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			if !result.Success {
				return fmt.Errorf("scrape failed: %s", result.Reason)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxPosts, "max-posts", 0, "maximum posts to scrape (0 uses the configured default)")
	return cmd
}
