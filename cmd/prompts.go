package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/promptwatch/internal/export"
	"github.com/fakeyudi/promptwatch/internal/record"
)

var (
	promptsSession string
	promptsProject string
	promptsLimit   int
	promptsFormat  string
	promptsOutput  string
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List captured prompts",
	RunE: func(cmd *cobra.Command, args []string) error {
		renderer, err := export.RendererFor(promptsFormat)
		if err != nil {
			return err
		}
		if promptsLimit < 0 {
			return fmt.Errorf("--limit must not be negative")
		}

		ctx := cmd.Context()
		repo, err := openRepository(ctx, cfg)
		if err != nil {
			return fmt.Errorf("opening prompt store: %w", err)
		}
		defer repo.Close()

		records, err := repo.List(ctx, record.ListOptions{
			Limit:       promptsLimit,
			ProjectName: promptsProject,
			SessionID:   promptsSession,
		})
		if err != nil {
			return fmt.Errorf("listing prompts: %w", err)
		}

		doc := export.New(records, export.Filter{
			SessionID:   promptsSession,
			ProjectName: promptsProject,
			Limit:       promptsLimit,
		}, time.Now())
		data, err := renderer.Render(doc)
		if err != nil {
			return fmt.Errorf("render prompts: %w", err)
		}

		if promptsOutput == "" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(promptsOutput, data, 0o644); err != nil {
			return fmt.Errorf("write output file: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d prompt(s) to %s\n", len(records), promptsOutput)
		return nil
	},
}

func init() {
	promptsCmd.Flags().StringVar(&promptsSession, "session", "", "only prompts from this terminal session id")
	promptsCmd.Flags().StringVar(&promptsProject, "project", "", "only prompts for this project name")
	promptsCmd.Flags().IntVar(&promptsLimit, "limit", 20, "maximum number of prompts (0 for all)")
	promptsCmd.Flags().StringVar(&promptsFormat, "format", "text", "output format: text, json or markdown")
	promptsCmd.Flags().StringVarP(&promptsOutput, "output", "o", "", "write to this file instead of stdout")
	rootCmd.AddCommand(promptsCmd)
}
