package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/promptwatch/internal/export"
	"github.com/fakeyudi/promptwatch/internal/record"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import prompts from a JSON or Markdown export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("file not found: %s", path)
			}
			return err
		}
		doc, err := export.Parse(data)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		repo, err := openRepository(ctx, cfg)
		if err != nil {
			return fmt.Errorf("opening prompt store: %w", err)
		}
		defer repo.Close()

		imported, skipped, err := importRecords(ctx, repo, doc.Records)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d prompt(s), skipped %d already present.\n", imported, skipped)
		return nil
	},
}

// importRecords adds every record whose ID repo does not already hold.
func importRecords(ctx context.Context, repo record.Repository, records []*record.PromptRecord) (imported, skipped int, err error) {
	for _, r := range records {
		if r == nil {
			continue
		}
		if r.ID != "" {
			_, err := repo.Get(ctx, r.ID)
			if err == nil {
				skipped++
				continue
			}
			if !errors.Is(err, record.ErrNotFound) {
				return imported, skipped, fmt.Errorf("looking up %s: %w", r.ID, err)
			}
		}
		if _, err := repo.Add(ctx, r); err != nil {
			return imported, skipped, fmt.Errorf("adding prompt: %w", err)
		}
		imported++
	}
	return imported, skipped, nil
}

func init() {
	rootCmd.AddCommand(importCmd)
}
