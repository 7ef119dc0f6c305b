package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/promptwatch/internal/export"
	"github.com/fakeyudi/promptwatch/internal/record"
	"github.com/fakeyudi/promptwatch/internal/session"
	"github.com/fakeyudi/promptwatch/internal/tui"
)

// viewPromptLimit caps the prompts loaded on each refresh.
const viewPromptLimit = 50

var plainOutput bool

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Dashboard of the running monitor and recent prompts",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.NewSnapshotStore()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		repo, err := openRepository(ctx, cfg)
		if err != nil {
			return fmt.Errorf("opening prompt store: %w", err)
		}
		defer repo.Close()

		source := dashboardSource(store, repo)
		if plainOutput || !term.IsTerminal(os.Stdout.Fd()) {
			data, err := source.Load(ctx)
			if err != nil {
				return err
			}
			return printDashboard(cmd.OutOrStdout(), data)
		}
		return tui.Run(source, tui.DefaultRefresh)
	},
}

// dashboardSource reads the live snapshot and the newest prompts.
func dashboardSource(store session.SnapshotStore, repo record.Repository) tui.Source {
	return tui.SourceFunc(func(ctx context.Context) (tui.Data, error) {
		var data tui.Data
		snap, err := loadLiveSnapshot(store)
		switch {
		case err == nil:
			data.Snapshot = snap
		case !errors.Is(err, session.ErrNoSnapshot):
			return data, err
		}
		data.Prompts, err = repo.List(ctx, record.ListOptions{Limit: viewPromptLimit})
		if err != nil {
			return data, fmt.Errorf("listing prompts: %w", err)
		}
		return data, nil
	})
}

// printDashboard writes the dashboard contents as plain text.
func printDashboard(w io.Writer, data tui.Data) error {
	fmt.Fprintln(w, "## Monitors")
	if data.Snapshot == nil {
		fmt.Fprintln(w, "no running monitor")
	} else {
		printSnapshot(w, data.Snapshot)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Recent Prompts")
	out, err := (&export.TextRenderer{}).Render(export.New(data.Prompts, export.Filter{Limit: viewPromptLimit}, time.Now()))
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func init() {
	viewCmd.Flags().BoolVar(&plainOutput, "plain", false, "plain text output instead of TUI")
	rootCmd.AddCommand(viewCmd)
}
