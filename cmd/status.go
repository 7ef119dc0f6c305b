package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/promptwatch/internal/session"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running monitor's status",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.NewSnapshotStore()
		if err != nil {
			return err
		}

		snap, err := loadLiveSnapshot(store)
		if err != nil {
			if errors.Is(err, session.ErrNoSnapshot) {
				fmt.Fprintln(cmd.OutOrStdout(), "no running monitor")
				return nil
			}
			return err
		}

		if statusJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		printSnapshot(cmd.OutOrStdout(), snap)
		return nil
	},
}

// printSnapshot writes a plain-text rendering of snap to w.
func printSnapshot(w io.Writer, snap *session.Snapshot) {
	fmt.Fprintf(w, "PID: %d (updated %s)\n", snap.PID, snap.UpdatedAt.Format(time.RFC3339))
	if len(snap.Monitors) == 0 {
		fmt.Fprintln(w, "No monitors.")
		return
	}
	for _, m := range snap.Monitors {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Monitor: %s (%s)\n", m.ID, m.Status)
		fmt.Fprintf(w, "Uptime: %s\n", m.Uptime.Round(time.Second))
		fmt.Fprintf(w, "Active sessions: %d\n", m.ActiveSessions)
		fmt.Fprintf(w, "Sessions seen: %d\n", m.SessionsSeen)
		fmt.Fprintf(w, "Conversations stored: %d\n", m.ConversationsStored)
		fmt.Fprintf(w, "Errors: %d\n", m.ErrorCount)
		if m.Error != "" {
			fmt.Fprintf(w, "Last error: %s\n", m.Error)
		}
	}
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw status snapshot as JSON")
	rootCmd.AddCommand(statusCmd)
}
