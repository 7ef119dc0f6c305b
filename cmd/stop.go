package cmd

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/promptwatch/internal/session"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running monitor",
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

		if err := signalProcess(snap.PID, syscall.SIGTERM); err != nil {
			return fmt.Errorf("signalling monitor (pid %d): %w", snap.PID, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stop requested for monitor process %d.\n", snap.PID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
