package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/promptwatch/internal/detect"
	"github.com/fakeyudi/promptwatch/internal/device"
)

var sessionsAll bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List terminal sessions on the host",
	RunE: func(cmd *cobra.Command, args []string) error {
		bridge, err := newBridge(cfg, logger)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		procs, err := detect.New(bridge, logger).ListSessions(ctx, !sessionsAll)
		if err != nil {
			return err
		}
		if len(procs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No terminal sessions found.")
			return nil
		}

		ident := device.NewIdentifier(bridge, logger)
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PID\tUSER\tTTY\tTERM\tDEVICES\tCOMMAND")
		for _, p := range procs {
			devs, term := "-", "-"
			if p.DevicePath() != "" {
				var paths []string
				for _, d := range ident.DevicesFor(ctx, p.PID) {
					paths = append(paths, d.Path)
				}
				if len(paths) > 0 {
					devs = strings.Join(paths, ",")
				}
				term = ident.TerminalType(ctx, p.PID)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", p.PID, p.User, p.TTY, term, devs, p.Command)
		}
		return tw.Flush()
	},
}

func init() {
	sessionsCmd.Flags().BoolVar(&sessionsAll, "all", false, "include non-interactive processes that hold a terminal")
	rootCmd.AddCommand(sessionsCmd)
}
