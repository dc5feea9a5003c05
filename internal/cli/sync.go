package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/feedsync/internal/queue"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay the mutation queue once",
		Long: `Replay every queued action against the server. Accepted actions are
removed; rejected ones stay queued for the next sync.

Exit codes:
  0 - Queue drained (or nothing to do)
  1 - One or more actions failed and remain queued
  2 - Command error`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			report := s.engine.Queue().Retry(commandContext(cmd))
			if err := newFormatter(cmd, rootOpts).Render(report, func(w io.Writer) {
				printReport(w, report, s.engine.Monitor().Online())
			}); err != nil {
				return err
			}
			if report.Failed > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d action(s) failed", report.Failed))
			}
			return nil
		},
	}
}

func printReport(w io.Writer, r queue.Report, online bool) {
	switch {
	case r.Skipped && !online:
		fmt.Fprintf(w, "Offline; %d action(s) pending\n", r.Remaining)
	case r.Skipped:
		fmt.Fprintln(w, "Nothing to sync.")
	default:
		fmt.Fprintf(w, "Synced %d of %d action(s); %d failed, %d remaining\n",
			r.Succeeded, r.Attempted, r.Failed, r.Remaining)
		for _, id := range r.FailedIDs {
			fmt.Fprintf(w, "  ✗ %s\n", id)
		}
	}
}
