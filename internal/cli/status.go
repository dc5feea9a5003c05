package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/feedsync/internal/cache"
	"github.com/roach88/feedsync/internal/engine"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity, queue depth and cache usage",
		Long: `Probe connectivity once (when a probe URL is configured) and report the
number of queued actions and the entry count of every cache partition.

Example:
  feedsync status
  feedsync status --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			status, err := s.engine.Status(commandContext(cmd))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read cache", err)
			}
			return newFormatter(cmd, rootOpts).Render(status, func(w io.Writer) {
				printStatus(w, s.cfg.Profile, status)
			})
		},
	}
}

func printStatus(w io.Writer, profile string, st engine.Status) {
	state := "offline"
	if st.Online {
		state = "online"
	}
	fmt.Fprintf(w, "Profile: %s\n", profile)
	fmt.Fprintf(w, "Connectivity: %s\n", state)
	fmt.Fprintf(w, "Pending actions: %d\n", st.Pending)
	fmt.Fprintln(w, "Cache:")
	for _, p := range cache.Partitions {
		fmt.Fprintf(w, "  %-8s %d\n", p, st.Partitions[p])
	}
}
