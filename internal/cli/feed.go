package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/feedsync/internal/feed"
)

// NewFeedCommand creates the feed command group.
func NewFeedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Inspect stored feed snapshots",
	}
	cmd.AddCommand(newFeedShowCommand(rootOpts))
	cmd.AddCommand(newFeedSaveCommand(rootOpts))
	cmd.AddCommand(newFeedClearCommand(rootOpts))
	return cmd
}

func newFeedShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <user> [tab]",
		Short: "Show a stored feed tab, or list a user's tabs",
		Example: `  feedsync feed show u9
  feedsync feed show u9 following --format json`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := commandContext(cmd)
			f := newFormatter(cmd, rootOpts)
			if len(args) == 1 {
				tabs, err := s.engine.Feeds().Tabs(ctx, args[0])
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list feeds", err)
				}
				return f.Render(tabs, func(w io.Writer) {
					if len(tabs) == 0 {
						fmt.Fprintln(w, "No stored feeds.")
					}
					for _, tab := range tabs {
						fmt.Fprintln(w, tab)
					}
				})
			}

			pages, err := s.engine.Feeds().Load(ctx, args[0], args[1])
			if err != nil {
				return WrapExitError(ExitFailure, "failed to load feed", err)
			}
			return f.Render(pages, func(w io.Writer) {
				fmt.Fprintf(w, "%d page(s)\n", len(pages))
				for i, page := range pages {
					fmt.Fprintf(w, "  page %d: %d item(s)\n", i+1, len(page))
				}
			})
		},
	}
}

func newFeedSaveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "save <user> <tab> <pages.json>",
		Short: "Replace a feed tab with pages read from a file",
		Long: `Replace the stored snapshot of a feed tab. The file holds a JSON array of
pages, each an array of items; "-" reads standard input.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[2] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[2])
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read pages", err)
			}
			var pages []feed.Page
			if err := json.Unmarshal(data, &pages); err != nil {
				return WrapExitError(ExitCommandError, "pages must be a JSON array of arrays", err)
			}

			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.engine.Feeds().Save(commandContext(cmd), args[0], args[1], pages); err != nil {
				return WrapExitError(ExitFailure, "failed to save feed", err)
			}
			return newFormatter(cmd, rootOpts).Render(map[string]any{"pages": len(pages)}, func(w io.Writer) {
				fmt.Fprintf(w, "Saved %d page(s)\n", len(pages))
			})
		},
	}
}

func newFeedClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear <user> <tab>",
		Short:         "Remove a stored feed tab",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.engine.Feeds().Clear(commandContext(cmd), args[0], args[1]); err != nil {
				return WrapExitError(ExitFailure, "failed to clear feed", err)
			}
			return newFormatter(cmd, rootOpts).Render(map[string]any{"cleared": args[1]}, func(w io.Writer) {
				fmt.Fprintf(w, "Cleared %s/%s\n", args[0], args[1])
			})
		},
	}
}
