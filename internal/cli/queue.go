package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/feedsync/internal/action"
)

// QueueAddOptions holds flags for queue add.
type QueueAddOptions struct {
	*RootOptions
	User string
}

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or edit the mutation queue",
	}
	cmd.AddCommand(newQueueListCommand(rootOpts))
	cmd.AddCommand(newQueueAddCommand(rootOpts))
	cmd.AddCommand(newQueueClearCommand(rootOpts))
	return cmd
}

func newQueueListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List queued actions in creation order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			pending := s.engine.Queue().Pending()
			return newFormatter(cmd, rootOpts).Render(pending, func(w io.Writer) {
				printQueue(w, pending)
			})
		},
	}
}

func printQueue(w io.Writer, pending []action.Queued) {
	if len(pending) == 0 {
		fmt.Fprintln(w, "Queue is empty.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tUSER\tCREATED\tPAYLOAD")
	for _, rec := range pending {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			rec.ID, rec.Kind, rec.UserID, rec.CreatedAt().UTC().Format(time.RFC3339), rec.Payload)
	}
	tw.Flush()
}

func newQueueAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueueAddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <kind> <payload-json>",
		Short: "Queue an action",
		Long: `Queue an action as if it had been made offline. When the engine is
online the queue is drained right away.

Kinds: like, bookmark, follow, reclip, post, comment, view

Examples:
  feedsync queue add like '{"postId":"p1","value":true}' --user u9
  feedsync queue add comment '{"postId":"p1","text":"nice"}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := action.ParseKind(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid kind", err)
			}
			payload := json.RawMessage(args[1])
			if err := action.Validate(kind, payload); err != nil {
				return WrapExitError(ExitCommandError, "invalid payload", err)
			}

			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := s.engine.Queue().Enqueue(commandContext(cmd), kind, payload, opts.User)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to queue action", err)
			}
			data := map[string]any{"id": id, "kind": kind.String()}
			return newFormatter(cmd, rootOpts).Render(data, func(w io.Writer) {
				fmt.Fprintf(w, "Queued %s\n", id)
			})
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "user the action is recorded for")
	return cmd
}

func newQueueClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear",
		Short:         "Drop every queued action",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			dropped := s.engine.Queue().Len()
			if err := s.engine.Queue().Clear(commandContext(cmd)); err != nil {
				return WrapExitError(ExitFailure, "failed to clear queue", err)
			}
			data := map[string]any{"dropped": dropped}
			return newFormatter(cmd, rootOpts).Render(data, func(w io.Writer) {
				fmt.Fprintf(w, "Dropped %d queued action(s)\n", dropped)
			})
		},
	}
}
