package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/feedsync/internal/cache"
)

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear cached responses",
	}
	cmd.AddCommand(newCacheStatsCommand(rootOpts))
	cmd.AddCommand(newCacheClearCommand(rootOpts))
	cmd.AddCommand(newCachePurgeCommand(rootOpts))
	return cmd
}

func newCacheStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Show the entry count of every partition",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			stats, err := s.engine.Cache().Stats(commandContext(cmd))
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read cache", err)
			}
			names := s.engine.Cache().Names()
			limits := s.cfg.Cache.Limits

			rows := make([]map[string]any, 0, len(cache.Partitions))
			for _, p := range cache.Partitions {
				row := map[string]any{"partition": string(p), "name": names.Name(p), "entries": stats[p]}
				if n, ok := limits[string(p)]; ok {
					row["limit"] = n
				}
				rows = append(rows, row)
			}
			return newFormatter(cmd, rootOpts).Render(rows, func(w io.Writer) {
				for _, p := range cache.Partitions {
					limit := "unbounded"
					if n, ok := limits[string(p)]; ok {
						limit = fmt.Sprintf("max %d", n)
					}
					fmt.Fprintf(w, "%-8s %-28s %4d  (%s)\n", p, names.Name(p), stats[p], limit)
				}
			})
		},
	}
}

func newCacheClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [partition]",
		Short: "Empty one partition, or all of them",
		Long: `Empty one cache partition (static, dynamic, media, api), or every
partition and the response cache when none is named.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var target cache.Partition
			if len(args) == 1 {
				p, err := cache.ParsePartition(args[0])
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid partition", err)
				}
				target = p
			}

			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := commandContext(cmd)
			if target != "" {
				err = s.engine.Cache().Clear(ctx, target)
			} else {
				err = s.engine.Cache().ClearAll(ctx)
				if err == nil {
					err = s.engine.Responses().Clear(ctx)
				}
			}
			if err != nil {
				return WrapExitError(ExitFailure, "failed to clear cache", err)
			}

			cleared := "all"
			if target != "" {
				cleared = string(target)
			}
			return newFormatter(cmd, rootOpts).Render(map[string]any{"cleared": cleared}, func(w io.Writer) {
				fmt.Fprintf(w, "Cleared %s\n", cleared)
			})
		},
	}
}

func newCachePurgeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "purge-expired",
		Short:         "Remove expired API response records",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.engine.Responses().ClearExpired(commandContext(cmd))
			if err != nil {
				return WrapExitError(ExitFailure, "failed to purge responses", err)
			}
			return newFormatter(cmd, rootOpts).Render(map[string]any{"removed": n}, func(w io.Writer) {
				fmt.Fprintf(w, "Removed %d expired response(s)\n", n)
			})
		},
	}
}
