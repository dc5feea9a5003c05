package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the engine until interrupted",
		Long: `Start the offline-first engine and keep it running. When a probe URL is
configured connectivity is polled; every offline->online transition replays
the mutation queue. Sync signals are logged.

Example:
  feedsync run --db ./feedsync.db
  FEEDSYNC_PROBE_URL=http://localhost:3000/api/health feedsync run -v`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(rootOpts, cmd)
		},
	}
}

func runEngine(opts *RootOptions, cmd *cobra.Command) error {
	setupLogging(cmd.ErrOrStderr(), opts.Verbose, slog.LevelInfo)

	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	signals, unsubscribe := s.engine.Signals().Subscribe(16)
	defer unsubscribe()

	var wg conc.WaitGroup
	defer wg.Wait()
	defer cancel()
	wg.Go(func() {
		for {
			select {
			case sig := <-sigChan:
				slog.Info("received signal, shutting down", "signal", sig)
				cancel()
				return
			case sg := <-signals:
				slog.Info("sync signal", "type", sg.Type, "pending", sg.Pending, "succeeded", sg.Succeeded, "failed", sg.Failed)
			case <-ctx.Done():
				return
			}
		}
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Engine started (profile %s). Press Ctrl-C to stop.\n", s.cfg.Profile)

	if err := s.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	slog.Info("engine stopped gracefully")
	return nil
}
