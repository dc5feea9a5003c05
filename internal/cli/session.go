package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/feedsync/internal/config"
	"github.com/roach88/feedsync/internal/engine"
	"github.com/roach88/feedsync/internal/store"
)

// session is an opened store and a started engine for one command.
type session struct {
	cfg    config.Config
	store  *store.Store
	engine *engine.Engine
}

// loadConfig merges the profile file, the environment and the global flags.
// Flags win over FEEDSYNC_* variables, which win over the file.
func loadConfig(opts *RootOptions) (config.Config, error) {
	environ := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			environ[k] = v
		}
	}
	if opts.DB != "" {
		environ[config.EnvPrefix+"DB"] = opts.DB
	}
	if opts.Profile != "" {
		environ[config.EnvPrefix+"PROFILE"] = opts.Profile
	}

	cfg, err := config.LoadWithEnv(opts.Config, environ)
	if err != nil {
		var le *config.LoadError
		if errors.As(err, &le) {
			return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", le)
		}
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	return cfg, nil
}

// openSession loads configuration, opens the database and starts the
// engine. Connectivity is probed once first so an offline start does not
// try to precache the app shell.
func openSession(cmd *cobra.Command, opts *RootOptions, engineOpts ...engine.Option) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DB, store.WithDriver(cfg.Driver))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	e := engine.New(st, cfg, engineOpts...)
	ctx := commandContext(cmd)
	e.Probe(ctx)
	if err := e.Start(ctx); err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start engine", err)
	}
	return &session{cfg: cfg, store: st, engine: e}, nil
}

// Close waits for background work and closes the database.
func (s *session) Close() {
	s.engine.Wait()
	if err := s.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
