package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunGracefulShutdown(t *testing.T) {
	env := newTestEnv(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Config: env.config, DB: filepath.Join(t.TempDir(), "run.db")}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetContext(ctx)
	cmd.SetArgs([]string{})

	errChan := make(chan error, 1)
	go func() {
		errChan <- cmd.Execute()
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not shut down within timeout")
	}

	assert.Contains(t, buf.String(), "Engine started (profile mobile)")
}

func TestRunInvalidConfig(t *testing.T) {
	path := writeFile(t, "bad.cue", `profile: "watch"`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Config: path, DB: filepath.Join(t.TempDir(), "run.db")}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid configuration")
}
