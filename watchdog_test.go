package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCheckAndRelaunch_DaemonAlive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "podmirror.pid")

	// Our own PID is alive by definition.
	cleanup, err := writePIDFile(path)
	require.NoError(t, err)

	defer cleanup()

	relaunched := 0
	checkAndRelaunch(path, discardLogger(), func() error {
		relaunched++

		return nil
	})

	assert.Zero(t, relaunched)
}

func TestCheckAndRelaunch_StalePIDFileCleanedUp(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "podmirror.pid")

	// A PID that cannot exist: above the default Linux pid_max.
	require.NoError(t, os.WriteFile(path, []byte("4206666\n"), 0o644))

	relaunched := 0
	checkAndRelaunch(path, discardLogger(), func() error {
		relaunched++

		return nil
	})

	assert.Equal(t, 1, relaunched)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "stale PID file should be removed")
}

func TestCheckAndRelaunch_NoPIDFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "podmirror.pid")

	relaunched := 0
	checkAndRelaunch(path, discardLogger(), func() error {
		relaunched++

		return nil
	})

	assert.Equal(t, 1, relaunched)
}

func TestCheckAndRelaunch_CorruptPIDFileCleanedUp(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "podmirror.pid")
	require.NoError(t, os.WriteFile(path, []byte("garbage\n"), 0o644))

	relaunched := 0
	checkAndRelaunch(path, discardLogger(), func() error {
		relaunched++

		return nil
	})

	assert.Equal(t, 1, relaunched)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
