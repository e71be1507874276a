package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/studioops/podmirror/internal/journal"
	"github.com/studioops/podmirror/internal/mirror"
	"github.com/studioops/podmirror/internal/resolver"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the replication loop",
		Long: `Run the long-lived replication daemon.

Resolves storage credentials, locates the remote container, and copies new
or changed output files every tick until interrupted. Credential and remote
failures degrade health and are retried; nothing short of a signal stops the
loop. A flock-guarded PID file prevents a second instance.`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg

	logWriter, closeLog, err := openLogFile(cfg.LogPath())
	if err != nil {
		return err
	}
	defer closeLog()

	logger := buildLogger(io.MultiWriter(os.Stderr, logWriter))

	cleanup, err := writePIDFile(cfg.PIDPath())
	if err != nil {
		return err
	}
	defer cleanup()

	jnl, err := journal.Open(cfg.JournalPath(), logger)
	if err != nil {
		// History is observability only; the loop runs without it.
		logger.Warn("opening journal failed, continuing without history",
			slog.String("error", err.Error()),
		)
	} else {
		defer jnl.Close()
	}

	res := resolver.New(cfg, s3Factory(logger), logger)

	daemon, err := mirror.NewDaemon(cfg, res, jnl, logger)
	if err != nil {
		return err
	}

	ctx := shutdownContext(cmd.Context(), logger)

	return daemon.Run(ctx)
}

// openLogFile opens the append-only daemon log. The control panel tails this
// file, so it must exist from the first tick on.
func openLogFile(path string) (io.Writer, func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), pidDirPermissions); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	return f, func() { f.Close() }, nil
}
