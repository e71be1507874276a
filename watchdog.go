package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newWatchdogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watchdog",
		Short: "Keep the replication daemon alive",
		Long: `Periodically check that the replication daemon is running and relaunch
it when it is not.

Liveness is judged by the daemon PID file plus a signal-0 probe. Stale PID
files are cleaned up. Relaunches are idempotent: the daemon's own PID file
lock collapses concurrent starts to one instance.`,
		Args: cobra.NoArgs,
		RunE: runWatchdog,
	}
}

func runWatchdog(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg
	logger := buildLogger(os.Stderr)

	ctx := shutdownContext(cmd.Context(), logger)
	interval := cfg.WatchdogCheckInterval()

	logger.Info("watchdog starting",
		slog.String("pid_file", cfg.PIDPath()),
		slog.Duration("interval", interval),
	)

	for {
		checkAndRelaunch(cfg.PIDPath(), logger, relaunchDaemon)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("watchdog stopping")

			return nil
		case <-timer.C:
		}
	}
}

// checkAndRelaunch performs one liveness check, removing a stale PID file and
// relaunching the daemon if it is not running.
func checkAndRelaunch(pidPath string, logger *slog.Logger, relaunch func() error) {
	pid, err := readPIDFile(pidPath)
	if err == nil && processAlive(pid) {
		logger.Debug("daemon alive", slog.Int("pid", pid))

		return
	}

	if err == nil {
		// PID file exists but the process is gone.
		logger.Warn("daemon dead, removing stale PID file", slog.Int("pid", pid))
		os.Remove(pidPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		logger.Warn("unreadable PID file, removing", slog.String("error", err.Error()))
		os.Remove(pidPath)
	}

	if err := relaunch(); err != nil {
		logger.Error("relaunching daemon failed", slog.String("error", err.Error()))

		return
	}

	logger.Info("daemon relaunched")
}

// relaunchDaemon starts `podmirror run` detached, inheriting this process's
// environment and config flags. The child outlives the watchdog.
func relaunchDaemon() error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating own executable: %w", err)
	}

	args := []string{"run"}
	if flagConfigPath != "" {
		args = append(args, "--config", flagConfigPath)
	}

	if flagBaseDir != "" {
		args = append(args, "--base-dir", flagBaseDir)
	}

	child := exec.Command(self, args...)
	child.Stdout = nil
	child.Stderr = nil
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := child.Start(); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}

	// Detach — the daemon reparents to init.
	return child.Process.Release()
}
