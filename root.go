package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/studioops/podmirror/internal/blob"
	"github.com/studioops/podmirror/internal/config"
	"github.com/studioops/podmirror/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagBaseDir    string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// Available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Config

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "podmirror",
		Short:   "Pod output replication daemon",
		Long:    "Continuously replicates generated pod output to cloud storage.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagBaseDir, "base-dir", "", "workspace base directory")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newBootstrapCmd())
	cmd.AddCommand(newWatchdogCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newHistoryCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// (defaults -> config file -> environment -> flags) into resolvedCfg.
// Flags win by being pushed into the environment the resolver reads.
func loadConfig() error {
	if flagBaseDir != "" {
		os.Setenv(config.EnvBaseDir, flagBaseDir)
	}

	if flagConfigPath != "" {
		os.Setenv(config.EnvConfig, flagConfigPath)
	}

	cfg, err := config.Resolve()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = cfg

	return nil
}

// buildLogger creates an slog.Logger writing to w. Interactive terminals get
// the text handler; everything else (the control panel tails the log file)
// gets JSON. Config log level provides the baseline; --verbose and --quiet
// override it because CLI flags always win.
func buildLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo

	if resolvedCfg != nil {
		switch resolvedCfg.Daemon.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return slog.New(slog.NewTextHandler(w, opts))
	}

	return slog.New(slog.NewJSONHandler(w, opts))
}

// s3Factory is the production blob client factory handed to the resolver.
func s3Factory(logger *slog.Logger) func(ctx context.Context, b *secrets.Bundle) (blob.Client, error) {
	return func(ctx context.Context, b *secrets.Bundle) (blob.Client, error) {
		return blob.NewS3Client(ctx, b, logger)
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
