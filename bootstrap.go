package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/studioops/podmirror/internal/mirror"
	"github.com/studioops/podmirror/internal/resolver"
)

func newBootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Resolve credentials and locate the remote target once",
		Long: `One-shot first-run setup: resolve storage credentials, locate the
remote container, and persist both for later cold starts.

Exits non-zero only when no credential source authenticates. Any other
failure is reported but exits zero — the daemon retries those on its own.`,
		Args: cobra.NoArgs,
		RunE: runBootstrap,
	}
}

func runBootstrap(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg
	logger := buildLogger(os.Stderr)

	res := resolver.New(cfg, s3Factory(logger), logger)

	daemon, err := mirror.NewDaemon(cfg, res, nil, logger)
	if err != nil {
		return err
	}

	if err := daemon.Bootstrap(cmd.Context()); err != nil {
		if errors.Is(err, resolver.ErrNoCredentials) {
			return err
		}

		// Transient remote trouble is the loop's problem, not setup's.
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)

		return nil
	}

	tgt := daemon.Target()
	fmt.Printf("Initialized: replicating to %s/%s\n", tgt.Container, tgt.Prefix)

	// Earlier pod runs may already have replicated into this target.
	if existing, err := daemon.ListRemote(cmd.Context()); err == nil && len(existing) > 0 {
		fmt.Printf("Remote already holds %d objects under this prefix.\n", len(existing))
	}

	return nil
}
