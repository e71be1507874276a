package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/studioops/podmirror/internal/journal"
	"github.com/studioops/podmirror/internal/mirror"
	"github.com/studioops/podmirror/internal/secrets"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show replication status",
		Long: `Display the daemon's current status: the status surface value, the
resolved remote target, and the most recent tick outcome.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
}

// statusReport is the machine-readable status shape for --json.
type statusReport struct {
	Status      string     `json:"status"`
	DaemonAlive bool       `json:"daemon_alive"`
	Container   string     `json:"container,omitempty"`
	Prefix      string     `json:"prefix,omitempty"`
	TotalFiles  int64      `json:"total_files"`
	TotalBytes  int64      `json:"total_bytes"`
	LastTick    *tickBrief `json:"last_tick,omitempty"`
}

// tickBrief is one journal row condensed for display.
type tickBrief struct {
	FinishedAt  time.Time `json:"finished_at"`
	Health      string    `json:"health"`
	FilesCopied int64     `json:"files_copied"`
	BytesCopied int64     `json:"bytes_copied"`
	Errors      int64     `json:"errors"`
	FirstError  string    `json:"first_error,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg

	report := statusReport{}

	status, err := mirror.ReadStatus(cfg.StatusPath())
	if err != nil {
		return err
	}

	report.Status = status
	if status == "" {
		report.Status = "not_started"
	}

	if pid, err := readPIDFile(cfg.PIDPath()); err == nil {
		report.DaemonAlive = processAlive(pid)
	}

	if st, err := secrets.LoadState(cfg.StatePath()); err == nil && st != nil {
		report.Container = st.Container
		report.Prefix = st.Prefix
	}

	if jnl, err := journal.Open(cfg.JournalPath(), buildLogger(os.Stderr)); err == nil {
		defer jnl.Close()

		if files, bytes, err := jnl.Totals(cmd.Context()); err == nil {
			report.TotalFiles = files
			report.TotalBytes = bytes
		}

		if recent, err := jnl.Recent(cmd.Context(), 1); err == nil && len(recent) > 0 {
			r := recent[0]
			report.LastTick = &tickBrief{
				FinishedAt:  r.FinishedAt,
				Health:      r.Health,
				FilesCopied: r.FilesCopied,
				BytesCopied: r.BytesCopied,
				Errors:      r.ErrorCount,
				FirstError:  r.FirstError,
			}
		}
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(report)
	}

	printStatusReport(report)

	return nil
}

func printStatusReport(r statusReport) {
	fmt.Printf("Status:  %s\n", r.Status)

	alive := "no"
	if r.DaemonAlive {
		alive = "yes"
	}

	fmt.Printf("Daemon:  running: %s\n", alive)

	if r.Container != "" {
		fmt.Printf("Target:  %s/%s\n", r.Container, r.Prefix)
	}

	if r.TotalFiles > 0 {
		fmt.Printf("Copied:  %d files (%d bytes) lifetime\n", r.TotalFiles, r.TotalBytes)
	}

	if r.LastTick != nil {
		t := r.LastTick
		fmt.Printf("Last tick: %s  health=%s  copied=%d files (%d bytes)  errors=%d\n",
			t.FinishedAt.Local().Format(time.RFC3339), t.Health, t.FilesCopied, t.BytesCopied, t.Errors)

		if t.FirstError != "" {
			fmt.Printf("  first error: %s\n", t.FirstError)
		}
	}
}
