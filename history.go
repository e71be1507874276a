package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/studioops/podmirror/internal/journal"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent replication ticks",
		Long:  `Print recent tick outcomes from the journal, newest first.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of ticks to show")

	return cmd
}

func runHistory(cmd *cobra.Command, limit int) error {
	cfg := resolvedCfg

	jnl, err := journal.Open(cfg.JournalPath(), buildLogger(os.Stderr))
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer jnl.Close()

	records, err := jnl.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Println("No ticks recorded yet.")

		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FINISHED\tHEALTH\tFILES\tBYTES\tERRORS\tFIRST ERROR")

	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			r.FinishedAt.Local().Format(time.RFC3339),
			r.Health, r.FilesCopied, r.BytesCopied, r.ErrorCount, r.FirstError,
		)
	}

	return w.Flush()
}
