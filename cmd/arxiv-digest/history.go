// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/arxiv-digest/internal/history"
	"github.com/pdiddy/arxiv-digest/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recent runs, or show the papers one run selected",
	Long: `History reads the run history database. Without arguments it lists the
most recent runs, newest first. With a run id it prints that run's summary
and the papers it selected.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := history.Open(cfg.Store.HistoryPath)
	if err != nil {
		return err
	}
	defer store.Close()

	jsonOutput, _ := cmd.Flags().GetBool("json")
	ctx := context.Background()

	if len(args) == 1 {
		sum, entries, err := store.Run(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(os.Stdout, struct {
				Run     types.RunSummary    `json:"run"`
				Entries []types.ReportEntry `json:"entries"`
			}{sum, entries})
		}
		formatRun(os.Stdout, sum, entries)
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		if runs == nil {
			runs = []types.RunSummary{}
		}
		return writeJSON(os.Stdout, runs)
	}
	formatRuns(os.Stdout, runs)
	return nil
}

func formatRuns(w io.Writer, runs []types.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	fmt.Fprintf(w, "%-36s  %-20s  %-9s  %-10s  %-8s  %s\n",
		"Run", "Started", "Status", "Candidates", "Selected", "Duration")
	fmt.Fprintln(w, strings.Repeat("-", 104))
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-20s  %-9s  %-10d  %-8d  %s\n",
			r.RunID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Status,
			r.Candidates, r.Selected, r.Duration().Round(time.Second))
	}
}

func formatRun(w io.Writer, sum types.RunSummary, entries []types.ReportEntry) {
	fmt.Fprintf(w, "Run:        %s\n", sum.RunID)
	fmt.Fprintf(w, "Status:     %s\n", sum.Status)
	fmt.Fprintf(w, "Started:    %s\n", sum.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "Duration:   %s\n", sum.Duration().Round(time.Second))
	fmt.Fprintf(w, "Candidates: %d\n", sum.Candidates)
	if sum.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", sum.Error)
	}
	if len(entries) == 0 {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-4s  %-16s  %-50s  %s\n", "#", "Paper", "Title", "Affiliation")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, e := range entries {
		title := e.Title
		if len(title) > 50 {
			title = title[:47] + "..."
		}
		fmt.Fprintf(w, "%-4d  %-16s  %-50s  %s\n", e.Index, e.PaperID, title, e.Affiliation)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	historyCmd.Flags().Int("limit", 20, "number of runs to list")
	historyCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(historyCmd)
}
