// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/arxiv-digest/internal/pipeline"
	"github.com/pdiddy/arxiv-digest/internal/scheduler"
	"github.com/pdiddy/arxiv-digest/pkg/types"
)

// --- run subcommand ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one pipeline pass under the lease",
	Long: `Run searches the submission window, downloads and extracts each PDF,
rebuilds the record table, classifies affiliations, applies the organization
and topic filters, and writes the selection handoff.

If another run holds the lease, this run is skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd, func(p *pipeline.Pipeline) scheduler.Runner { return p })
	},
}

// --- resume subcommand ---

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Classify and filter the existing record table without searching",
	Long: `Resume loads the record table left by an earlier run, classifies every
record that is still pending or failed, and re-applies the filters. Records
already classified are not sent to the reasoning service again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd, func(p *pipeline.Pipeline) scheduler.Runner { return resumeRunner{p} })
	},
}

// resumeRunner adapts Pipeline.Resume to the scheduler's Runner.
type resumeRunner struct {
	p *pipeline.Pipeline
}

func (r resumeRunner) Run(ctx context.Context, opts pipeline.Options) (pipeline.Result, error) {
	return r.p.Resume(ctx, opts)
}

func runOnce(cmd *cobra.Command, runner func(*pipeline.Pipeline) scheduler.Runner) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, &cfg)
	opts, err := runOptions(cmd, cfg)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := scheduler.New(runner(a.pipeline), a.lease, cfg.Schedule, opts, a.logger,
		scheduler.WithHistory(a.history))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	sum := s.TriggerOnce(ctx)
	printSummary(os.Stdout, sum, cfg.Store.SelectionPath)
	if sum.Status == types.RunFailed {
		return fmt.Errorf("run %s failed: %s", sum.RunID, sum.Error)
	}
	return nil
}

func printSummary(w io.Writer, sum types.RunSummary, selectionPath string) {
	fmt.Fprintf(w, "Run %s: %s\n", sum.RunID, sum.Status)
	switch sum.Status {
	case types.RunSkipped:
		fmt.Fprintf(w, "  skipped: %s\n", sum.Error)
		return
	case types.RunFailed:
		fmt.Fprintf(w, "  error: %s\n", sum.Error)
	}
	fmt.Fprintf(w, "  candidates: %d\n", sum.Candidates)
	fmt.Fprintf(w, "  selected:   %d\n", sum.Selected)
	fmt.Fprintf(w, "  duration:   %s\n", sum.Duration().Round(time.Millisecond))
	if sum.Status == types.RunSucceeded || (sum.Status == types.RunEmpty && sum.Candidates > 0) {
		fmt.Fprintf(w, "  selection:  %s\n", selectionPath)
	}
}

func init() {
	addRunFlags(runCmd)
	addRunFlags(resumeCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
}
