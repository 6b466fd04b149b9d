// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/arxiv-digest/internal/observability"
	"github.com/pdiddy/arxiv-digest/internal/pipeline"
	"github.com/pdiddy/arxiv-digest/internal/search"
	"github.com/pdiddy/arxiv-digest/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "List arXiv papers submitted in the window",
	Long: `Search queries the arXiv API for papers submitted in the last --days-back
days that match the base filter and optional author list. Results are
deduplicated and listed most recently updated first. Nothing is downloaded
or classified.

Use --save to write the query and its results to a YAML file, or --from to
print a previously saved file without querying arXiv.`,
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if from, _ := cmd.Flags().GetString("from"); from != "" {
		qf, err := search.ReadQueryFile(from)
		if err != nil {
			return err
		}
		return printResults(qf.Results, jsonOutput)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, &cfg)

	start, end := pipeline.Window(time.Now(), cfg.Search.DaysBack)
	query := search.Query{
		Base:       cfg.Search.Query,
		Authors:    cfg.Search.Authors,
		Start:      start,
		End:        end,
		MaxResults: cfg.Search.MaxResults,
	}
	if query.IsEmpty() {
		return search.ErrEmptyQuery
	}

	ctx, cancel := signalContext()
	defer cancel()

	client := search.NewArxivClient(nil, cfg.Search, observability.NewLogger(cfg.Logging))
	results, err := client.Search(ctx, query)
	if err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("save"); path != "" {
		if err := search.WriteQueryFile(path, query, results); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved %d results to %s\n", len(results), path)
	}
	return printResults(results, jsonOutput)
}

func printResults(results []types.Descriptor, jsonOutput bool) error {
	if jsonOutput {
		return search.FormatJSON(results, os.Stdout)
	}
	search.FormatTable(results, os.Stdout)
	return nil
}

func init() {
	searchCmd.Flags().String("query", "", "base arXiv filter, e.g. cat:cs.AI (default from config)")
	searchCmd.Flags().String("authors", "", "comma-separated author allow-list")
	searchCmd.Flags().Int("days-back", 0, "width of the submission window in days (default from config)")
	searchCmd.Flags().Int("max-results", 0, "maximum number of results to return (default from config)")
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	searchCmd.Flags().String("save", "", "write the query and results to a YAML file")
	searchCmd.Flags().String("from", "", "print results from a saved YAML file instead of querying")

	rootCmd.AddCommand(searchCmd)
}
