// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/arxiv-digest/internal/enrich"
	"github.com/pdiddy/arxiv-digest/internal/history"
	"github.com/pdiddy/arxiv-digest/internal/lease"
	"github.com/pdiddy/arxiv-digest/internal/observability"
	"github.com/pdiddy/arxiv-digest/internal/orgs"
	"github.com/pdiddy/arxiv-digest/internal/pipeline"
	"github.com/pdiddy/arxiv-digest/internal/reasoning"
	"github.com/pdiddy/arxiv-digest/internal/search"
	"github.com/pdiddy/arxiv-digest/internal/secrets"
	"github.com/pdiddy/arxiv-digest/pkg/types"
)

// metricsNamespace prefixes every exported Prometheus metric.
const metricsNamespace = "arxiv_digest"

// setDefaults registers every configuration key with its default so that
// AutomaticEnv can resolve ARXIV_DIGEST_* overrides during Unmarshal.
func setDefaults(v *viper.Viper, d types.Config) {
	for prefix, h := range map[string]types.HTTPConfig{"search": d.Search.HTTPConfig, "enrich": d.Enrich.HTTPConfig} {
		v.SetDefault(prefix+".timeout", h.Timeout)
		v.SetDefault(prefix+".user_agent", h.UserAgent)
		v.SetDefault(prefix+".max_retries", h.MaxRetries)
	}
	v.SetDefault("search.query", d.Search.Query)
	v.SetDefault("search.authors", d.Search.Authors)
	v.SetDefault("search.days_back", d.Search.DaysBack)
	v.SetDefault("search.max_results", d.Search.MaxResults)
	v.SetDefault("search.request_interval", d.Search.RequestInterval)

	v.SetDefault("enrich.workers", d.Enrich.Workers)
	v.SetDefault("enrich.pages", d.Enrich.Pages)
	v.SetDefault("enrich.work_dir", d.Enrich.WorkDir)
	v.SetDefault("enrich.max_pdf_bytes", d.Enrich.MaxPDFBytes)

	v.SetDefault("ai.provider", d.AI.Provider)
	v.SetDefault("ai.model", d.AI.Model)
	v.SetDefault("ai.api_key", d.AI.APIKey)
	v.SetDefault("ai.base_url", d.AI.BaseURL)
	v.SetDefault("ai.timeout", d.AI.Timeout)
	v.SetDefault("ai.max_tokens", d.AI.MaxTokens)

	v.SetDefault("classify.max_content_chars", d.Classify.MaxContentChars)

	v.SetDefault("filter.target_orgs", d.Filter.TargetOrgs)
	v.SetDefault("filter.orgs_file", d.Filter.OrgsFile)
	v.SetDefault("filter.topic", d.Filter.Topic)
	v.SetDefault("filter.workers", d.Filter.Workers)

	v.SetDefault("store.table_path", d.Store.TablePath)
	v.SetDefault("store.selection_path", d.Store.SelectionPath)
	v.SetDefault("store.history_path", d.Store.HistoryPath)

	v.SetDefault("lease.path", d.Lease.Path)
	v.SetDefault("lease.ttl", d.Lease.TTL)

	v.SetDefault("schedule.cron", d.Schedule.Cron)
	v.SetDefault("schedule.interval", d.Schedule.Interval)
	v.SetDefault("schedule.poll_interval", d.Schedule.PollInterval)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
}

// loadConfig decodes the merged file, environment, and flag settings.
func loadConfig() (types.Config, error) {
	cfg := types.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding configuration: %w", err)
	}
	return cfg, nil
}

// addRunFlags registers the per-run overrides shared by run, resume, and
// schedule.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Int("days-back", 0, "width of the submission window in days (default from config)")
	cmd.Flags().String("query", "", "base arXiv filter, e.g. cat:cs.AI (default from config)")
	cmd.Flags().String("authors", "", "comma-separated author allow-list")
	cmd.Flags().String("orgs", "", "comma-separated target organizations")
	cmd.Flags().String("orgs-file", "", "YAML file listing target organizations")
	cmd.Flags().Bool("no-org-filter", false, "disable the organization filter")
	cmd.Flags().String("topic", "", "research topic for the topic filter")
	cmd.Flags().Int("max-results", 0, "maximum number of papers to fetch (default from config)")
}

// applyRunFlags copies explicitly set run flags into cfg.
func applyRunFlags(cmd *cobra.Command, cfg *types.Config) {
	flags := cmd.Flags()
	if flags.Changed("days-back") {
		cfg.Search.DaysBack, _ = flags.GetInt("days-back")
	}
	if flags.Changed("query") {
		cfg.Search.Query, _ = flags.GetString("query")
	}
	if flags.Changed("authors") {
		v, _ := flags.GetString("authors")
		cfg.Search.Authors = splitList(v)
	}
	if flags.Changed("orgs") {
		v, _ := flags.GetString("orgs")
		cfg.Filter.TargetOrgs = orgs.Normalize([]string{v})
	}
	if flags.Changed("orgs-file") {
		cfg.Filter.OrgsFile, _ = flags.GetString("orgs-file")
	}
	if flags.Changed("topic") {
		cfg.Filter.Topic, _ = flags.GetString("topic")
	}
	if flags.Changed("max-results") {
		cfg.Search.MaxResults, _ = flags.GetInt("max-results")
	}
}

// runOptions resolves the target organizations and builds pipeline options.
func runOptions(cmd *cobra.Command, cfg types.Config) (pipeline.Options, error) {
	disabled, _ := cmd.Flags().GetBool("no-org-filter")
	targets, err := orgs.Resolve(cfg.Filter.TargetOrgs, cfg.Filter.OrgsFile, disabled)
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.OptionsFromConfig(cfg, targets), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// app holds the collaborators shared by the pipeline commands.
type app struct {
	cfg      types.Config
	logger   zerolog.Logger
	metrics  *observability.Metrics
	pipeline *pipeline.Pipeline
	lease    *lease.File
	history  *history.Store
}

// newApp wires the pipeline from cfg. A nil reg disables metrics.
func newApp(cfg types.Config, reg prometheus.Registerer) (*app, error) {
	logger := observability.NewLogger(cfg.Logging)

	if cfg.AI.APIKey == "" {
		cfg.AI.APIKey = loadedSecrets[secrets.ProviderKey(cfg.AI.Provider)]
	}
	svc, err := reasoning.New(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("configuring reasoning service: %w (add %s%s or set %s)",
			err, secretsDir, secrets.ProviderKey(cfg.AI.Provider), "ARXIV_DIGEST_AI_API_KEY")
	}

	var m *observability.Metrics
	if reg != nil {
		m = observability.NewMetrics(metricsNamespace, reg)
	}

	hist, err := history.Open(cfg.Store.HistoryPath)
	if err != nil {
		return nil, err
	}

	enricher := enrich.New(nil, cfg.Enrich, logger,
		enrich.WithMetrics(m),
		enrich.WithProgress(func(done, total int) {
			fmt.Fprintf(os.Stderr, "  enriched %d/%d\n", done, total)
		}),
	)

	p := pipeline.New(cfg, pipeline.Deps{
		Search:    search.NewArxivClient(nil, cfg.Search, logger),
		Enricher:  enricher,
		Reasoning: svc,
		Logger:    logger,
		Metrics:   m,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		pipeline: p,
		lease:    lease.New(cfg.Lease.Path, cfg.Lease.TTL, logger),
		history:  hist,
	}, nil
}

func (a *app) Close() error {
	return a.history.Close()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
