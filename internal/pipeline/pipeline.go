// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs one ingestion pass end to end: search a submission
// window, enrich the candidates, rebuild the record table, classify
// affiliations, filter, and write the selection handoff for the report
// assembler.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.yaml.in/yaml/v3"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/arxiv-digest/internal/classify"
	"github.com/pdiddy/arxiv-digest/internal/filter"
	"github.com/pdiddy/arxiv-digest/internal/observability"
	"github.com/pdiddy/arxiv-digest/internal/reasoning"
	"github.com/pdiddy/arxiv-digest/internal/search"
	"github.com/pdiddy/arxiv-digest/internal/store"
	"github.com/pdiddy/arxiv-digest/pkg/types"
)

// Stage names used in logs.
const (
	StageSearch   = "search"
	StageEnrich   = "enrich"
	StageClassify = "classify"
	StageFilter   = "filter"
	StageHandoff  = "handoff"
)

// Enricher turns descriptors into records. *enrich.Enricher implements it.
type Enricher interface {
	Enrich(ctx context.Context, descs []types.Descriptor) []types.PaperRecord
}

// Options are the per-run parameters.
type Options struct {
	// RunID tags logs, the handoff, and history. Generated when empty.
	RunID string

	Query      string
	Authors    []string
	DaysBack   int
	MaxResults int

	// TargetOrgs enables the org filter when non-empty.
	TargetOrgs []string

	// Topic enables the topic filter when non-blank.
	Topic string
}

// Result describes a finished run.
type Result struct {
	Summary        types.RunSummary
	Classification classify.Summary
	Selection      types.Selection
}

// Deps are the collaborators a Pipeline drives.
type Deps struct {
	Search    search.Gateway
	Enricher  Enricher
	Reasoning reasoning.Service
	Logger    zerolog.Logger
	Metrics   *observability.Metrics
}

// Pipeline runs ingestion passes against one table and handoff file.
type Pipeline struct {
	search        search.Gateway
	enricher      Enricher
	classifier    *classify.Classifier
	orgFilter     *filter.OrgFilter
	topicFilter   *filter.TopicFilter
	tablePath     string
	selectionPath string
	logger        zerolog.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

// New wires a Pipeline from cfg and deps.
func New(cfg types.Config, deps Deps) *Pipeline {
	m := deps.Metrics
	return &Pipeline{
		search:   deps.Search,
		enricher: deps.Enricher,
		classifier: classify.New(reasoning.Instrument(deps.Reasoning, m, "classify"),
			cfg.Classify, deps.Logger, m),
		orgFilter: filter.NewOrgFilter(reasoning.Instrument(deps.Reasoning, m, "org_filter"),
			deps.Logger),
		topicFilter: filter.NewTopicFilter(reasoning.Instrument(deps.Reasoning, m, "topic_filter"),
			cfg.Filter.Workers, deps.Logger),
		tablePath:     cfg.Store.TablePath,
		selectionPath: cfg.Store.SelectionPath,
		logger:        deps.Logger.With().Str("component", "pipeline").Logger(),
		metrics:       m,
		now:           time.Now,
	}
}

// OptionsFromConfig builds run options from configuration and the resolved
// target organizations.
func OptionsFromConfig(cfg types.Config, targetOrgs []string) Options {
	return Options{
		Query:      cfg.Search.Query,
		Authors:    cfg.Search.Authors,
		DaysBack:   cfg.Search.DaysBack,
		MaxResults: cfg.Search.MaxResults,
		TargetOrgs: targetOrgs,
		Topic:      cfg.Filter.Topic,
	}
}

// Window returns the [start, end) submission window ending at now.
func Window(now time.Time, daysBack int) (time.Time, time.Time) {
	if daysBack <= 0 {
		daysBack = 3
	}
	return now.AddDate(0, 0, -daysBack), now
}

// Run executes a full pass. An empty search result or an empty selection is
// reported through the summary status, not as an error. Errors are returned
// only when the run cannot proceed (bad query, search failure, table write).
func (p *Pipeline) Run(ctx context.Context, opts Options) (Result, error) {
	res, log := p.begin(opts)

	start, end := Window(p.now(), opts.DaysBack)
	query := search.Query{
		Base:       opts.Query,
		Authors:    opts.Authors,
		Start:      start,
		End:        end,
		MaxResults: opts.MaxResults,
	}
	if query.IsEmpty() {
		return p.fail(res, search.ErrEmptyQuery)
	}

	searchLog := observability.WithStage(log, StageSearch)
	searchLog.Info().
		Str("query", opts.Query).
		Time("start", start).
		Time("end", end).
		Msg("searching")
	descs, err := p.search.Search(ctx, query)
	if err != nil {
		return p.fail(res, fmt.Errorf("searching: %w", err))
	}
	p.metrics.RecordFetched(len(descs))
	res.Summary.Candidates = len(descs)
	if len(descs) == 0 {
		searchLog.Info().Msg("no candidates in window")
		return p.finish(res, types.RunEmpty), nil
	}

	enrichLog := observability.WithStage(log, StageEnrich)
	enrichLog.Info().Int("candidates", len(descs)).Msg("enriching")
	records := p.enricher.Enrich(ctx, descs)

	table := store.New(p.tablePath, nil)
	table.Reset(records)
	if err := table.Save(); err != nil {
		return p.fail(res, fmt.Errorf("writing table: %w", err))
	}
	if table.Len() != len(records) {
		log.Warn().Int("dropped", len(records)-table.Len()).Msg("duplicate paper ids dropped")
	}

	return p.process(ctx, table, opts, res, log)
}

// Resume classifies and filters the existing table without searching. It
// picks up records left Pending or Failed by an earlier pass.
func (p *Pipeline) Resume(ctx context.Context, opts Options) (Result, error) {
	res, log := p.begin(opts)

	table, err := store.Open(p.tablePath)
	if err != nil {
		return p.fail(res, fmt.Errorf("loading table: %w", err))
	}
	res.Summary.Candidates = table.Len()
	if table.Len() == 0 {
		log.Info().Str("path", p.tablePath).Msg("table is empty")
		return p.finish(res, types.RunEmpty), nil
	}
	return p.process(ctx, table, opts, res, log)
}

// process runs classification, filtering, and the handoff over table.
func (p *Pipeline) process(ctx context.Context, table *store.Table, opts Options, res Result, log zerolog.Logger) (Result, error) {
	classifyLog := observability.WithStage(log, StageClassify)
	classifyLog.Info().Int("records", table.Len()).Msg("classifying")
	cls, err := p.classifier.ClassifyAll(ctx, table)
	res.Classification = cls
	if err != nil {
		return p.fail(res, fmt.Errorf("classifying: %w", err))
	}

	records := table.Records()
	selected := p.selectRecords(ctx, records, opts, observability.WithStage(log, StageFilter))
	res.Summary.Selected = len(selected)

	res.Selection = buildSelection(records, selected, opts, res.Summary.RunID, p.now())
	if err := WriteSelection(p.selectionPath, res.Selection); err != nil {
		return p.fail(res, fmt.Errorf("writing selection: %w", err))
	}
	handoffLog := observability.WithStage(log, StageHandoff)
	handoffLog.Info().
		Int("selected", len(selected)).
		Str("path", p.selectionPath).
		Msg("selection written")

	if len(selected) == 0 {
		log.Info().Msg("no qualifying papers")
		return p.finish(res, types.RunEmpty), nil
	}
	return p.finish(res, types.RunSucceeded), nil
}

// selectRecords runs the enabled filters concurrently and combines them.
func (p *Pipeline) selectRecords(ctx context.Context, records []types.PaperRecord, opts Options, log zerolog.Logger) types.IndexSet {
	orgEnabled := len(opts.TargetOrgs) > 0
	topicEnabled := strings.TrimSpace(opts.Topic) != ""

	var byOrg, byTopic types.IndexSet
	var g errgroup.Group
	if orgEnabled {
		g.Go(func() error {
			byOrg = p.orgFilter.FilterByOrg(ctx, records, opts.TargetOrgs)
			return nil
		})
	}
	if topicEnabled {
		g.Go(func() error {
			byTopic = p.topicFilter.FilterByTopic(ctx, records, opts.Topic)
			return nil
		})
	}
	g.Wait()

	selected := filter.Combine(byOrg, byTopic, orgEnabled, topicEnabled, len(records))
	if orgEnabled {
		p.metrics.RecordSelected("org", len(byOrg))
	}
	if topicEnabled {
		p.metrics.RecordSelected("topic", len(byTopic))
	}
	p.metrics.RecordSelected("combined", len(selected))

	log.Info().
		Bool("org_filter", orgEnabled).
		Int("org_selected", len(byOrg)).
		Bool("topic_filter", topicEnabled).
		Int("topic_selected", len(byTopic)).
		Int("selected", len(selected)).
		Msg("filters combined")
	return selected
}

func (p *Pipeline) begin(opts Options) (Result, zerolog.Logger) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	res := Result{Summary: types.RunSummary{RunID: runID, StartedAt: p.now()}}
	return res, observability.WithRun(p.logger, runID)
}

func (p *Pipeline) finish(res Result, status types.RunStatus) Result {
	res.Summary.Status = status
	res.Summary.FinishedAt = p.now()
	return res
}

func (p *Pipeline) fail(res Result, err error) (Result, error) {
	res = p.finish(res, types.RunFailed)
	res.Summary.Error = err.Error()
	return res, err
}

func buildSelection(records []types.PaperRecord, selected types.IndexSet, opts Options, runID string, now time.Time) types.Selection {
	sel := types.Selection{
		RunID:       runID,
		GeneratedAt: now.UTC(),
		Query:       opts.Query,
		TargetOrgs:  opts.TargetOrgs,
		Topic:       strings.TrimSpace(opts.Topic),
		Entries:     make([]types.ReportEntry, 0, len(selected)),
	}
	for _, i := range selected {
		if i < 0 || i >= len(records) {
			continue
		}
		r := records[i]
		sel.Entries = append(sel.Entries, types.ReportEntry{
			Index:       i,
			Title:       r.Title,
			Affiliation: displayAffiliation(r.Affiliation),
			PaperID:     r.PaperID,
			URL:         r.URL,
		})
	}
	return sel
}

func displayAffiliation(a types.Affiliation) string {
	if a.State == types.AffiliationClassified {
		return strings.Join(a.Orgs, ", ")
	}
	return a.String()
}

// WriteSelection writes sel to path as YAML, replacing any earlier file
// atomically.
func WriteSelection(path string, sel types.Selection) error {
	data, err := yaml.Marshal(&sel)
	if err != nil {
		return fmt.Errorf("encoding selection: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".selection-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing selection: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming selection: %w", err)
	}
	return nil
}

// ReadSelection loads a handoff file.
func ReadSelection(path string) (types.Selection, error) {
	var sel types.Selection
	data, err := os.ReadFile(path)
	if err != nil {
		return sel, err
	}
	if err := yaml.Unmarshal(data, &sel); err != nil {
		return sel, fmt.Errorf("parsing selection %s: %w", path, err)
	}
	return sel, nil
}
