// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package classify assigns an author affiliation to each record in the
// table. Records are processed one at a time and the table is rewritten
// after every update, so an interrupted run resumes at the first record that
// still needs an answer.
package classify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pdiddy/arxiv-digest/internal/observability"
	"github.com/pdiddy/arxiv-digest/internal/reasoning"
	"github.com/pdiddy/arxiv-digest/internal/store"
	"github.com/pdiddy/arxiv-digest/pkg/types"
)

const defaultMaxContentChars = 12000

// SystemPrompt restricts the answer to affiliations printed in the author
// block.
const SystemPrompt = `Based on the following paper content, determine the author affiliation(s) strictly from the listed author information.
Only report organizations that authors explicitly declare as their affiliation.
Do not infer affiliations based on the models, tools, or datasets used in the paper (for example, mentioning OpenAI or GPT does not mean OpenAI is an author affiliation).
Respond with only the organization name(s).
If the affiliations are not listed or are ambiguous, respond with "Unknown".
Format: ["Organization1", "Organization2", ...]`

// Outcome labels used in logs and metrics.
const (
	OutcomeClassified = "classified"
	OutcomeUnknown    = "unknown"
	OutcomeFailed     = "failed"
	OutcomeSkipped    = "skipped"
)

// Summary counts what one ClassifyAll pass did.
type Summary struct {
	Classified int
	Unknown    int
	Failed     int
	Skipped    int
	Calls      int
}

// Classifier drives the reasoning service over a table.
type Classifier struct {
	svc             reasoning.Service
	logger          zerolog.Logger
	metrics         *observability.Metrics
	maxContentChars int
}

// New returns a Classifier. A non-positive cfg.MaxContentChars uses the
// default truncation limit.
func New(svc reasoning.Service, cfg types.ClassifyConfig, logger zerolog.Logger, m *observability.Metrics) *Classifier {
	limit := cfg.MaxContentChars
	if limit <= 0 {
		limit = defaultMaxContentChars
	}
	return &Classifier{
		svc:             svc,
		logger:          logger.With().Str("component", "classify").Logger(),
		metrics:         m,
		maxContentChars: limit,
	}
}

// ClassifyAll classifies every record that needs it, in table order, saving
// the table after each one. Service failures mark the record Failed and the
// pass continues; only a save failure or cancellation stops it.
func (c *Classifier) ClassifyAll(ctx context.Context, table *store.Table) (Summary, error) {
	var sum Summary
	total := table.Len()

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		rec := table.Record(i)
		if !rec.Affiliation.NeedsClassification() {
			sum.Skipped++
			c.metrics.RecordClassification(OutcomeSkipped)
			continue
		}

		log := observability.WithPaper(c.logger, i, rec.PaperID)
		aff := c.classify(ctx, rec, &sum, log)
		table.SetAffiliation(i, aff)

		switch aff.State {
		case types.AffiliationClassified:
			sum.Classified++
			c.metrics.RecordClassification(OutcomeClassified)
		case types.AffiliationUnknown:
			sum.Unknown++
			c.metrics.RecordClassification(OutcomeUnknown)
		default:
			sum.Failed++
			c.metrics.RecordClassification(OutcomeFailed)
		}
		log.Debug().Str("affiliation", aff.String()).Msgf("classified %d/%d", i+1, total)

		if err := table.Save(); err != nil {
			return sum, fmt.Errorf("saving table after record %d: %w", i, err)
		}
	}

	c.logger.Info().
		Int("classified", sum.Classified).
		Int("unknown", sum.Unknown).
		Int("failed", sum.Failed).
		Int("skipped", sum.Skipped).
		Int("calls", sum.Calls).
		Msg("classification complete")
	return sum, nil
}

func (c *Classifier) classify(ctx context.Context, rec types.PaperRecord, sum *Summary, log zerolog.Logger) types.Affiliation {
	if rec.Content == "" {
		log.Warn().Msg("no content to classify")
		return types.Failed()
	}

	sum.Calls++
	answer, err := c.svc.Complete(ctx, []reasoning.Message{
		reasoning.System(SystemPrompt),
		reasoning.User(truncate(rec.Content, c.maxContentChars)),
	})
	if err != nil {
		log.Warn().Err(err).Msg("classification call failed")
		return types.Failed()
	}

	aff := ParseAnswer(answer)
	if aff.State == types.AffiliationFailed {
		log.Warn().Str("answer", answer).Msg("unrecognized classification answer")
	}
	return aff
}

// ParseAnswer decodes a classification reply. A reply that is neither
// "Unknown" nor a list is Failed; an empty reply is Failed rather than
// Pending so it is not confused with an unprocessed record.
func ParseAnswer(answer string) types.Affiliation {
	aff := types.ParseAffiliation(answer)
	if aff.State == types.AffiliationPending {
		return types.Failed()
	}
	return aff
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
