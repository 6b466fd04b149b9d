// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package filter selects records from a classified table, either by the
// organizations in their affiliation or by the relevance of their abstract
// to a topic, and combines the two selections.
package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/arxiv-digest/internal/reasoning"
	"github.com/pdiddy/arxiv-digest/pkg/types"
)

// analystPrompt is the system message for both org rounds.
const analystPrompt = "你是一个专业的数据分析助手，擅长从文本中提取和分析信息。"

const initialPrompt = `I have a list containing paper affiliation information in the following format:

%s
Please carefully analyze this list and identify the paper indices that contain any of the following organizations:
%s

Please return the results in the following format:
[index1, index2, ...]

Return only the results in list format, without any additional text.`

const verificationPrompt = `I previously asked you to analyze the following affiliation information and identify indices containing specific organizations:

%s
Target organizations are:
%s

Your response was:
%s

Please carefully verify your answer for correctness. Ensure you haven't missed any matches and haven't included any indices that shouldn't be in the list.
If corrections are needed, provide an updated list of indices in the format [index1, index2, ...]
Return only the final list of indices, without any additional text.`

// OrgFilter selects records whose affiliation names a target organization.
// The service answers once, then audits its own answer in a second round.
type OrgFilter struct {
	svc    reasoning.Service
	logger zerolog.Logger
}

// NewOrgFilter returns an OrgFilter using svc.
func NewOrgFilter(svc reasoning.Service, logger zerolog.Logger) *OrgFilter {
	return &OrgFilter{svc: svc, logger: logger.With().Str("component", "org_filter").Logger()}
}

// FilterByOrg returns the indices of records affiliated with any of orgs.
// It never fails: a service error or an unparseable final answer yields an
// empty set.
func (f *OrgFilter) FilterByOrg(ctx context.Context, records []types.PaperRecord, orgs []string) types.IndexSet {
	blob, eligible := AffiliationBlob(records)
	if blob == "" || len(orgs) == 0 {
		f.logger.Info().Int("eligible", len(eligible)).Int("orgs", len(orgs)).Msg("nothing to match")
		return types.IndexSet{}
	}
	targets := formatOrgs(orgs)

	first := fmt.Sprintf(initialPrompt, blob, targets)
	answer, err := f.svc.Complete(ctx, []reasoning.Message{
		reasoning.System(analystPrompt),
		reasoning.User(first),
	})
	if err != nil {
		f.logger.Error().Err(err).Msg("org filter round 1 failed")
		return types.IndexSet{}
	}

	final, err := f.svc.Complete(ctx, []reasoning.Message{
		reasoning.System(analystPrompt),
		reasoning.User(first),
		reasoning.Assistant(answer),
		reasoning.User(fmt.Sprintf(verificationPrompt, blob, targets, answer)),
	})
	if err != nil {
		f.logger.Error().Err(err).Msg("org filter round 2 failed")
		return types.IndexSet{}
	}

	picked, err := ParseIndexList(final)
	if err != nil {
		f.logger.Error().Err(err).Str("reply", final).Msg("org filter answer not understood")
		return types.IndexSet{}
	}

	// Only rows that were in the blob can be selected.
	result := picked.Intersect(eligible)
	if dropped := len(picked) - len(result); dropped > 0 {
		f.logger.Warn().Int("dropped", dropped).Msg("answer named indices outside the blob")
	}
	f.logger.Info().Int("selected", len(result)).Msg("org filter complete")
	return result
}

// AffiliationBlob renders one "<index>.<affiliation>" line per record with a
// settled affiliation and returns the indices it covers.
func AffiliationBlob(records []types.PaperRecord) (string, types.IndexSet) {
	var b strings.Builder
	eligible := types.IndexSet{}
	for i, r := range records {
		if !r.Affiliation.Settled() {
			continue
		}
		fmt.Fprintf(&b, "%d.%s\n", i, r.Affiliation.String())
		eligible = append(eligible, i)
	}
	return b.String(), eligible
}

func formatOrgs(orgs []string) string {
	data, err := json.Marshal(orgs)
	if err != nil {
		return strings.Join(orgs, ", ")
	}
	return string(data)
}
