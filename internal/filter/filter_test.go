// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package filter

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/arxiv-digest/internal/reasoning"
	"github.com/pdiddy/arxiv-digest/internal/reasoning/reasoningtest"
	"github.com/pdiddy/arxiv-digest/pkg/types"
)

func TestParseIndexList(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    types.IndexSet
		wantErr bool
	}{
		{name: "strict", in: "[3, 1, 2]", want: types.IndexSet{1, 2, 3}},
		{name: "strict empty", in: "[]", want: types.IndexSet{}},
		{name: "single quotes", in: "['4', '0']", want: types.IndexSet{0, 4}},
		{name: "duplicates", in: "[2, 2, 1]", want: types.IndexSet{1, 2}},
		{name: "code fence", in: "```json\n[5, 7]\n```", want: types.IndexSet{5, 7}},
		{name: "trailing text", in: "The matches are [1 4 9]. Let me know!", want: types.IndexSet{1, 4, 9}},
		{name: "first group wins", in: "[2] and also [3]", want: types.IndexSet{2}},
		{name: "no list", in: "None of the papers match.", wantErr: true},
		{name: "words in list", in: "[one, two]", wantErr: true},
		{name: "unterminated", in: "[1, 2", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIndexList(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnparseable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func classified(affs ...types.Affiliation) []types.PaperRecord {
	records := make([]types.PaperRecord, len(affs))
	for i, a := range affs {
		records[i] = types.PaperRecord{PaperID: string(rune('a' + i)), Affiliation: a}
	}
	return records
}

func TestAffiliationBlobSkipsUnsettled(t *testing.T) {
	records := classified(
		types.Classified("Org A"),
		types.Failed(),
		types.Unknown(),
		types.Pending(),
		types.Classified("Org B", "Org C"),
	)

	blob, eligible := AffiliationBlob(records)
	assert.Equal(t, "0.[\"Org A\"]\n2.Unknown\n4.[\"Org B\",\"Org C\"]\n", blob)
	assert.Equal(t, types.IndexSet{0, 2, 4}, eligible)
}

func TestFilterByOrgTwoRounds(t *testing.T) {
	records := classified(types.Classified("Org A"), types.Unknown(), types.Classified("Org B"))
	svc := reasoningtest.Replies("[0, 2]", "[2]")

	got := NewOrgFilter(svc, zerolog.Nop()).FilterByOrg(context.Background(), records, []string{"Org B"})
	assert.Equal(t, types.IndexSet{2}, got)

	require.Equal(t, 2, svc.Calls())

	first := svc.Call(0)
	require.Len(t, first, 2)
	assert.Equal(t, reasoning.RoleSystem, first[0].Role)
	assert.Contains(t, first[1].Content, "2.[\"Org B\"]")
	assert.Contains(t, first[1].Content, `["Org B"]`)

	second := svc.Call(1)
	require.Len(t, second, 4)
	assert.Equal(t, first[1].Content, second[1].Content, "round 2 replays round 1")
	assert.Equal(t, reasoning.Assistant("[0, 2]"), second[2])
	assert.Contains(t, second[3].Content, "Your response was:\n[0, 2]")
}

func TestFilterByOrgFailsClosed(t *testing.T) {
	records := classified(types.Classified("Org A"), types.Classified("Org B"))

	tests := []struct {
		name string
		svc  *reasoningtest.Fake
	}{
		{name: "unparseable final answer", svc: reasoningtest.Replies("[1]", "I think paper one matches.")},
		{name: "round 1 error", svc: reasoningtest.New(func(context.Context, []reasoning.Message) (string, error) {
			return "", errors.New("timeout")
		})},
		{name: "round 2 error", svc: func() *reasoningtest.Fake {
			f := &reasoningtest.Fake{}
			f.Handler = func(context.Context, []reasoning.Message) (string, error) {
				if f.Calls() == 2 {
					return "", errors.New("rate limited")
				}
				return "[1]", nil
			}
			return f
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewOrgFilter(tt.svc, zerolog.Nop()).FilterByOrg(context.Background(), records, []string{"Org B"})
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestFilterByOrgDropsIneligibleIndices(t *testing.T) {
	records := classified(types.Classified("Org A"), types.Failed(), types.Classified("Org B"))
	svc := reasoningtest.Replies("[1, 2, 17]")

	got := NewOrgFilter(svc, zerolog.Nop()).FilterByOrg(context.Background(), records, []string{"Org A", "Org B"})
	assert.Equal(t, types.IndexSet{2}, got)
}

func TestFilterByOrgNoCalls(t *testing.T) {
	tests := []struct {
		name    string
		records []types.PaperRecord
		orgs    []string
	}{
		{name: "nothing settled", records: classified(types.Pending(), types.Failed()), orgs: []string{"Org A"}},
		{name: "no targets", records: classified(types.Classified("Org A"))},
		{name: "no records", orgs: []string{"Org A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := reasoningtest.Replies("[0]")
			got := NewOrgFilter(svc, zerolog.Nop()).FilterByOrg(context.Background(), tt.records, tt.orgs)
			assert.Empty(t, got)
			assert.Zero(t, svc.Calls())
		})
	}
}

func TestIsAffirmative(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"是", true},
		{"Yes", true},
		{"YES.", true},
		{"否", false},
		{"不是", false},
		{"不是，与主题无关", false},
		{"是的", true},
		{"no", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAffirmative(tt.in))
		})
	}
}

func TestFilterByTopic(t *testing.T) {
	records := []types.PaperRecord{
		{PaperID: "0", Abstract: "agents that plan"},
		{PaperID: "1", Abstract: "protein folding"},
		{PaperID: "2", Abstract: "", Content: "multi-agent planning benchmark"},
		{PaperID: "3", Abstract: "Error"},
		{PaperID: "4", Abstract: "agents that fail"},
		{PaperID: "5", Abstract: "  "},
	}
	svc := reasoningtest.New(func(_ context.Context, msgs []reasoning.Message) (string, error) {
		prompt := msgs[0].Content
		switch {
		case strings.Contains(prompt, "fail"):
			return "", errors.New("boom")
		case strings.Contains(prompt, "protein"):
			return "否", nil
		default:
			return "是", nil
		}
	})

	got := NewTopicFilter(svc, 2, zerolog.Nop()).FilterByTopic(context.Background(), records, "LLM agents")
	assert.Equal(t, types.IndexSet{0, 2}, got)
	assert.Equal(t, 4, svc.Calls(), "records without text get no vote")

	msgs := svc.Call(0)
	require.Len(t, msgs, 1)
	assert.Equal(t, reasoning.RoleUser, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, `用户查询: "LLM agents"`)
}

func TestFilterByTopicBoundsConcurrency(t *testing.T) {
	var inFlight, peak int32
	svc := reasoningtest.New(func(context.Context, []reasoning.Message) (string, error) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return "yes", nil
	})

	records := make([]types.PaperRecord, 10)
	for i := range records {
		records[i].Abstract = "abstract"
	}

	got := NewTopicFilter(svc, 3, zerolog.Nop()).FilterByTopic(context.Background(), records, "anything")
	assert.Equal(t, types.AllIndices(10), got)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestFilterByTopicBlankQuery(t *testing.T) {
	svc := reasoningtest.Replies("yes")
	got := NewTopicFilter(svc, 0, zerolog.Nop()).FilterByTopic(context.Background(),
		[]types.PaperRecord{{Abstract: "x"}}, "   ")
	assert.Empty(t, got)
	assert.Zero(t, svc.Calls())
}

func TestCombine(t *testing.T) {
	org := types.IndexSet{1, 3}
	topic := types.IndexSet{3, 4}
	disjoint := types.IndexSet{0, 2}

	tests := []struct {
		name         string
		org, topic   types.IndexSet
		orgEnabled   bool
		topicEnabled bool
		want         types.IndexSet
	}{
		{name: "neither", org: org, topic: topic, want: types.IndexSet{0, 1, 2, 3, 4}},
		{name: "org only", org: org, topic: topic, orgEnabled: true, want: org},
		{name: "topic only", org: org, topic: topic, topicEnabled: true, want: topic},
		{name: "both intersect", org: org, topic: topic, orgEnabled: true, topicEnabled: true, want: types.IndexSet{3}},
		{name: "both disjoint falls back to org", org: org, topic: disjoint, orgEnabled: true, topicEnabled: true, want: org},
		{name: "both empty org", org: types.IndexSet{}, topic: topic, orgEnabled: true, topicEnabled: true, want: types.IndexSet{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Combine(tt.org, tt.topic, tt.orgEnabled, tt.topicEnabled, 5))
		})
	}
}

func TestCombineFallbackLaw(t *testing.T) {
	for n := 1; n < 6; n++ {
		var org, topic []int
		for i := 0; i < 2*n; i++ {
			if i%2 == 0 {
				org = append(org, i)
			} else {
				topic = append(topic, i)
			}
		}
		r := types.NewIndexSet(org...)
		got := Combine(r, types.NewIndexSet(topic...), true, true, 2*n)
		assert.Equal(t, r, got)
	}
}
