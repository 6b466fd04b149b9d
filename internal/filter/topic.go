// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package filter

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/arxiv-digest/internal/reasoning"
	"github.com/pdiddy/arxiv-digest/pkg/types"
)

const defaultTopicWorkers = 5

const topicPrompt = `请分析以下论文摘要是否与用户查询相关:

摘要: %s

用户查询: "%s"

如果摘要与查询相关，请回答"是"；如果不相关，请回答"否"。
只返回"是"或"否"，不要添加任何额外文本。`

// TopicFilter asks the service whether each abstract is relevant to a query.
type TopicFilter struct {
	svc     reasoning.Service
	workers int
	logger  zerolog.Logger
}

// NewTopicFilter returns a TopicFilter running up to workers votes at once.
func NewTopicFilter(svc reasoning.Service, workers int, logger zerolog.Logger) *TopicFilter {
	if workers <= 0 {
		workers = defaultTopicWorkers
	}
	return &TopicFilter{
		svc:     svc,
		workers: workers,
		logger:  logger.With().Str("component", "topic_filter").Logger(),
	}
}

// FilterByTopic returns the sorted indices of records judged relevant to
// query. A failed vote counts as "no".
func (f *TopicFilter) FilterByTopic(ctx context.Context, records []types.PaperRecord, query string) types.IndexSet {
	query = strings.TrimSpace(query)
	if query == "" {
		return types.IndexSet{}
	}

	var (
		mu      sync.Mutex
		matched []int
		failed  int
	)

	var g errgroup.Group
	g.SetLimit(f.workers)
	for i, r := range records {
		text := topicText(r)
		if text == "" {
			continue
		}
		g.Go(func() error {
			reply, err := f.svc.Complete(ctx, []reasoning.Message{
				reasoning.User(fmt.Sprintf(topicPrompt, text, query)),
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				f.logger.Warn().Err(err).Int("index", i).Msg("topic vote failed")
				failed++
				return nil
			}
			if IsAffirmative(reply) {
				matched = append(matched, i)
			}
			return nil
		})
	}
	g.Wait()

	result := types.NewIndexSet(matched...)
	f.logger.Info().Int("selected", len(result)).Int("failed", failed).Msg("topic filter complete")
	return result
}

// IsAffirmative reports whether reply says yes, in English or Chinese. A
// reply containing 否 or 不是 is a no even though 不是 contains 是.
func IsAffirmative(reply string) bool {
	r := strings.ToLower(reply)
	if strings.Contains(r, "否") || strings.Contains(r, "不是") {
		return false
	}
	return strings.Contains(r, "是") || strings.Contains(r, "yes")
}

// topicText is the abstract, or the extracted content when the abstract is
// missing. Failure markers are not eligible.
func topicText(r types.PaperRecord) string {
	for _, s := range []string{r.Abstract, r.Content} {
		s = strings.TrimSpace(s)
		if s != "" && s != "Error" {
			return s
		}
	}
	return ""
}
