// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package filter

import "github.com/pdiddy/arxiv-digest/pkg/types"

// Combine merges the two filter results for a table of total records.
//
//	org  topic  result
//	no   no     every index
//	yes  no     org
//	no   yes    topic
//	yes  yes    org ∩ topic, or org when the intersection is empty
func Combine(org, topic types.IndexSet, orgEnabled, topicEnabled bool, total int) types.IndexSet {
	switch {
	case orgEnabled && topicEnabled:
		if both := org.Intersect(topic); !both.Empty() {
			return both
		}
		return org
	case orgEnabled:
		return org
	case topicEnabled:
		return topic
	default:
		return types.AllIndices(total)
	}
}
