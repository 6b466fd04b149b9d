// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"sort"
	"time"
)

// IndexSet is a sorted, duplicate-free set of 0-based record positions.
// Positions refer to store row order at filter time.
type IndexSet []int

// NewIndexSet builds a sorted, deduplicated set from indices.
func NewIndexSet(indices ...int) IndexSet {
	set := make(IndexSet, 0, len(indices))
	seen := make(map[int]bool, len(indices))
	for _, i := range indices {
		if seen[i] {
			continue
		}
		seen[i] = true
		set = append(set, i)
	}
	sort.Ints(set)
	return set
}

// AllIndices returns {0, 1, ..., n-1}.
func AllIndices(n int) IndexSet {
	set := make(IndexSet, n)
	for i := range set {
		set[i] = i
	}
	return set
}

// Contains reports whether i is in the set.
func (s IndexSet) Contains(i int) bool {
	j := sort.SearchInts(s, i)
	return j < len(s) && s[j] == i
}

// Intersect returns the elements present in both sets.
func (s IndexSet) Intersect(other IndexSet) IndexSet {
	out := IndexSet{}
	for _, i := range s {
		if other.Contains(i) {
			out = append(out, i)
		}
	}
	return out
}

// Empty reports whether the set has no elements.
func (s IndexSet) Empty() bool { return len(s) == 0 }

// ReportEntry is the tuple handed to the report assembler for each selected
// record.
type ReportEntry struct {
	Index       int    `json:"index" yaml:"index"`
	Title       string `json:"title" yaml:"title"`
	Affiliation string `json:"affiliation" yaml:"affiliation"`
	PaperID     string `json:"paper_id" yaml:"paper_id"`
	URL         string `json:"url" yaml:"url"`
}

// Selection is the handoff document written at the end of a run.
type Selection struct {
	RunID       string        `json:"run_id" yaml:"run_id"`
	GeneratedAt time.Time     `json:"generated_at" yaml:"generated_at"`
	Query       string        `json:"query" yaml:"query"`
	TargetOrgs  []string      `json:"target_orgs,omitempty" yaml:"target_orgs,omitempty"`
	Topic       string        `json:"topic,omitempty" yaml:"topic,omitempty"`
	Entries     []ReportEntry `json:"entries" yaml:"entries"`
}

// RunStatus is the terminal outcome of one pipeline run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	// RunEmpty means the search or the filters left nothing to report.
	RunEmpty RunStatus = "empty"
	RunFailed RunStatus = "failed"
	// RunSkipped means another run held the lease.
	RunSkipped RunStatus = "skipped"
)

// RunSummary records what one run did.
type RunSummary struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
	Status     RunStatus `json:"status" yaml:"status"`
	Candidates int       `json:"candidates" yaml:"candidates"`
	Selected   int       `json:"selected" yaml:"selected"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Duration returns the wall-clock time of the run.
func (s RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
