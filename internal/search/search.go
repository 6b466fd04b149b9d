// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search queries the arXiv API for papers submitted within a time
// window and returns deduplicated descriptors, most recently updated first.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pdiddy/arxiv-digest/pkg/types"
)

// Gateway searches a paper index. ArxivClient is the production
// implementation; tests supply fakes.
type Gateway interface {
	Search(ctx context.Context, query Query) ([]types.Descriptor, error)
}

// Query holds the search parameters.
type Query struct {
	// Base is the topic filter, e.g. "cat:cs.AI".
	Base string

	// Authors is an optional allow-list of "First Last" names.
	Authors []string

	// Start and End bound the submission date as [Start, End).
	Start time.Time
	End   time.Time

	// MaxResults caps the result count.
	MaxResults int
}

// IsEmpty reports whether the query contains no searchable terms.
func (q Query) IsEmpty() bool {
	return strings.TrimSpace(q.Base) == "" && len(q.Authors) == 0
}

// ErrEmptyQuery is returned when neither a base filter nor authors are given.
var ErrEmptyQuery = errors.New("query is empty: provide a base filter or an author list")

// Failure wraps a network or service error from the search API. Callers
// distinguish it from an empty result, which is not an error.
type Failure struct {
	// StatusCode is the HTTP status, or 0 when the request never completed.
	StatusCode int
	Message    string
	Err        error
}

func (e *Failure) Error() string {
	var b strings.Builder
	b.WriteString("search failed")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Failure) Unwrap() error { return e.Err }

// IsFailure reports whether err is a search Failure.
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}

// deduplicate keeps the first descriptor per versionless identifier. Distinct
// papers that share a title are both kept. It returns the survivors and the
// number removed.
func deduplicate(results []types.Descriptor) ([]types.Descriptor, int) {
	seen := make(map[string]bool)
	var deduped []types.Descriptor
	removed := 0

	for _, r := range results {
		key := baseID(r.ID)
		if seen[key] {
			removed++
			continue
		}
		seen[key] = true
		deduped = append(deduped, r)
	}
	return deduped, removed
}

// FormatTable writes descriptors as a human-readable table to w.
func FormatTable(results []types.Descriptor, w io.Writer) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-16s  %-60s  %-20s  %-10s  %s\n",
		"#", "ID", "Title", "Authors", "Date", "Category")
	fmt.Fprintln(w, strings.Repeat("-", 124))

	for i, r := range results {
		date := ""
		if !r.Published.IsZero() {
			date = r.Published.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%-4d  %-16s  %-60s  %-20s  %-10s  %s\n",
			i, r.ID, truncate(r.Title, 60), formatAuthors(r.Authors), date, r.PrimaryCategory)
	}

	fmt.Fprintf(w, "\n%d results\n", len(results))
}

// FormatJSON writes descriptors as indented JSON to w.
func FormatJSON(results []types.Descriptor, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if results == nil {
		results = []types.Descriptor{}
	}
	return enc.Encode(results)
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return truncate(authors[0], 20)
	default:
		return truncate(authors[0], 14) + " et al."
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
