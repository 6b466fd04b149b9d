// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/arxiv-digest/pkg/types"
)

// QueryFile is a saved search: the query that ran and the descriptors it
// returned. It lets a window be inspected later without re-querying arXiv.
type QueryFile struct {
	Query   QueryParams        `yaml:"query"`
	Results []types.Descriptor `yaml:"results"`
	Summary QuerySummary       `yaml:"summary"`
}

// QueryParams stores the query parameters in a serializable form.
type QueryParams struct {
	Base       string   `yaml:"base,omitempty"`
	Authors    []string `yaml:"authors,omitempty"`
	Start      string   `yaml:"start,omitempty"`
	End        string   `yaml:"end,omitempty"`
	MaxResults int      `yaml:"max_results"`
}

// QuerySummary stores result statistics and a timestamp.
type QuerySummary struct {
	Total     int       `yaml:"total"`
	Timestamp time.Time `yaml:"timestamp"`
}

const windowFmt = time.RFC3339

// WriteQueryFile saves query and its results to a YAML file.
func WriteQueryFile(path string, query Query, results []types.Descriptor) error {
	qf := QueryFile{
		Query: QueryParams{
			Base:       query.Base,
			Authors:    query.Authors,
			MaxResults: query.MaxResults,
		},
		Results: results,
		Summary: QuerySummary{
			Total:     len(results),
			Timestamp: time.Now().UTC(),
		},
	}
	if !query.Start.IsZero() {
		qf.Query.Start = query.Start.UTC().Format(windowFmt)
	}
	if !query.End.IsZero() {
		qf.Query.End = query.End.UTC().Format(windowFmt)
	}

	data, err := yaml.Marshal(&qf)
	if err != nil {
		return fmt.Errorf("marshaling query file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadQueryFile loads a previously saved query file from disk.
func ReadQueryFile(path string) (*QueryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading query file: %w", err)
	}
	var qf QueryFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return nil, fmt.Errorf("parsing query file: %w", err)
	}
	return &qf, nil
}

// ToQuery converts stored QueryParams back into a Query.
func (p QueryParams) ToQuery() (Query, error) {
	q := Query{
		Base:       p.Base,
		Authors:    p.Authors,
		MaxResults: p.MaxResults,
	}
	if p.Start != "" {
		t, err := time.Parse(windowFmt, p.Start)
		if err != nil {
			return q, fmt.Errorf("invalid start %q: %w", p.Start, err)
		}
		q.Start = t
	}
	if p.End != "" {
		t, err := time.Parse(windowFmt, p.End)
		if err != nil {
			return q, fmt.Errorf("invalid end %q: %w", p.End, err)
		}
		q.End = t
	}
	return q, nil
}
