// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists paper records as a CSV table. Every Save rewrites
// the whole file through a temporary file and a rename, so readers never see
// a half-written table.
package store

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/arxiv-digest/pkg/types"
)

// Column names of the persisted table, in write order.
const (
	colPaperID         = "Paper_ID"
	colTitle           = "Title"
	colAuthors         = "Authors"
	colAbstract        = "Abstract"
	colPrimaryCategory = "Primary Category"
	colCategories      = "Categories"
	colURL             = "URL"
	colDate            = "Date"
	colContent         = "Content"
	colAffiliation     = "Affiliation"
)

// Header is the column order written by Save.
var Header = []string{
	colPaperID, colTitle, colAuthors, colAbstract, colPrimaryCategory,
	colCategories, colURL, colDate, colContent, colAffiliation,
}

const dateLayout = "2006-01-02"

// ErrMissingColumn is returned when a table lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

// Table is an in-memory snapshot of the record store bound to a file path.
// It is not safe for concurrent mutation; the pipeline lease guarantees a
// single writer.
type Table struct {
	path    string
	records []types.PaperRecord
}

// New returns a table at path holding records. Nothing is written until Save.
func New(path string, records []types.PaperRecord) *Table {
	t := &Table{path: path}
	t.Reset(records)
	return t
}

// Open loads the table at path. A missing file yields an empty table.
func Open(path string) (*Table, error) {
	records, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(path, nil), nil
		}
		return nil, err
	}
	return New(path, records), nil
}

// Path returns the backing file.
func (t *Table) Path() string { return t.path }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.records) }

// Records returns the rows in store order. Callers must not reorder them.
func (t *Table) Records() []types.PaperRecord { return t.records }

// Record returns row i.
func (t *Table) Record(i int) types.PaperRecord { return t.records[i] }

// SetAffiliation updates the affiliation of row i in memory.
func (t *Table) SetAffiliation(i int, a types.Affiliation) {
	t.records[i].Affiliation = a
}

// Reset replaces all rows, dropping later duplicates of a paper id.
func (t *Table) Reset(records []types.PaperRecord) {
	seen := make(map[string]bool, len(records))
	out := make([]types.PaperRecord, 0, len(records))
	for _, r := range records {
		if seen[r.PaperID] {
			continue
		}
		seen[r.PaperID] = true
		out = append(out, r)
	}
	t.records = out
}

// Save rewrites the whole table.
func (t *Table) Save() error {
	return Write(t.path, t.records)
}

// Load reads every row of the table at path. A table written before
// classification (no Affiliation column) loads with pending affiliations.
func Load(path string) ([]types.PaperRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening table %s: %w", path, err)
	}
	defer f.Close()

	records, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("reading table %s: %w", path, err)
	}
	return records, nil
}

// Decode parses CSV rows from r.
func Decode(r io.Reader) ([]types.PaperRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, required := range []string{colPaperID, colTitle} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, required)
		}
	}

	var records []types.PaperRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, decodeRow(row, cols))
	}
	return records, nil
}

func decodeRow(row []string, cols map[string]int) types.PaperRecord {
	cell := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	r := types.PaperRecord{
		PaperID:         cell(colPaperID),
		Title:           cell(colTitle),
		Authors:         decodeList(cell(colAuthors)),
		Abstract:        cell(colAbstract),
		PrimaryCategory: cell(colPrimaryCategory),
		Categories:      decodeList(cell(colCategories)),
		URL:             cell(colURL),
		Content:         cell(colContent),
		Affiliation:     types.ParseAffiliation(cell(colAffiliation)),
	}
	if d, err := time.Parse(dateLayout, strings.TrimSpace(cell(colDate))); err == nil {
		r.Published = d
	}
	return r
}

// decodeList accepts JSON or single-quoted lists. A bare value becomes a
// one-element list.
func decodeList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if items, ok := types.ParseStringList(s); ok {
		if len(items) == 0 {
			return nil
		}
		return items
	}
	return []string{s}
}

// Write replaces the file at path with records, using a temporary file in
// the same directory and a rename.
func Write(path string, records []types.PaperRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".table-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	encErr := Encode(tmpFile, records)
	closeErr := tmpFile.Close()
	if encErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing table: %w", encErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// Encode writes the header and one row per record to w.
func Encode(w io.Writer, records []types.PaperRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(encodeRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func encodeRow(r types.PaperRecord) []string {
	date := ""
	if !r.Published.IsZero() {
		date = r.Published.Format(dateLayout)
	}
	return []string{
		r.PaperID,
		r.Title,
		encodeList(r.Authors),
		r.Abstract,
		r.PrimaryCategory,
		encodeList(r.Categories),
		r.URL,
		date,
		r.Content,
		r.Affiliation.String(),
	}
}

func encodeList(items []string) string {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(data)
}
