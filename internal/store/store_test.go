// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/arxiv-digest/pkg/types"
)

func sampleRecords() []types.PaperRecord {
	return []types.PaperRecord{
		{
			PaperID:         "2502.00001v1",
			Title:           "Scaling Laws, Revisited",
			Authors:         []string{"Ada Lovelace", "Alan Turing"},
			Abstract:        "We revisit \"scaling\" laws.\nSecond line.",
			PrimaryCategory: "cs.AI",
			Categories:      []string{"cs.AI", "cs.LG"},
			URL:             "http://arxiv.org/abs/2502.00001v1",
			Published:       time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC),
			Content:         "Google DeepMind\nLondon, UK",
			Affiliation:     types.Classified("Google DeepMind"),
		},
		{
			PaperID:     "2502.00002v2",
			Title:       "No Content",
			Authors:     []string{"Grace Hopper"},
			Categories:  []string{"cs.CL"},
			Published:   time.Date(2025, 2, 4, 0, 0, 0, 0, time.UTC),
			Affiliation: types.Failed(),
		},
		{
			PaperID:     "2502.00003v1",
			Title:       "Pending",
			Authors:     []string{"Edsger Dijkstra"},
			Categories:  []string{"cs.DS"},
			Published:   time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC),
			Affiliation: types.Pending(),
		},
	}
}

func TestSaveAndOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "papers.csv")
	tbl := New(path, sampleRecords())
	require.NoError(t, tbl.Save())

	got, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, 3, got.Len())
	assert.Equal(t, sampleRecords(), got.Records())
}

func TestSaveWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "papers.csv")
	require.NoError(t, New(path, nil).Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"Paper_ID,Title,Authors,Abstract,Primary Category,Categories,URL,Date,Content,Affiliation\n",
		string(data))
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "papers.csv")
	tbl := New(path, sampleRecords())
	require.NoError(t, tbl.Save())
	tbl.SetAffiliation(1, types.Unknown())
	require.NoError(t, tbl.Save())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "papers.csv", entries[0].Name())

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, types.Unknown(), got[1].Affiliation)
}

func TestOpenMissingFile(t *testing.T) {
	tbl, err := Open(filepath.Join(t.TempDir(), "absent.csv"))
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())
}

func TestDecodeLegacyTable(t *testing.T) {
	// Written before classification: no Affiliation column, single-quoted lists.
	csvText := "Paper_ID,Title,Authors,Abstract,Primary Category,Categories,URL,Date,Content\n" +
		"2501.1v1,A,\"['Ada Lovelace', 'Alan Turing']\",abs,cs.AI,\"['cs.AI']\",u,2025-01-08,text\n"

	records, err := Decode(strings.NewReader(csvText))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"Ada Lovelace", "Alan Turing"}, records[0].Authors)
	assert.Equal(t, []string{"cs.AI"}, records[0].Categories)
	assert.Equal(t, types.Pending(), records[0].Affiliation)
	assert.Equal(t, time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC), records[0].Published)
}

func TestDecodeMissingRequiredColumn(t *testing.T) {
	_, err := Decode(strings.NewReader("Title,Authors\nA,[]\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestResetDropsDuplicateIDs(t *testing.T) {
	recs := sampleRecords()
	dup := recs[0]
	dup.Title = "duplicate"
	tbl := New("unused.csv", append(recs, dup))

	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, "Scaling Laws, Revisited", tbl.Record(0).Title)
}
