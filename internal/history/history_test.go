// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/arxiv-digest/pkg/types"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func summary(id string, started time.Time, status types.RunStatus) types.RunSummary {
	return types.RunSummary{
		RunID:      id,
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		Status:     status,
		Candidates: 12,
	}
}

func TestRecordAndRun(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	started := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

	sum := summary("run-1", started, types.RunSucceeded)
	sum.Selected = 2
	entries := []types.ReportEntry{
		{Index: 4, Title: "Scaling agents", Affiliation: `["Google"]`, PaperID: "2605.00001v1", URL: "https://arxiv.org/abs/2605.00001v1"},
		{Index: 9, Title: "Tool use", Affiliation: `["Meta"]`, PaperID: "2605.00002v2", URL: "https://arxiv.org/abs/2605.00002v2"},
	}
	require.NoError(t, s.Record(ctx, sum, entries))

	got, gotEntries, err := s.Run(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, types.RunSucceeded, got.Status)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Equal(t, 90*time.Second, got.Duration())
	assert.Equal(t, 12, got.Candidates)
	assert.Equal(t, 2, got.Selected)
	assert.Equal(t, entries, gotEntries)
}

func TestRecordReplacesRun(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	started := time.Now().UTC()

	require.NoError(t, s.Record(ctx, summary("run-1", started, types.RunFailed),
		[]types.ReportEntry{{Index: 0, PaperID: "a"}}))

	sum := summary("run-1", started, types.RunEmpty)
	sum.Error = ""
	require.NoError(t, s.Record(ctx, sum, nil))

	got, entries, err := s.Run(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, types.RunEmpty, got.Status)
	assert.Empty(t, entries)
}

func TestRecentNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		sum := summary(id, base.Add(time.Duration(i)*12*time.Hour), types.RunSucceeded)
		if id == "b" {
			sum.Status = types.RunFailed
			sum.Error = "search failed"
		}
		require.NoError(t, s.Record(ctx, sum, nil))
	}

	runs, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].RunID)
	assert.Equal(t, "b", runs[1].RunID)
	assert.Equal(t, "search failed", runs[1].Error)

	runs, err = s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestRunNotFound(t *testing.T) {
	_, _, err := openStore(t).Run(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTimesSelected(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	entry := types.ReportEntry{PaperID: "2605.00001v1"}

	require.NoError(t, s.Record(ctx, summary("r1", time.Now(), types.RunSucceeded), []types.ReportEntry{entry}))
	require.NoError(t, s.Record(ctx, summary("r2", time.Now(), types.RunSucceeded), []types.ReportEntry{entry}))
	require.NoError(t, s.Record(ctx, summary("r3", time.Now(), types.RunEmpty), nil))

	n, err := s.TimesSelected(ctx, entry.PaperID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
