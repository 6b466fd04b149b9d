// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/arxiv-digest/internal/httputil"
	"github.com/pdiddy/arxiv-digest/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <entry>
    <id>http://arxiv.org/abs/2502.00002v1</id>
    <updated>2025-02-04T10:00:00Z</updated>
    <published>2025-02-04T10:00:00Z</published>
    <title>Older
      Paper</title>
    <summary>  Second abstract. </summary>
    <author><name>Grace Hopper</name></author>
    <link href="http://arxiv.org/abs/2502.00002v1" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2502.00002v1" rel="related" type="application/pdf"/>
    <arxiv:primary_category term="cs.CL" scheme="http://arxiv.org/schemas/atom"/>
    <category term="cs.CL" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2502.00001v2</id>
    <updated>2025-02-06T09:00:00Z</updated>
    <published>2025-02-03T08:00:00Z</published>
    <title>Newer Paper</title>
    <summary>First abstract.</summary>
    <author><name>Ada Lovelace</name></author>
    <author><name>Alan Turing</name></author>
    <arxiv:primary_category term="cs.AI" scheme="http://arxiv.org/schemas/atom"/>
    <category term="cs.AI" scheme="http://arxiv.org/schemas/atom"/>
    <category term="cs.LG" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2502.00001v1</id>
    <updated>2025-02-03T08:00:00Z</updated>
    <published>2025-02-03T08:00:00Z</published>
    <title>Newer Paper</title>
    <summary>Duplicate of an older version.</summary>
  </entry>
</feed>`

const errorFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/api/errors#incorrect_id_format_for_1234</id>
    <title>Error</title>
    <summary>incorrect id format for 1234</summary>
  </entry>
</feed>`

const emptyFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"></feed>`

func newTestClient(t *testing.T, handler http.HandlerFunc) *ArxivClient {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	old := arxivAPIBase
	arxivAPIBase = ts.URL
	t.Cleanup(func() { arxivAPIBase = old })

	cfg := types.SearchConfig{
		HTTPConfig: types.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "test/0.1", MaxRetries: 1},
		MaxResults: 10,
	}
	return NewArxivClient(ts.Client(), cfg, zerolog.Nop())
}

func TestBuildQuery(t *testing.T) {
	start := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	end := time.Date(2025, 2, 8, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		query Query
		want  string
	}{
		{
			name:  "base only",
			query: Query{Base: "cat:cs.AI"},
			want:  "cat:cs.AI",
		},
		{
			name:  "window is half-open",
			query: Query{Base: "cat:cs.AI", Start: start, End: end},
			want:  "submittedDate:[202502011200 TO 202502081159] AND cat:cs.AI",
		},
		{
			name:  "single author",
			query: Query{Base: "cat:cs.AI", Authors: []string{"Jeff Dean"}},
			want:  "cat:cs.AI AND au:Dean_Jeff",
		},
		{
			name:  "author allow-list",
			query: Query{Base: "cat:cs.AI", Authors: []string{"Jeff Dean", "Yann A. LeCun", " ", "Bengio"}},
			want:  "cat:cs.AI AND (au:Dean_Jeff OR au:LeCun_Yann OR au:Bengio)",
		},
		{
			name:  "authors without base",
			query: Query{Authors: []string{"Geoffrey Hinton"}},
			want:  "au:Hinton_Geoffrey",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildQuery(tt.query))
		})
	}
}

func TestSearchParsesAndSorts(t *testing.T) {
	var gotQuery, gotSort, gotUA string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		gotSort = r.URL.Query().Get("sortBy") + "/" + r.URL.Query().Get("sortOrder")
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(sampleFeed))
	})

	got, err := c.Search(context.Background(), Query{Base: "cat:cs.AI", Authors: []string{"Ada Lovelace"}})
	require.NoError(t, err)

	assert.Equal(t, "cat:cs.AI AND au:Lovelace_Ada", gotQuery)
	assert.Equal(t, "lastUpdatedDate/descending", gotSort)
	assert.Equal(t, "test/0.1", gotUA)

	require.Len(t, got, 2, "older version of 2502.00001 should be deduplicated")
	assert.Equal(t, "2502.00001v2", got[0].ID)
	assert.Equal(t, "Newer Paper", got[0].Title)
	assert.Equal(t, []string{"Ada Lovelace", "Alan Turing"}, got[0].Authors)
	assert.Equal(t, "cs.AI", got[0].PrimaryCategory)
	assert.Equal(t, []string{"cs.AI", "cs.LG"}, got[0].Categories)
	assert.Equal(t, "https://arxiv.org/pdf/2502.00001v2", got[0].PDFURL)

	assert.Equal(t, "2502.00002v1", got[1].ID)
	assert.Equal(t, "Older Paper", got[1].Title)
	assert.Equal(t, "Second abstract.", got[1].Abstract)
	assert.Equal(t, "http://arxiv.org/pdf/2502.00002v1", got[1].PDFURL)
	assert.Equal(t, "http://arxiv.org/abs/2502.00002v1", got[1].URL)
	assert.Equal(t, time.Date(2025, 2, 4, 10, 0, 0, 0, time.UTC), got[1].Published.UTC())
}

func TestSearchCapsResults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("max_results"))
		w.Write([]byte(sampleFeed))
	})

	got, err := c.Search(context.Background(), Query{Base: "cat:cs.AI", MaxResults: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSearchZeroResultsIsNotAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(emptyFeed))
	})

	got, err := c.Search(context.Background(), Query{Base: "cat:cs.AI"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int
		msg     string
	}{
		{
			name: "http error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			status: http.StatusInternalServerError,
			msg:    "boom",
		},
		{
			name: "api error entry",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(errorFeed))
			},
			msg: "incorrect id format",
		},
		{
			name: "malformed xml",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte("<feed><entry>"))
			},
			msg: "parsing arXiv response",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.Search(context.Background(), Query{Base: "cat:cs.AI"})
			require.Error(t, err)

			var f *Failure
			require.True(t, errors.As(err, &f))
			assert.Equal(t, tt.status, f.StatusCode)
			assert.Contains(t, err.Error(), tt.msg)
			assert.True(t, IsFailure(err))
		})
	}
}

func TestSearchRetriesThrottling(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(emptyFeed))
	})

	_, err := c.Search(context.Background(), Query{Base: "cat:cs.AI"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSearchEmptyQuery(t *testing.T) {
	c := NewArxivClient(nil, types.SearchConfig{}, zerolog.Nop())
	_, err := c.Search(context.Background(), Query{Start: time.Now()})
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.False(t, IsFailure(err))
}

func TestDeduplicate(t *testing.T) {
	tests := []struct {
		name        string
		results     []types.Descriptor
		wantIDs     []string
		wantRemoved int
	}{
		{
			name: "older version dropped",
			results: []types.Descriptor{
				{ID: "2301.07041v2", Title: "Paper A"},
				{ID: "2301.07041v1", Title: "Paper A (v1)"},
				{ID: "2303.00000v1", Title: "Paper C"},
			},
			wantIDs:     []string{"2301.07041v2", "2303.00000v1"},
			wantRemoved: 1,
		},
		{
			name: "same title different papers",
			results: []types.Descriptor{
				{ID: "2501.00001v1", Title: "Introduction"},
				{ID: "2501.00002v1", Title: "Introduction"},
				{ID: "2501.00003v1", Title: "attention is all you need!"},
				{ID: "2501.00004v1", Title: "Attention Is All You Need"},
			},
			wantIDs: []string{"2501.00001v1", "2501.00002v1", "2501.00003v1", "2501.00004v1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deduped, removed := deduplicate(tt.results)
			assert.Equal(t, tt.wantRemoved, removed)
			var ids []string
			for _, d := range deduped {
				ids = append(ids, d.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestBaseID(t *testing.T) {
	assert.Equal(t, "2301.07041", baseID("2301.07041v3"))
	assert.Equal(t, "2301.07041", baseID("2301.07041"))
	assert.Equal(t, "hep-th/9901001", baseID("hep-th/9901001v1"))
}

func TestFormatTable(t *testing.T) {
	var buf bytes.Buffer
	FormatTable(nil, &buf)
	assert.Equal(t, "No results found.\n", buf.String())

	buf.Reset()
	FormatTable([]types.Descriptor{{ID: "2502.00001v1", Title: "A", Authors: []string{"X", "Y"}}}, &buf)
	assert.Contains(t, buf.String(), "2502.00001v1")
	assert.Contains(t, buf.String(), "X et al.")
	assert.True(t, strings.HasSuffix(buf.String(), "1 results\n"))
}
