// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pdiddy/arxiv-digest/internal/httputil"
	"github.com/pdiddy/arxiv-digest/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// submittedDateLayout is the YYYYMMDDHHMM form arXiv expects in date ranges.
const submittedDateLayout = "200601021504"

const defaultMaxResults = 100

// ArxivClient queries the arXiv Atom API. Successive requests are spaced by
// the configured RequestInterval (arXiv asks for one request every 3s).
type ArxivClient struct {
	client  *http.Client
	cfg     types.SearchConfig
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewArxivClient returns a client using httpClient (or a client with
// cfg.Timeout when nil).
func NewArxivClient(httpClient *http.Client, cfg types.SearchConfig, logger zerolog.Logger) *ArxivClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RequestInterval > 0 {
		limit = rate.Every(cfg.RequestInterval)
	}
	return &ArxivClient{
		client:  httpClient,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With().Str("component", "search").Logger(),
	}
}

// Search runs the query and returns up to MaxResults descriptors, most
// recently updated first. Zero matches return an empty slice and no error.
// Network and service errors are returned as *Failure.
func (c *ArxivClient) Search(ctx context.Context, query Query) ([]types.Descriptor, error) {
	if query.IsEmpty() {
		return nil, ErrEmptyQuery
	}

	maxResults := query.MaxResults
	if maxResults <= 0 {
		maxResults = c.cfg.MaxResults
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	q := BuildQuery(query)
	params := url.Values{}
	params.Set("search_query", q)
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(maxResults))
	params.Set("sortBy", "lastUpdatedDate")
	params.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, arxivAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Failure{Message: "waiting for rate limiter", Err: err}
	}

	c.logger.Debug().Str("query", q).Int("max_results", maxResults).Msg("querying arXiv")

	resp, err := httputil.DoWithRetry(ctx, c.client, req, c.cfg.MaxRetries)
	if err != nil {
		return nil, &Failure{Message: "arXiv API request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &Failure{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, &Failure{Message: "parsing arXiv response", Err: err}
	}

	results := make([]types.Descriptor, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		// The API reports query errors as a single entry under /api/errors.
		if strings.Contains(entry.ID, "/api/errors") {
			return nil, &Failure{Message: strings.TrimSpace(entry.Summary)}
		}
		d, ok := entry.descriptor()
		if !ok {
			continue
		}
		results = append(results, d)
	}

	results, removed := deduplicate(results)
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Updated.After(results[j].Updated)
	})
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	c.logger.Info().
		Int("results", len(results)).
		Int("duplicates_removed", removed).
		Time("start", query.Start).
		Time("end", query.End).
		Msg("arXiv search complete")
	return results, nil
}

// BuildQuery constructs the search_query expression:
//
//	submittedDate:[START TO END] AND <base> AND (au:Last_First OR ...)
//
// START and END are YYYYMMDDHHMM in UTC. arXiv treats both ends as
// inclusive, so END is moved back one minute to keep the window half-open.
func BuildQuery(q Query) string {
	var parts []string

	if !q.Start.IsZero() && !q.End.IsZero() {
		end := q.End.Add(-time.Minute)
		parts = append(parts, fmt.Sprintf("submittedDate:[%s TO %s]",
			q.Start.UTC().Format(submittedDateLayout), end.UTC().Format(submittedDateLayout)))
	}
	if base := strings.TrimSpace(q.Base); base != "" {
		parts = append(parts, base)
	}

	var authors []string
	for _, name := range q.Authors {
		if term := authorTerm(name); term != "" {
			authors = append(authors, term)
		}
	}
	switch len(authors) {
	case 0:
	case 1:
		parts = append(parts, authors[0])
	default:
		parts = append(parts, "("+strings.Join(authors, " OR ")+")")
	}

	return strings.Join(parts, " AND ")
}

// authorTerm formats "First Middle Last" as au:Last_First.
func authorTerm(name string) string {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return ""
	case 1:
		return "au:" + fields[0]
	default:
		return "au:" + fields[len(fields)-1] + "_" + fields[0]
	}
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID              string          `xml:"id"`
	Title           string          `xml:"title"`
	Summary         string          `xml:"summary"`
	Published       string          `xml:"published"`
	Updated         string          `xml:"updated"`
	Authors         []arxivAuthor   `xml:"author"`
	Links           []arxivLink     `xml:"link"`
	PrimaryCategory arxivCategory   `xml:"primary_category"`
	Categories      []arxivCategory `xml:"category"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivLink struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}

type arxivCategory struct {
	Term string `xml:"term,attr"`
}

func (e arxivEntry) descriptor() (types.Descriptor, bool) {
	id := extractArxivID(e.ID)
	if id == "" {
		return types.Descriptor{}, false
	}

	d := types.Descriptor{
		ID:              id,
		Title:           collapseSpace(e.Title),
		Abstract:        collapseSpace(e.Summary),
		PrimaryCategory: e.PrimaryCategory.Term,
		URL:             strings.TrimSpace(e.ID),
		PDFURL:          "https://arxiv.org/pdf/" + id,
	}
	for _, a := range e.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			d.Authors = append(d.Authors, name)
		}
	}
	for _, c := range e.Categories {
		if c.Term != "" {
			d.Categories = append(d.Categories, c.Term)
		}
	}
	if d.PrimaryCategory == "" && len(d.Categories) > 0 {
		d.PrimaryCategory = d.Categories[0]
	}
	for _, l := range e.Links {
		switch {
		case l.Title == "pdf" || l.Type == "application/pdf":
			d.PDFURL = l.Href
		case l.Rel == "alternate" && l.Href != "":
			d.URL = l.Href
		}
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published)); err == nil {
		d.Published = t
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Updated)); err == nil {
		d.Updated = t
	}
	return d, true
}

// extractArxivID pulls the arXiv ID, version included, from the entry's <id>
// URL (e.g. "http://arxiv.org/abs/2301.07041v1" → "2301.07041v1").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(idURL[idx+len(prefix):])
}

// baseID strips the version suffix (e.g. "v1", "v2").
func baseID(id string) string {
	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			return id[:vIdx]
		}
	}
	return id
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
