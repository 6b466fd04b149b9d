// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package enrich downloads each candidate's PDF, extracts the text of its
// leading pages, and deletes the file. Items run on a bounded worker pool and
// fail independently: a failed item yields a record with empty content.
package enrich

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/arxiv-digest/internal/httputil"
	"github.com/pdiddy/arxiv-digest/internal/observability"
	"github.com/pdiddy/arxiv-digest/pkg/types"
)

const (
	defaultWorkers     = 5
	defaultPages       = 1
	defaultMaxPDFBytes = 50 << 20
)

// Per-item failures. They are logged and never abort the batch.
var (
	ErrNotPDF   = errors.New("response is not a PDF")
	ErrTooLarge = errors.New("PDF exceeds size limit")
	ErrNoPages  = errors.New("PDF has no pages")
	ErrNoText   = errors.New("no text on leading pages")
)

// ProgressFunc is called after each item settles with the number of settled
// items and the batch size. Calls are serialized.
type ProgressFunc func(done, total int)

// Enricher turns descriptors into records with extracted content.
type Enricher struct {
	client   *http.Client
	cfg      types.EnrichConfig
	logger   zerolog.Logger
	metrics  *observability.Metrics
	progress ProgressFunc
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithProgress installs a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Enricher) { e.progress = fn }
}

// WithMetrics records per-item outcomes on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Enricher) { e.metrics = m }
}

// New returns an Enricher. A nil client gets one with cfg.Timeout.
func New(client *http.Client, cfg types.EnrichConfig, logger zerolog.Logger, opts ...Option) *Enricher {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Pages <= 0 {
		cfg.Pages = defaultPages
	}
	if cfg.MaxPDFBytes <= 0 {
		cfg.MaxPDFBytes = defaultMaxPDFBytes
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	e := &Enricher{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "enrich").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich returns one record per descriptor, in input order. It waits for
// every item to settle; no item's failure cancels its siblings.
func (e *Enricher) Enrich(ctx context.Context, descs []types.Descriptor) []types.PaperRecord {
	records := make([]types.PaperRecord, len(descs))
	if len(descs) == 0 {
		return records
	}

	if err := os.MkdirAll(e.cfg.WorkDir, 0o755); err != nil {
		e.logger.Error().Err(err).Str("dir", e.cfg.WorkDir).Msg("creating work directory")
	}

	var (
		mu     sync.Mutex
		done   int
		failed int
	)

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)

	for i, d := range descs {
		g.Go(func() error {
			rec := types.NewRecord(d)
			content, err := e.enrichOne(ctx, d)
			if err != nil {
				e.logger.Warn().Err(err).Str("paper_id", d.ID).Msg("enrichment failed")
			}
			rec.Content = content
			records[i] = rec
			e.metrics.RecordEnrich(err == nil)

			mu.Lock()
			done++
			if err != nil {
				failed++
			}
			if e.progress != nil {
				e.progress(done, len(descs))
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	e.logger.Info().
		Int("total", len(descs)).
		Int("failed", failed).
		Msg("enrichment complete")
	return records
}

// enrichOne downloads d's PDF, extracts its leading pages, and removes the
// file whatever the outcome.
func (e *Enricher) enrichOne(ctx context.Context, d types.Descriptor) (string, error) {
	if d.PDFURL == "" {
		return "", fmt.Errorf("no PDF link for %s", d.ID)
	}

	path, err := e.download(ctx, d.PDFURL)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", d.ID, err)
	}
	defer os.Remove(path)

	text, err := ExtractText(path, e.cfg.Pages)
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", d.ID, err)
	}
	return text, nil
}

// download fetches url into a temporary file under WorkDir and returns its
// path. On error no file is left behind.
func (e *Enricher) download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	if e.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", e.cfg.UserAgent)
	}
	req.Header.Set("Accept", "application/pdf")

	resp, err := httputil.DoWithRetry(ctx, e.client, req, e.cfg.MaxRetries)
	if err != nil {
		return "", fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}
	if resp.ContentLength > e.cfg.MaxPDFBytes {
		return "", ErrTooLarge
	}

	tmpFile, err := os.CreateTemp(e.cfg.WorkDir, ".enrich-*.pdf")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	n, copyErr := io.Copy(tmpFile, io.LimitReader(resp.Body, e.cfg.MaxPDFBytes+1))
	closeErr := tmpFile.Close()
	switch {
	case copyErr != nil:
		os.Remove(tmpPath)
		return "", fmt.Errorf("writing download: %w", copyErr)
	case closeErr != nil:
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing temp file: %w", closeErr)
	case n > e.cfg.MaxPDFBytes:
		os.Remove(tmpPath)
		return "", ErrTooLarge
	}

	if ok, err := hasPDFMagic(tmpPath); err != nil || !ok {
		os.Remove(tmpPath)
		if err != nil {
			return "", err
		}
		return "", ErrNotPDF
	}
	return tmpPath, nil
}

var pdfMagic = []byte("%PDF-")

func hasPDFMagic(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(f, head); err != nil {
		return false, nil
	}
	return bytes.Equal(head, pdfMagic), nil
}
