// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the arxiv-digest pipeline:
// paper descriptors and records, the affiliation outcome type, filter index
// sets, report entries, run summaries, and stage configuration.
package types

import "time"

// Descriptor is a candidate paper returned by the search gateway. It carries
// everything needed to build a PaperRecord once the PDF text is extracted.
type Descriptor struct {
	// ID is the arXiv identifier including its version suffix (e.g. "2502.01234v2").
	ID string `json:"id" yaml:"id"`

	Title    string   `json:"title" yaml:"title"`
	Authors  []string `json:"authors" yaml:"authors"`
	Abstract string   `json:"abstract" yaml:"abstract"`

	PrimaryCategory string   `json:"primary_category" yaml:"primary_category"`
	Categories      []string `json:"categories" yaml:"categories"`

	// URL is the abstract page (https://arxiv.org/abs/<id>).
	URL string `json:"url" yaml:"url"`

	// PDFURL is the document download link.
	PDFURL string `json:"pdf_url" yaml:"pdf_url"`

	Published time.Time `json:"published" yaml:"published"`
	Updated   time.Time `json:"updated" yaml:"updated"`
}

// PaperRecord is one row of the record store.
type PaperRecord struct {
	// PaperID is the unique key within a store snapshot.
	PaperID string `json:"paper_id" yaml:"paper_id"`

	Title    string   `json:"title" yaml:"title"`
	Authors  []string `json:"authors" yaml:"authors"`
	Abstract string   `json:"abstract" yaml:"abstract"`

	PrimaryCategory string   `json:"primary_category" yaml:"primary_category"`
	Categories      []string `json:"categories" yaml:"categories"`

	URL string `json:"url" yaml:"url"`

	// PDFURL is only carried in memory between search and enrichment.
	PDFURL string `json:"-" yaml:"-"`

	Published time.Time `json:"published" yaml:"published"`

	// Content is the extracted text of the first pages. Empty when
	// download or extraction failed.
	Content string `json:"content" yaml:"content"`

	Affiliation Affiliation `json:"affiliation" yaml:"affiliation"`
}

// NewRecord builds a PaperRecord from a descriptor with empty content and a
// pending affiliation.
func NewRecord(d Descriptor) PaperRecord {
	return PaperRecord{
		PaperID:         d.ID,
		Title:           d.Title,
		Authors:         d.Authors,
		Abstract:        d.Abstract,
		PrimaryCategory: d.PrimaryCategory,
		Categories:      d.Categories,
		URL:             d.URL,
		PDFURL:          d.PDFURL,
		Published:       d.Published,
	}
}
