// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"strings"
)

// AffiliationState tags the classification outcome held by an Affiliation.
type AffiliationState int

const (
	// AffiliationPending means the record has not been classified yet.
	AffiliationPending AffiliationState = iota
	// AffiliationUnknown means the service found no listed affiliation.
	AffiliationUnknown
	// AffiliationFailed means the call failed or returned unusable text.
	AffiliationFailed
	// AffiliationClassified means Orgs holds the extracted organizations.
	AffiliationClassified
)

// Cell values written to the Affiliation column.
const (
	unknownCell = "Unknown"
	failedCell  = "Error"
)

// Affiliation is the classification outcome of one record. Pending and
// Failed records are picked up again by the next classification pass.
type Affiliation struct {
	State AffiliationState
	Orgs  []string
}

// Pending returns an unclassified affiliation.
func Pending() Affiliation { return Affiliation{State: AffiliationPending} }

// Unknown returns the "no affiliation listed" outcome.
func Unknown() Affiliation { return Affiliation{State: AffiliationUnknown} }

// Failed returns the "retry later" outcome.
func Failed() Affiliation { return Affiliation{State: AffiliationFailed} }

// Classified returns an affiliation holding orgs. An empty list collapses to
// Unknown.
func Classified(orgs ...string) Affiliation {
	orgs = cleanNames(orgs)
	if len(orgs) == 0 {
		return Unknown()
	}
	return Affiliation{State: AffiliationClassified, Orgs: orgs}
}

// NeedsClassification reports whether a classification pass should call the
// reasoning service for this record.
func (a Affiliation) NeedsClassification() bool {
	return a.State == AffiliationPending || a.State == AffiliationFailed
}

// Settled reports whether the affiliation holds a usable answer (Unknown or
// Classified).
func (a Affiliation) Settled() bool {
	return a.State == AffiliationUnknown || a.State == AffiliationClassified
}

// String returns the table cell encoding: "" for Pending, "Unknown", "Error",
// or a JSON array of organization names.
func (a Affiliation) String() string {
	switch a.State {
	case AffiliationUnknown:
		return unknownCell
	case AffiliationFailed:
		return failedCell
	case AffiliationClassified:
		data, err := json.Marshal(a.Orgs)
		if err != nil {
			return failedCell
		}
		return string(data)
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Affiliation) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Affiliation) UnmarshalText(text []byte) error {
	*a = ParseAffiliation(string(text))
	return nil
}

// ParseAffiliation decodes a table cell or a reasoning-service answer.
// Anything that is not empty, "Unknown", or a list decodes as Failed so the
// record is retried.
func ParseAffiliation(s string) Affiliation {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Pending()
	case strings.HasPrefix(s, failedCell):
		return Failed()
	case IsUnknownAnswer(s):
		return Unknown()
	}
	if orgs, ok := ParseStringList(s); ok {
		return Classified(orgs...)
	}
	return Failed()
}

// IsUnknownAnswer reports whether s is the "Unknown" sentinel, tolerating
// surrounding quotes, brackets, and a trailing period.
func IsUnknownAnswer(s string) bool {
	s = strings.Trim(strings.TrimSpace(s), "\"'`[]. ")
	return strings.EqualFold(s, unknownCell)
}

// ParseStringList parses a list of names (organizations, authors). It accepts
// a strict JSON array first, then a lenient bracketed list with single or
// double quoted (or bare) comma-separated items. A surrounding code fence is
// ignored; any other text outside the brackets means ok is false.
func ParseStringList(s string) (items []string, ok bool) {
	s = stripCodeFence(strings.TrimSpace(s))

	if err := json.Unmarshal([]byte(s), &items); err == nil {
		return cleanNames(items), true
	}

	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, false
	}
	body := s[1 : len(s)-1]

	var strict []string
	if err := json.Unmarshal([]byte("["+body+"]"), &strict); err == nil {
		return cleanNames(strict), true
	}
	return cleanNames(splitQuotedList(body)), true
}

// splitQuotedList splits a comma-separated list body where items may be
// single quoted, double quoted, or bare. A quote closes only when followed
// by a comma or the end of the body, so "King's College" survives.
func splitQuotedList(body string) []string {
	var items []string
	var cur strings.Builder
	var quote rune
	runes := []rune(body)

	flush := func() {
		items = append(items, strings.TrimSpace(cur.String()))
		cur.Reset()
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0 && r == quote && closesItem(runes[i+1:]):
			quote = 0
		case quote != 0:
			cur.WriteRune(r)
		case (r == '\'' || r == '"') && strings.TrimSpace(cur.String()) == "":
			cur.Reset()
			quote = r
		case r == ',':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return items
}

func closesItem(rest []rune) bool {
	for _, r := range rest {
		switch r {
		case ' ', '\t', '\n', '\r':
			continue
		case ',':
			return true
		default:
			return false
		}
	}
	return true
}

// stripCodeFence removes a surrounding ``` fence (with optional language tag).
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// cleanNames trims names, drops empties, and removes duplicates in order.
func cleanNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, o := range names {
		o = strings.TrimSpace(o)
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		out = append(out, o)
	}
	return out
}
