// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package filter

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/pdiddy/arxiv-digest/pkg/types"
)

// ErrUnparseable means a reply held no recognizable index list.
var ErrUnparseable = errors.New("reply is not an index list")

// ParseIndexList decodes a model reply into an index set. It tries a strict
// JSON array of integers (single quotes accepted), then the first bracketed
// group of comma or space separated integers anywhere in the reply. Anything
// else is ErrUnparseable.
func ParseIndexList(reply string) (types.IndexSet, error) {
	s := strings.TrimSpace(reply)

	var strict []int
	if err := json.Unmarshal([]byte(strings.ReplaceAll(s, "'", `"`)), &strict); err == nil {
		return types.NewIndexSet(strict...), nil
	}

	return parseLenient(s)
}

func parseLenient(s string) (types.IndexSet, error) {
	start := strings.IndexByte(s, '[')
	if start < 0 {
		return nil, ErrUnparseable
	}
	end := strings.IndexByte(s[start:], ']')
	if end < 0 {
		return nil, ErrUnparseable
	}
	body := s[start+1 : start+end]

	fields := strings.FieldsFunc(body, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	indices := make([]int, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"'`)
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, ErrUnparseable
		}
		indices = append(indices, n)
	}
	return types.NewIndexSet(indices...), nil
}
