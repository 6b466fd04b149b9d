// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package orgs resolves the target organization list used by the org
// filter.
package orgs

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Defaults is the target list used when nothing else is configured.
var Defaults = []string{
	"Google",
	"Meta",
	"Microsoft",
	"OpenAI",
	"Anthropic",
	"DeepMind",
	"Stanford",
	"Alibaba",
	"Huawei",
	"Baidu",
	"Peking University",
}

// File is the on-disk org list. Either form is accepted:
//
//	organizations: [Google, Meta]
//
// or a bare YAML sequence.
type File struct {
	Organizations []string `yaml:"organizations"`
}

// Load reads an org list from path.
func Load(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading org file %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		var list []string
		if listErr := yaml.Unmarshal(data, &list); listErr != nil {
			return nil, fmt.Errorf("parsing org file %s: %w", path, err)
		}
		f.Organizations = list
	}
	return Normalize(f.Organizations), nil
}

// Resolve picks the target list: explicit orgs first, then the org file,
// then Defaults. A nil explicit list with no file means Defaults; callers
// that want the org filter off pass disabled.
func Resolve(explicit []string, file string, disabled bool) ([]string, error) {
	if disabled {
		return nil, nil
	}
	if list := Normalize(explicit); len(list) > 0 {
		return list, nil
	}
	if file != "" {
		return Load(file)
	}
	return append([]string(nil), Defaults...), nil
}

// Normalize trims names, splits comma-joined entries, and drops empties and
// case-insensitive duplicates, keeping first-seen order.
func Normalize(names []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range names {
		for _, part := range strings.Split(n, ",") {
			part = strings.TrimSpace(part)
			key := strings.ToLower(part)
			if part == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, part)
		}
	}
	return out
}
