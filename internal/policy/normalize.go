// Copyright 2026 The Hookwise Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package policy

import (
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

type categoryPattern struct {
	category string
	pattern  string
	// dir is the literal directory stripped from matches of "dir/**".
	dir     string
	literal bool
	depth   int
	fixed   int
}

// Normalizer maps concrete paths to category-qualified keys such as
// "security_reviews_output:findings.md".
type Normalizer struct {
	entries []categoryPattern
}

// NewNormalizer ranks every category pattern by specificity. More literal
// directory depth wins, then a longer literal prefix, then a longer pattern.
// Category name breaks remaining ties so results are deterministic.
func NewNormalizer(categories map[string][]string) *Normalizer {
	var entries []categoryPattern
	for name, patterns := range categories {
		for _, p := range patterns {
			entries = append(entries, newCategoryPattern(name, p))
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch {
		case a.literal != b.literal:
			return a.literal
		case a.depth != b.depth:
			return a.depth > b.depth
		case a.fixed != b.fixed:
			return a.fixed > b.fixed
		case len(a.pattern) != len(b.pattern):
			return len(a.pattern) > len(b.pattern)
		case a.category != b.category:
			return a.category < b.category
		default:
			return a.pattern < b.pattern
		}
	})
	return &Normalizer{entries: entries}
}

func newCategoryPattern(category, pattern string) categoryPattern {
	cp := categoryPattern{category: category, pattern: pattern}
	fixed := pattern
	if i := strings.IndexAny(pattern, globMeta); i >= 0 {
		fixed = pattern[:i]
	} else {
		cp.literal = true
	}
	cp.fixed = len(fixed)
	cp.depth = strings.Count(fixed, "/")
	if dir, ok := strings.CutSuffix(pattern, "/**"); ok && !strings.ContainsAny(dir, globMeta) {
		cp.dir = dir
	}
	return cp
}

// Category returns the most specific category matching p.
func (n *Normalizer) Category(p string) (string, bool) {
	e, ok := n.match(p)
	if !ok {
		return "", false
	}
	return e.category, true
}

// Normalize returns "<category>:<relative>" for the most specific matching
// category, or p unchanged when no category matches.
func (n *Normalizer) Normalize(p string) string {
	if p == "" {
		return p
	}
	clean := path.Clean(p)
	e, ok := n.match(clean)
	if !ok {
		return p
	}
	rel := clean
	if e.dir != "" {
		if r, ok := strings.CutPrefix(clean, e.dir+"/"); ok {
			rel = r
		} else if clean == e.dir {
			rel = "."
		}
	}
	return e.category + ":" + rel
}

func (n *Normalizer) match(p string) (categoryPattern, bool) {
	if n == nil {
		return categoryPattern{}, false
	}
	for _, e := range n.entries {
		if ok, _ := doublestar.Match(e.pattern, p); ok {
			return e, true
		}
	}
	return categoryPattern{}, false
}
