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
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const globMeta = `*?[{\`

// GlobSet is a compiled set of path globs. Literal patterns and "dir/**"
// patterns are indexed in maps so most lookups never run the glob matcher.
type GlobSet struct {
	patterns []string
	literal  map[string]string
	prefix   map[string]string
	globs    []string
}

// CompileGlobs validates and indexes patterns.
func CompileGlobs(patterns []string) (*GlobSet, error) {
	g := &GlobSet{
		literal: make(map[string]string),
		prefix:  make(map[string]string),
	}
	for _, raw := range patterns {
		p := cleanPattern(raw)
		if err := validateGlob(p); err != nil {
			return nil, err
		}
		g.patterns = append(g.patterns, p)

		switch {
		case !strings.ContainsAny(p, globMeta):
			if _, ok := g.literal[p]; !ok {
				g.literal[p] = p
			}
		case strings.HasSuffix(p, "/**") && !strings.ContainsAny(strings.TrimSuffix(p, "/**"), globMeta):
			dir := strings.TrimSuffix(p, "/**")
			if _, ok := g.prefix[dir]; !ok {
				g.prefix[dir] = p
			}
		default:
			g.globs = append(g.globs, p)
		}
	}
	return g, nil
}

// MustCompileGlobs is like CompileGlobs but panics on an invalid pattern.
func MustCompileGlobs(patterns ...string) *GlobSet {
	g, err := CompileGlobs(patterns)
	if err != nil {
		panic(err)
	}
	return g
}

// Match reports whether name matches any pattern, and which one.
func (g *GlobSet) Match(name string) (string, bool) {
	if g == nil || name == "" {
		return "", false
	}
	name = path.Clean(name)
	if p, ok := g.literal[name]; ok {
		return p, true
	}
	if len(g.prefix) > 0 {
		for dir := name; ; dir = path.Dir(dir) {
			if p, ok := g.prefix[dir]; ok {
				return p, true
			}
			if dir == "." || dir == "/" || !strings.Contains(dir, "/") {
				break
			}
		}
	}
	for _, p := range g.globs {
		if ok, _ := doublestar.Match(p, name); ok {
			return p, true
		}
	}
	return "", false
}

// MatchAny reports the first pattern matching any of names.
func (g *GlobSet) MatchAny(names ...string) (string, bool) {
	for _, n := range names {
		if p, ok := g.Match(n); ok {
			return p, true
		}
	}
	return "", false
}

// Patterns returns the compiled patterns in declaration order.
func (g *GlobSet) Patterns() []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.patterns...)
}

// Len returns the number of patterns.
func (g *GlobSet) Len() int {
	if g == nil {
		return 0
	}
	return len(g.patterns)
}

func cleanPattern(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "./")
	return p
}

func validateGlob(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("empty glob pattern")
	}
	if !doublestar.ValidatePattern(p) {
		return fmt.Errorf("invalid glob pattern %q", p)
	}
	return nil
}
