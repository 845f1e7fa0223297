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

package store

import (
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Tokenize splits sanitized request text into its distinct lowercase tokens,
// sorted. Shell punctuation and quoting separate tokens; path separators,
// dots, dashes and underscores stay inside them.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
		switch r {
		case '/', '.', '-', '_', '~', '*', ':', '@', '+', '%', '<', '>':
			return false
		}
		return true
	})
	if len(fields) == 0 {
		return nil
	}
	sort.Strings(fields)
	out := fields[:1]
	for _, f := range fields[1:] {
		if f != out[len(out)-1] {
			out = append(out, f)
		}
	}
	return out
}

// Jaccard returns |a ∩ b| / |a ∪ b| and |a ∩ b| for two sorted token sets.
func Jaccard(a, b []string) (score float64, shared int) {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			shared++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0, 0
	}
	return float64(shared) / float64(union), shared
}

type tokenEntry struct {
	digest string
	scope  string
	tokens []string
}

// tokenIndex groups token sets by (role, tool) so a query only compares
// against calls of the same shape.
type tokenIndex struct {
	mu     sync.RWMutex
	groups map[string]map[string]tokenEntry // group -> digest -> entry
}

func groupKey(role, tool string) string { return role + "\x00" + tool }

func (t *tokenIndex) add(r *Record) {
	if r.Text == "" {
		return
	}
	toks := Tokenize(r.Text)
	if len(toks) == 0 {
		return
	}
	g := groupKey(r.Key.Role, r.Key.Tool)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.groups == nil {
		t.groups = make(map[string]map[string]tokenEntry)
	}
	m := t.groups[g]
	if m == nil {
		m = make(map[string]tokenEntry)
		t.groups[g] = m
	}
	if _, ok := m[r.Digest]; !ok {
		m[r.Digest] = tokenEntry{digest: r.Digest, scope: r.Key.Scope, tokens: toks}
	}
}

type tokenMatch struct {
	digest string
	score  float64
	shared int
}

// query scores every entry in the group. Entries from other scopes are
// ignored when scope is set.
func (t *tokenIndex) query(role, tool, scope string, toks []string) []tokenMatch {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []tokenMatch
	for _, e := range t.groups[groupKey(role, tool)] {
		if scope != "" && e.scope != scope {
			continue
		}
		score, shared := Jaccard(toks, e.tokens)
		if shared == 0 {
			continue
		}
		out = append(out, tokenMatch{digest: e.digest, score: score, shared: shared})
	}
	return out
}

func (t *tokenIndex) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, m := range t.groups {
		n += len(m)
	}
	return n
}

func (t *tokenIndex) reset() {
	t.mu.Lock()
	t.groups = nil
	t.mu.Unlock()
}
