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

// Package sanitize scrubs secrets from raw tool-input text before it reaches
// any cache, index, log, or supervisor prompt.
//
// A Pipeline runs four ordered layers over its input:
//
//  1. literal secret prefixes, matched in one pass by an Aho-Corasick automaton
//  2. contextual patterns (bearer tokens, connection strings, key=value secrets)
//  3. a Shannon-entropy scan over long mixed tokens
//  4. a rescan of base64 and percent-encoded values through layers 1-3
//
// Every redacted span is replaced with Placeholder. Findings describe what was
// removed and where, but never carry the secret itself.
package sanitize

import (
	"sort"
	"strings"

	ahocorasick "github.com/BobuSumisu/aho-corasick"
)

// Placeholder replaces every redacted span.
const Placeholder = "<REDACTED>"

const (
	defaultEntropyThreshold = 4.0
	defaultEntropyMinLength = 20
)

// Layer identifies which pass of the pipeline produced a finding.
type Layer int

const (
	LayerPrefix Layer = iota + 1
	LayerPattern
	LayerEntropy
	LayerEncoded
)

func (l Layer) String() string {
	switch l {
	case LayerPrefix:
		return "prefix"
	case LayerPattern:
		return "pattern"
	case LayerEntropy:
		return "entropy"
	case LayerEncoded:
		return "encoded"
	default:
		return "unknown"
	}
}

// Finding records one redaction.
type Finding struct {
	Layer  Layer  `json:"layer"`
	Kind   string `json:"kind"`
	Offset int    `json:"offset"`
}

// Result is the output of a pipeline run.
type Result struct {
	Text     string
	Findings []Finding
}

// Redacted reports whether anything was removed.
func (r Result) Redacted() bool {
	return len(r.Findings) > 0
}

// Pipeline is an immutable, concurrency-safe sanitizer.
type Pipeline struct {
	trie             *ahocorasick.Trie
	entropyThreshold float64
	entropyMinLength int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEntropyThreshold sets the bits-per-character threshold above which a
// long token is treated as a secret.
func WithEntropyThreshold(bits float64) Option {
	return func(p *Pipeline) {
		if bits > 0 {
			p.entropyThreshold = bits
		}
	}
}

// WithEntropyMinLength sets the minimum token length considered by the
// entropy layer.
func WithEntropyMinLength(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.entropyMinLength = n
		}
	}
}

// New builds a Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		trie:             ahocorasick.NewTrieBuilder().AddStrings(prefixList()).Build(),
		entropyThreshold: defaultEntropyThreshold,
		entropyMinLength: defaultEntropyMinLength,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Sanitize runs all four layers over raw.
func (p *Pipeline) Sanitize(raw string) Result {
	text, findings := p.scan(raw)
	text, encoded := p.rescanEncoded(text)
	findings = append(findings, encoded...)
	return Result{Text: text, Findings: findings}
}

// scan runs layers 1-3.
func (p *Pipeline) scan(raw string) (string, []Finding) {
	var findings []Finding

	text, f := redact(raw, p.prefixSpans(raw))
	findings = append(findings, f...)

	text, f = redact(text, patternSpans(text))
	findings = append(findings, f...)

	text, f = redact(text, p.entropySpans(text))
	findings = append(findings, f...)

	return text, findings
}

// SanitizeInput returns a deep copy of a structured tool input with every
// string value sanitized. Map keys are left untouched.
func (p *Pipeline) SanitizeInput(input map[string]any) (map[string]any, []Finding) {
	if input == nil {
		return nil, nil
	}
	var findings []Finding
	out, _ := p.sanitizeValue(input, &findings).(map[string]any)
	return out, findings
}

func (p *Pipeline) sanitizeValue(v any, findings *[]Finding) any {
	switch val := v.(type) {
	case string:
		res := p.Sanitize(val)
		*findings = append(*findings, res.Findings...)
		return res.Text
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = p.sanitizeValue(inner, findings)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = p.sanitizeValue(inner, findings)
		}
		return out
	default:
		return v
	}
}

// span is a half-open byte range to redact.
type span struct {
	start, end int
	layer      Layer
	kind       string
}

// redact replaces spans in s with Placeholder. Overlapping spans are merged;
// the earliest span's kind is reported for the merged range.
func redact(s string, spans []span) (string, []Finding) {
	if len(spans) == 0 {
		return s, nil
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start == spans[j].start {
			return spans[i].end > spans[j].end
		}
		return spans[i].start < spans[j].start
	})

	merged := []span{spans[0]}
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start < last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}

	var b strings.Builder
	b.Grow(len(s))
	findings := make([]Finding, 0, len(merged))
	prev := 0
	for _, sp := range merged {
		b.WriteString(s[prev:sp.start])
		findings = append(findings, Finding{Layer: sp.layer, Kind: sp.kind, Offset: b.Len()})
		b.WriteString(Placeholder)
		prev = sp.end
	}
	b.WriteString(s[prev:])
	return b.String(), findings
}
