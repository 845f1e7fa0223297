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

package sanitize

import (
	"math"
	"strings"
)

// isTokenDelim reports whether c separates tokens for the entropy scan.
func isTokenDelim(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '"', '\'', '`', '=', ':', ',', ';',
		'(', ')', '{', '}', '[', ']', '<', '>', '&', '|', '\\', '@', '?':
		return true
	}
	return false
}

// ShannonEntropy returns the entropy of s in bits per byte.
func ShannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	var counts [256]int
	for i := 0; i < len(s); i++ {
		counts[s[i]]++
	}
	n := float64(len(s))
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

func (p *Pipeline) entropySpans(s string) []span {
	var spans []span
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		tok := s[start:end]
		if p.highEntropy(tok) {
			spans = append(spans, span{start: start, end: end, layer: LayerEntropy, kind: "high_entropy"})
		}
		start = -1
	}
	for i := 0; i < len(s); i++ {
		if isTokenDelim(s[i]) {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
		}
	}
	flush(len(s))
	return spans
}

func (p *Pipeline) highEntropy(tok string) bool {
	if len(tok) < p.entropyMinLength {
		return false
	}
	if looksLikePath(tok) {
		return false
	}
	return ShannonEntropy(tok) > p.entropyThreshold
}

// looksLikePath reports whether tok is a slash-separated path whose segments
// are all short. Long random segments still count as secrets.
func looksLikePath(tok string) bool {
	if !strings.Contains(tok, "/") {
		return false
	}
	for _, seg := range strings.Split(tok, "/") {
		if len(seg) >= 20 {
			return false
		}
	}
	return true
}
