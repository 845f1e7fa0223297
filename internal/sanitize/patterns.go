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
	"regexp"
	"strings"
)

// contextPatterns each capture exactly one group: the secret span.
var contextPatterns = []struct {
	kind    string
	pattern string
}{
	{"bearer_token", `(?i:\bbearer\s+)([A-Za-z0-9\-._~+/]{8,}=*)`},
	{"basic_auth", `(?i:\bbasic\s+)([A-Za-z0-9+/]{8,}=*)`},
	{"connection_string", `[A-Za-z][A-Za-z0-9+.\-]*://[^\s:/@'"]+:([^\s@'"/]{3,})@`},
	{"jwt", `\b(eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,})`},
	{"api_key_header", `(?i:x-api-key:\s*)([^\s"']{8,})`},
	{"assignment", `(?i:[A-Za-z0-9_]*(?:password|passwd|secret|token|api[_-]?key|access[_-]?key|auth[_-]?key|private[_-]?key|credentials?)["']?\s*[:=]\s*["']?)([^\s"',;&<>]{4,})`},
}

// contextRe is the union of contextPatterns. Alternative i owns capture
// group i+1.
var contextRe = func() *regexp.Regexp {
	parts := make([]string, len(contextPatterns))
	for i, p := range contextPatterns {
		parts[i] = "(?:" + p.pattern + ")"
	}
	return regexp.MustCompile(strings.Join(parts, "|"))
}()

// patternSpans evaluates every contextual pattern in one pass over s.
func patternSpans(s string) []span {
	var spans []span
	for _, m := range contextRe.FindAllStringSubmatchIndex(s, -1) {
		for i := range contextPatterns {
			lo, hi := m[2*(i+1)], m[2*(i+1)+1]
			if lo < 0 {
				continue
			}
			if s[lo:hi] == Placeholder || strings.HasPrefix(s[lo:], Placeholder) {
				break
			}
			spans = append(spans, span{start: lo, end: hi, layer: LayerPattern, kind: contextPatterns[i].kind})
			break
		}
	}
	return spans
}
