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
	"strings"
)

// secretPrefixes maps well-known credential prefixes to a finding kind.
var secretPrefixes = map[string]string{
	"ghp_":        "github_token",
	"gho_":        "github_token",
	"ghu_":        "github_token",
	"ghs_":        "github_token",
	"ghr_":        "github_token",
	"github_pat_": "github_token",
	"sk-ant-":     "anthropic_key",
	"sk-proj-":    "openai_key",
	"sk-svcacct-": "openai_key",
	"sk_live_":    "stripe_key",
	"sk_test_":    "stripe_key",
	"rk_live_":    "stripe_key",
	"pk_live_":    "stripe_key",
	"xoxb-":       "slack_token",
	"xoxp-":       "slack_token",
	"xoxa-":       "slack_token",
	"xoxr-":       "slack_token",
	"xoxs-":       "slack_token",
	"AKIA":        "aws_access_key",
	"ASIA":        "aws_access_key",
	"AIza":        "google_api_key",
	"ya29.":       "google_oauth",
	"glpat-":      "gitlab_token",
	"npm_":        "npm_token",
	"pypi-":       "pypi_token",
	"hf_":         "huggingface_token",
	"SG.":         "sendgrid_key",
	"shpat_":      "shopify_token",
	"dop_v1_":     "digitalocean_token",
	pemPrefix:     "private_key",
}

const pemPrefix = "-----BEGIN "

// minSecretTail is the shortest run after a prefix that is treated as a
// secret. Shorter runs are usually prose ("hf_hub", "npm_config").
const minSecretTail = 8

func prefixList() []string {
	out := make([]string, 0, len(secretPrefixes))
	for p := range secretPrefixes {
		out = append(out, p)
	}
	return out
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isSecretByte(c byte) bool {
	switch c {
	case '-', '.', '/', '+', '=':
		return true
	}
	return isWordByte(c)
}

// prefixSpans finds every dictionary prefix in s in a single automaton pass.
func (p *Pipeline) prefixSpans(s string) []span {
	var spans []span
	for _, m := range p.trie.MatchString(s) {
		start := int(m.Pos())
		prefix := m.MatchString()
		if start > 0 && isWordByte(s[start-1]) {
			continue
		}
		kind := secretPrefixes[prefix]

		if prefix == pemPrefix {
			if end, ok := pemEnd(s, start); ok {
				spans = append(spans, span{start: start, end: end, layer: LayerPrefix, kind: kind})
			}
			continue
		}

		end := start + len(prefix)
		for end < len(s) && isSecretByte(s[end]) {
			end++
		}
		if end-(start+len(prefix)) < minSecretTail {
			continue
		}
		spans = append(spans, span{start: start, end: end, layer: LayerPrefix, kind: kind})
	}
	return spans
}

// pemEnd returns the end offset of a PEM private key block starting at
// start. Certificates and public keys are not secrets and are skipped. An
// unterminated block is redacted to the end of s.
func pemEnd(s string, start int) (int, bool) {
	header := s[start:]
	if nl := strings.IndexAny(header, "\n"); nl >= 0 {
		header = header[:nl]
	}
	if !strings.Contains(header, "PRIVATE KEY") {
		return 0, false
	}
	rest := s[start+len(pemPrefix):]
	idx := strings.Index(rest, "-----END ")
	if idx < 0 {
		return len(s), true
	}
	tailStart := start + len(pemPrefix) + idx + len("-----END ")
	closeIdx := strings.Index(s[tailStart:], "-----")
	if closeIdx < 0 {
		return len(s), true
	}
	return tailStart + closeIdx + len("-----"), true
}
