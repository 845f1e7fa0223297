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
	"encoding/base64"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	base64Re  = regexp.MustCompile(`[A-Za-z0-9+/_-]{16,}={0,2}`)
	percentRe = regexp.MustCompile(`[^\s"'<>]*%[0-9A-Fa-f]{2}[^\s"'<>]*`)
)

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.URLEncoding,
	base64.RawStdEncoding,
	base64.RawURLEncoding,
}

type replacement struct {
	start, end int
	text       string
}

// rescanEncoded decodes base64 and percent-encoded tokens, runs layers 1-3
// on the decoded text, and re-encodes anything that changed. The decoded
// form is never returned.
func (p *Pipeline) rescanEncoded(s string) (string, []Finding) {
	var (
		reps     []replacement
		findings []Finding
	)
	for _, loc := range percentRe.FindAllStringIndex(s, -1) {
		tok := s[loc[0]:loc[1]]
		decoded, err := url.QueryUnescape(tok)
		if err != nil || decoded == tok || !printable(decoded) {
			continue
		}
		clean, f := p.scan(decoded)
		if len(f) == 0 {
			continue
		}
		reps = append(reps, replacement{start: loc[0], end: loc[1], text: url.QueryEscape(clean)})
		findings = append(findings, encodedFindings(f, loc[0], "url")...)
	}

	for _, loc := range base64Re.FindAllStringIndex(s, -1) {
		if overlaps(reps, loc[0], loc[1]) {
			continue
		}
		tok := s[loc[0]:loc[1]]
		enc, decoded, ok := decodeBase64(tok)
		if !ok {
			continue
		}
		clean, f := p.scan(decoded)
		if len(f) == 0 {
			continue
		}
		reps = append(reps, replacement{start: loc[0], end: loc[1], text: enc.EncodeToString([]byte(clean))})
		findings = append(findings, encodedFindings(f, loc[0], "base64")...)
	}

	if len(reps) == 0 {
		return s, nil
	}
	return applyReplacements(s, reps), findings
}

func encodedFindings(inner []Finding, offset int, encoding string) []Finding {
	out := make([]Finding, 0, len(inner))
	for _, f := range inner {
		out = append(out, Finding{Layer: LayerEncoded, Kind: encoding + ":" + f.Kind, Offset: offset})
	}
	return out
}

func decodeBase64(tok string) (*base64.Encoding, string, bool) {
	for _, enc := range base64Encodings {
		raw, err := enc.DecodeString(tok)
		if err != nil || len(raw) < 4 {
			continue
		}
		if !utf8.Valid(raw) || !printable(string(raw)) {
			continue
		}
		return enc, string(raw), true
	}
	return nil, "", false
}

func printable(s string) bool {
	for _, r := range s {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func overlaps(reps []replacement, start, end int) bool {
	for _, r := range reps {
		if start < r.end && r.start < end {
			return true
		}
	}
	return false
}

func applyReplacements(s string, reps []replacement) string {
	// Replacements are collected per regex in ascending order but the two
	// passes interleave, so order them before splicing.
	for i := 1; i < len(reps); i++ {
		for j := i; j > 0 && reps[j].start < reps[j-1].start; j-- {
			reps[j], reps[j-1] = reps[j-1], reps[j]
		}
	}
	var b strings.Builder
	prev := 0
	for _, r := range reps {
		b.WriteString(s[prev:r.start])
		b.WriteString(r.text)
		prev = r.end
	}
	b.WriteString(s[prev:])
	return b.String()
}
