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
	"sort"
	"strings"

	"github.com/Epiphytic/hookwise/internal/decision"
)

// PathVerdict is the Tier-0 result for one tool call.
type PathVerdict struct {
	// Decision is None when no pattern applied.
	Decision decision.Decision

	// Rule names the list and pattern that decided, such as
	// "deny_write:tests/**" or "sensitive:.env*".
	Rule string

	// Sensitive is set when a sensitive-path pattern forced Ask.
	Sensitive bool

	// Kind is the tool's classification.
	Kind ToolKind

	// Paths are the relativized target paths.
	Paths []string
}

// EvaluatePaths runs Tier 0 for a tool call.
//
// The role-independent sensitive list is tested first and forces Ask on any
// match. Otherwise write targets are tested against deny_write then
// allow_write, and read targets against allow_read. With several paths the
// most restrictive verdict wins. No match is no-opinion.
func (c *Config) EvaluatePaths(role *Role, tool string, input map[string]any, cwd string) PathVerdict {
	kind := ClassifyTool(tool)
	raw := ExtractPaths(tool, input)
	v := PathVerdict{Kind: kind}
	for _, p := range raw {
		v.Paths = append(v.Paths, Relativize(p, cwd))
	}
	if len(v.Paths) == 0 {
		return v
	}

	for _, p := range v.Paths {
		if pat, ok := c.sensitive.MatchAny(matchForms(p, c.home)...); ok {
			v.Decision = decision.Ask
			v.Rule = "sensitive:" + pat
			v.Sensitive = true
			return v
		}
	}
	if role == nil {
		return v
	}

	for _, p := range v.Paths {
		forms := matchForms(p, c.home)
		var d decision.Decision
		var rule string
		switch kind {
		case KindWrite, KindShell:
			if pat, ok := role.denyWrite.MatchAny(forms...); ok {
				d, rule = decision.Deny, "deny_write:"+pat
			} else if pat, ok := role.allowWrite.MatchAny(forms...); ok {
				d, rule = decision.Allow, "allow_write:"+pat
			}
		case KindRead:
			if pat, ok := role.allowRead.MatchAny(forms...); ok {
				d, rule = decision.Allow, "allow_read:"+pat
			}
		}
		if d > v.Decision {
			v.Decision, v.Rule = d, rule
		}
	}

	// A shell command with one unmatched target is not fully covered by
	// allow_write, so it cannot be allowed outright.
	if v.Decision == decision.Allow && kind == KindShell {
		for _, p := range v.Paths {
			forms := matchForms(p, c.home)
			if _, ok := role.allowWrite.MatchAny(forms...); !ok {
				v.Decision, v.Rule = decision.None, ""
				break
			}
		}
	}
	return v
}

// Subject returns the normalized, sorted, newline-joined path set used in
// cache keys and supervisor prompts.
func (c *Config) Subject(paths []string) string {
	norm := c.NormalizePaths(paths)
	sort.Strings(norm)
	return strings.Join(norm, "\n")
}

// NormalizePaths maps each path through the category normalizer.
func (c *Config) NormalizePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, c.normalizer.Normalize(p))
	}
	return out
}
