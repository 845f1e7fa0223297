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

package scope

import (
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/Epiphytic/hookwise/internal/decision"
	"github.com/bmatcuk/doublestar/v4"
)

// Rule is an explicit override declared at one scope level.
//
// Empty Role and Tool match everything. A rule with neither Path nor Command
// applies to every call of the matching role and tool.
type Rule struct {
	Role      string            `yaml:"role,omitempty"`
	Tool      string            `yaml:"tool,omitempty"`
	Path      string            `yaml:"path,omitempty"`
	Command   string            `yaml:"command,omitempty"`
	Decision  decision.Decision `yaml:"decision"`
	Note      string            `yaml:"note,omitempty"`
	CreatedBy string            `yaml:"created_by,omitempty"`
	CreatedAt time.Time         `yaml:"created_at,omitempty"`
}

// Subject is the part of a request that override rules are matched on.
type Subject struct {
	Role    string
	Tool    string
	Command string

	// Paths holds both the relative and the category-normalized form of
	// every target path.
	Paths []string
}

// Describe renders a rule compactly for reasons and listings.
func (r Rule) Describe() string {
	var parts []string
	if r.Role != "" && r.Role != "*" {
		parts = append(parts, "role="+r.Role)
	}
	if r.Tool != "" && r.Tool != "*" {
		parts = append(parts, "tool="+r.Tool)
	}
	if r.Path != "" {
		parts = append(parts, "path="+r.Path)
	}
	if r.Command != "" {
		parts = append(parts, "command="+r.Command)
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}

// Matches reports whether the rule applies to s.
func (r Rule) Matches(s Subject) bool {
	if !matchName(r.Role, s.Role) || !matchName(r.Tool, s.Tool) {
		return false
	}
	if r.Path != "" {
		hit := false
		for _, p := range s.Paths {
			if ok, _ := doublestar.Match(r.Path, p); ok {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if r.Command != "" && !MatchCommand(r.Command, s.Command) {
		return false
	}
	return true
}

func matchName(pattern, name string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

// MatchCommand reports whether a shell command matches a command glob.
//
//	"git *"       matches "git push", "git push origin main"
//	"rm -rf *"    matches "rm -rf /tmp/build"
//	"*npm publish*" matches "cd pkg && npm publish --tag next"
//
// An empty pattern matches nothing. A "*" pattern matches everything.
func MatchCommand(pattern, cmd string) bool {
	cmd = strings.TrimSpace(cmd)
	switch {
	case pattern == "" || cmd == "":
		return false
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*"):
		return matchSegments(pattern, cmd)
	case strings.HasSuffix(pattern, "*") && strings.HasPrefix(cmd, strings.TrimSuffix(pattern, "*")):
		return true
	}
	ok, err := filepath.Match(pattern, cmd)
	return err == nil && ok
}

// matchSegments checks that the "*"-separated parts of pattern appear in
// order within s.
func matchSegments(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	pos := 0
	for i, part := range parts {
		if part == "" {
			continue
		}
		idx := strings.Index(s[pos:], part)
		if idx < 0 {
			return false
		}
		if i == len(parts)-1 && !strings.HasSuffix(pattern, "*") && !strings.HasSuffix(s, part) {
			return false
		}
		pos += idx + len(part)
	}
	return true
}

// Ruleset is the ordered list of rules at one level.
type Ruleset []Rule

// Evaluate returns the most restrictive decision among matching rules and
// the rule that produced it. A deny short-circuits.
func (rs Ruleset) Evaluate(s Subject) (decision.Decision, *Rule) {
	out := decision.None
	var hit *Rule
	for i := range rs {
		r := &rs[i]
		if !r.Decision.Decisive() || !r.Matches(s) {
			continue
		}
		if r.Decision == decision.Deny {
			return decision.Deny, r
		}
		if r.Decision > out {
			out, hit = r.Decision, r
		}
	}
	return out, hit
}

// GeneralizeCommand widens a concrete command into a reusable command glob.
// It keeps the first one or two tokens and wildcards the rest. Destructive
// commands are never generalized.
//
//	"npm install express"    → "npm install *"
//	"git push origin main"   → "git push *"
//	"ls"                     → "ls"
//	"rm -rf /tmp/build"      → "rm -rf /tmp/build"
func GeneralizeCommand(cmd string) string {
	tokens := strings.Fields(cmd)
	switch {
	case len(tokens) == 0:
		return "*"
	case len(tokens) == 1:
		return tokens[0]
	case isDestructive(tokens):
		return strings.Join(tokens, " ")
	case len(tokens) == 2:
		return strings.Join(tokens, " ") + " *"
	default:
		return tokens[0] + " " + tokens[1] + " *"
	}
}

var destructivePrefixes = []string{
	"rm", "chmod", "chown", "kill", "killall", "pkill", "dd", "mkfs", "fdisk",
	"reboot", "shutdown", "halt", "systemctl stop", "systemctl disable",
	"git push --force", "git reset --hard",
}

func isDestructive(tokens []string) bool {
	joined := strings.Join(tokens, " ")
	for _, p := range destructivePrefixes {
		if joined == p || strings.HasPrefix(joined, p+" ") {
			return true
		}
	}
	return false
}
