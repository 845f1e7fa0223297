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
	"path/filepath"
	"strings"
)

// ToolKind classifies a tool by how Tier 0 treats its paths.
type ToolKind int

const (
	// KindOther tools carry no path Tier 0 can judge.
	KindOther ToolKind = iota

	// KindWrite tools create or modify the file named in their input.
	KindWrite

	// KindRead tools only read.
	KindRead

	// KindShell tools run a command whose write targets are extracted.
	KindShell
)

func (k ToolKind) String() string {
	switch k {
	case KindWrite:
		return "write"
	case KindRead:
		return "read"
	case KindShell:
		return "shell"
	default:
		return "other"
	}
}

// Tool names for Claude Code and Gemini CLI hosts.
var toolKinds = map[string]ToolKind{
	"Write":               KindWrite,
	"Edit":                KindWrite,
	"MultiEdit":           KindWrite,
	"NotebookEdit":        KindWrite,
	"write_file":          KindWrite,
	"replace":             KindWrite,
	"Read":                KindRead,
	"Glob":                KindRead,
	"Grep":                KindRead,
	"LS":                  KindRead,
	"NotebookRead":        KindRead,
	"read_file":           KindRead,
	"list_directory":      KindRead,
	"glob":                KindRead,
	"search_file_content": KindRead,
	"Bash":                KindShell,
	"run_shell_command":   KindShell,
}

// pathFields are checked in order for the tool's target path.
var pathFields = []string{"file_path", "notebook_path", "absolute_path", "path"}

// ClassifyTool returns how Tier 0 treats the named tool.
func ClassifyTool(name string) ToolKind {
	return toolKinds[name]
}

// Command returns the shell command from a tool input, if any.
func Command(input map[string]any) string {
	cmd, _ := input["command"].(string)
	return cmd
}

// ExtractPaths returns the raw target paths of a tool call.
func ExtractPaths(tool string, input map[string]any) []string {
	switch ClassifyTool(tool) {
	case KindWrite, KindRead:
		for _, field := range pathFields {
			if p, ok := input[field].(string); ok && strings.TrimSpace(p) != "" {
				return []string{p}
			}
		}
		return nil
	case KindShell:
		return ShellWriteTargets(Command(input))
	default:
		return nil
	}
}

// Relativize cleans p and makes it relative to cwd when it lies inside cwd.
// Relative paths escaping cwd and absolute paths outside it are returned as
// cleaned absolute paths. "~" prefixes are kept as written.
func Relativize(p, cwd string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "~" || strings.HasPrefix(p, "~/") {
		return p
	}
	if !filepath.IsAbs(p) {
		clean := filepath.Clean(p)
		if clean != ".." && !strings.HasPrefix(clean, "../") {
			return filepath.ToSlash(clean)
		}
		if cwd == "" {
			return filepath.ToSlash(clean)
		}
		p = filepath.Join(cwd, clean)
	}
	clean := filepath.Clean(p)
	if cwd != "" {
		if rel, err := filepath.Rel(filepath.Clean(cwd), clean); err == nil && rel != ".." && !strings.HasPrefix(rel, "../") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(clean)
}

// matchForms returns the forms of a relativized path that patterns are
// tested against. Paths under the home directory are matched in both their
// absolute and "~/" spellings. Project-relative paths are matched as-is, so
// the project's own location never affects the verdict.
func matchForms(p, home string) []string {
	forms := []string{p}
	if home == "" {
		return forms
	}
	h := filepath.ToSlash(filepath.Clean(home))
	switch {
	case strings.HasPrefix(p, "~/"):
		forms = append(forms, h+"/"+p[2:])
	case filepath.IsAbs(p):
		if rest, ok := strings.CutPrefix(p, h+"/"); ok {
			forms = append(forms, "~/"+rest)
		}
	}
	return dedupe(forms)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
