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
	"regexp"
	"strings"
	"unicode"
)

// heredocRe matches a heredoc start (<<EOF, << 'EOF', <<-"END").
var heredocRe = regexp.MustCompile(`<<-?\s*['"]?(\w+)['"]?`)

// stripHeredocBodies removes heredoc bodies so their content is not
// mistaken for commands. The opening and closing lines are kept.
//
//	Input:  "cat << 'EOF' > notes.txt\nrm -rf /\nEOF"
//	Output: "cat << 'EOF' > notes.txt\nEOF"
func stripHeredocBodies(cmd string) string {
	lines := strings.Split(cmd, "\n")
	if len(lines) <= 1 {
		return cmd
	}

	result := make([]string, 0, len(lines))
	var delim string
	inHeredoc := false
	for _, line := range lines {
		if inHeredoc {
			if strings.TrimSpace(line) == delim {
				inHeredoc = false
				result = append(result, line)
			}
			continue
		}
		result = append(result, line)
		if m := heredocRe.FindStringSubmatch(line); len(m) > 1 {
			delim = m[1]
			inHeredoc = true
		}
	}
	return strings.Join(result, "\n")
}

// splitCompound splits a shell command on unquoted &&, ||, ;, | and
// newlines. Quoted or escaped delimiters are not split on.
func splitCompound(cmd string) []string {
	var (
		segments []string
		cur      strings.Builder
		inSingle bool
		inDouble bool
		escaped  bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			segments = append(segments, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(cmd); i++ {
		ch := cmd[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && !inSingle:
			escaped = true
		case ch == '\'' && !inDouble:
			inSingle = !inSingle
		case ch == '"' && !inSingle:
			inDouble = !inDouble
		case inSingle || inDouble:
		case i+1 < len(cmd) && (cmd[i:i+2] == "&&" || cmd[i:i+2] == "||"):
			flush()
			i++
			continue
		case ch == ';' || ch == '|' || ch == '\n':
			flush()
			continue
		}
		cur.WriteByte(ch)
	}
	flush()
	return segments
}

// shellFields splits a command segment into words, stripping quotes and
// backslash escapes.
func shellFields(seg string) []string {
	var (
		fields []string
		cur    strings.Builder
		inWord bool
	)
	emit := func() {
		if inWord {
			fields = append(fields, cur.String())
			cur.Reset()
			inWord = false
		}
	}
	for i := 0; i < len(seg); i++ {
		ch := seg[i]
		switch {
		case ch == ' ' || ch == '\t':
			emit()
		case ch == '\'':
			inWord = true
			for i++; i < len(seg) && seg[i] != '\''; i++ {
				cur.WriteByte(seg[i])
			}
		case ch == '"':
			inWord = true
			for i++; i < len(seg) && seg[i] != '"'; i++ {
				if seg[i] == '\\' && i+1 < len(seg) {
					i++
				}
				cur.WriteByte(seg[i])
			}
		case ch == '\\' && i+1 < len(seg):
			inWord = true
			i++
			cur.WriteByte(seg[i])
		default:
			inWord = true
			cur.WriteByte(ch)
		}
	}
	emit()
	return fields
}

func isEnvAssignment(token string) bool {
	eq := strings.IndexByte(token, '=')
	if eq <= 0 {
		return false
	}
	for i, r := range token[:eq] {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

// ShellWriteTargets returns the paths a shell command may write, modify or
// delete, in order of appearance and without duplicates.
func ShellWriteTargets(cmd string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" || p == "-" || strings.HasPrefix(p, "&") || p == "/dev/null" || p == "/dev/stdout" || p == "/dev/stderr" {
			return
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, seg := range splitCompound(stripHeredocBodies(cmd)) {
		words := shellFields(seg)
		words = redirectTargets(words, add)
		for len(words) > 0 && (isEnvAssignment(words[0]) || words[0] == "sudo" || words[0] == "command" || words[0] == "env") {
			words = words[1:]
		}
		if len(words) == 0 {
			continue
		}
		for _, p := range commandTargets(words) {
			add(p)
		}
	}
	return out
}

// redirectTargets reports output redirection targets to add and returns the
// words with all redirections removed.
func redirectTargets(words []string, add func(string)) []string {
	rest := make([]string, 0, len(words))
	for i := 0; i < len(words); i++ {
		w := words[i]
		if strings.HasPrefix(w, "<") {
			// Input redirection and heredoc markers name no write target.
			if w == "<" && i+1 < len(words) {
				i++
			}
			continue
		}
		idx := strings.IndexByte(w, '>')
		if idx < 0 {
			rest = append(rest, w)
			continue
		}
		head := w[:idx]
		target := strings.TrimLeft(w[idx:], ">|")
		if head != "" && strings.Trim(head, "0123456789&") != "" {
			rest = append(rest, head)
		}
		if target == "" && i+1 < len(words) {
			i++
			target = words[i]
		}
		add(target)
	}
	return rest
}

func positional(args []string) []string {
	var out []string
	for i, a := range args {
		if a == "--" {
			return append(out, args[i+1:]...)
		}
		if strings.HasPrefix(a, "-") && a != "-" {
			continue
		}
		out = append(out, a)
	}
	return out
}

func commandTargets(words []string) []string {
	name := words[0]
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	args := words[1:]

	switch name {
	case "rm", "rmdir", "mkdir", "touch", "tee", "truncate", "shred", "unlink":
		return positional(args)
	case "mv":
		return positional(args)
	case "cp", "install", "ln":
		pos := positional(args)
		if len(pos) == 0 {
			return nil
		}
		return pos[len(pos)-1:]
	case "chmod", "chown", "chgrp":
		pos := positional(args)
		if len(pos) < 2 {
			return nil
		}
		return pos[1:]
	case "sed":
		inPlace := false
		for _, a := range args {
			if strings.HasPrefix(a, "-i") || a == "--in-place" || strings.HasPrefix(a, "--in-place=") {
				inPlace = true
			}
		}
		if !inPlace {
			return nil
		}
		pos := positional(args)
		if len(pos) < 2 {
			return nil
		}
		return pos[1:]
	case "git":
		for i, a := range args {
			if a == "--" && i > 0 && (args[0] == "checkout" || args[0] == "restore") {
				return args[i+1:]
			}
		}
	case "curl":
		return flagValues(args, "-o", "--output")
	case "wget":
		return flagValues(args, "-O", "--output-document")
	case "dd":
		for _, a := range args {
			if v, ok := strings.CutPrefix(a, "of="); ok {
				return []string{v}
			}
		}
	}
	return nil
}

func flagValues(args []string, flags ...string) []string {
	var out []string
	for i, a := range args {
		for _, f := range flags {
			switch {
			case a == f && i+1 < len(args):
				out = append(out, args[i+1])
			case strings.HasPrefix(a, f+"="):
				out = append(out, strings.TrimPrefix(a, f+"="))
			}
		}
	}
	return out
}
