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

// Package watch follows the decision log for `hookwise monitor`.
package watch

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Epiphytic/hookwise/internal/decision"
	"github.com/Epiphytic/hookwise/internal/store"
	"github.com/charmbracelet/lipgloss"
)

// Config holds settings for a monitor stream.
type Config struct {
	// LogFile is the JSONL decision log to follow.
	LogFile string

	// FromStart replays the existing log before following. Otherwise only
	// records appended after the stream starts are shown.
	FromStart bool

	// Color renders lines in decision colors.
	Color bool

	Role     string
	Decision string
	Tool     string
}

// Stats tracks running totals of streamed decisions.
type Stats struct {
	Total int
	Allow int
	Ask   int
	Deny  int
}

func (s *Stats) add(d decision.Decision) {
	s.Total++
	switch d {
	case decision.Allow:
		s.Allow++
	case decision.Ask:
		s.Ask++
	case decision.Deny:
		s.Deny++
	}
}

// Summary is a one-line rendering of the totals.
func (s Stats) Summary() string {
	return fmt.Sprintf("%d decisions: %d allow, %d ask, %d deny", s.Total, s.Allow, s.Ask, s.Deny)
}

var (
	allowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	askStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	denyStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Matches reports whether r passes the configured filters.
func (c Config) Matches(r store.Record) bool {
	if c.Role != "" && !strings.EqualFold(c.Role, r.Key.Role) {
		return false
	}
	if c.Decision != "" && !strings.EqualFold(c.Decision, r.Decision.String()) {
		return false
	}
	if c.Tool != "" && !strings.EqualFold(c.Tool, r.Key.Tool) {
		return false
	}
	return true
}

// Stream prints matching records to w as they are appended, one line each,
// until ctx is done. It returns the totals of what it printed.
func Stream(ctx context.Context, cfg Config, w io.Writer) (Stats, error) {
	tl := newFileTailer(cfg.LogFile)
	if !cfg.FromStart {
		tl.skipExisting = true
	}
	var stats Stats
	for evt := range tl.start(ctx) {
		if evt.err != nil {
			line := fmt.Sprintf("monitor: %v", evt.err)
			if cfg.Color {
				line = errStyle.Render(line)
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return stats, err
			}
			continue
		}
		if !cfg.Matches(evt.record) {
			continue
		}
		stats.add(evt.record.Decision)
		line := FormatRecord(evt.record)
		if cfg.Color {
			line = colorize(line, evt.record.Decision)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func colorize(line string, d decision.Decision) string {
	switch d {
	case decision.Allow:
		return allowStyle.Render(line)
	case decision.Ask:
		return askStyle.Render(line)
	case decision.Deny:
		return denyStyle.Render(line)
	default:
		return line
	}
}
