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

package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/Epiphytic/hookwise/internal/decision"
	"github.com/Epiphytic/hookwise/internal/store"
)

const maxSummaryWidth = 80

// recordSummary is the one-line request text shown for a record.
func recordSummary(r store.Record) string {
	text := strings.TrimSpace(r.Text)
	if strings.HasPrefix(text, "{") || text == "" {
		// Structured inputs read better as their subject.
		if s := strings.TrimSpace(strings.ReplaceAll(r.Key.Subject, "\n", " ")); s != "" {
			return s
		}
	}
	return strings.Join(strings.Fields(text), " ")
}

func decisionIcon(d decision.Decision) string {
	switch d {
	case decision.Allow:
		return "✅"
	case decision.Deny:
		return "\U0001f534"
	case decision.Ask:
		return "\U0001f7e1"
	default:
		return "•"
	}
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}

// RelativeTime formats the time elapsed since ts, such as "5m ago".
func RelativeTime(now, ts time.Time) string {
	d := now.Sub(ts)
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Second:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm ago", h, m)
		}
		return fmt.Sprintf("%dh ago", h)
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// FormatRecord renders a record as one line.
func FormatRecord(r store.Record) string {
	return fmt.Sprintf("%s %s %-6s %-5s %-12s %-9s %q [%s/%s]",
		decisionIcon(r.Decision),
		r.Timestamp.Local().Format("15:04:05"),
		r.Key.Role,
		r.Decision,
		truncateRunes(r.Key.Tool, 12),
		truncateRunes(r.Session, 9),
		truncateRunes(recordSummary(r), maxSummaryWidth),
		r.Tier,
		r.Rule,
	)
}
