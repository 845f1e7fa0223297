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

package cli

import (
	"io"
	"os"

	"github.com/Epiphytic/hookwise/internal/decision"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	allowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	askStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	denyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Faint(true)
	headStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

// noColor returns true when the NO_COLOR environment variable is set.
func noColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

// supportsColor reports whether w is a terminal that should get ANSI colors.
// Respects the NO_COLOR convention (https://no-color.org/).
func supportsColor(w io.Writer) bool {
	if noColor() {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func paint(on bool, style lipgloss.Style, s string) string {
	if !on {
		return s
	}
	return style.Render(s)
}

func decisionStyle(d decision.Decision) lipgloss.Style {
	switch d {
	case decision.Allow:
		return allowStyle
	case decision.Ask:
		return askStyle
	default:
		return denyStyle
	}
}
