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

// Package hookio reads hook input from agent hosts and renders decisions in
// the host's output format.
package hookio

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Epiphytic/hookwise/internal/decision"
)

// maxInput bounds a hook payload. Tool inputs carry file contents, so this
// is generous.
const maxInput = 16 << 20

// Input is the JSON a host sends on stdin.
type Input struct {
	SessionID      string         `json:"session_id"`
	ToolName       string         `json:"tool_name"`
	ToolInput      map[string]any `json:"tool_input"`
	Cwd            string         `json:"cwd"`
	HookEventName  string         `json:"hook_event_name"`
	TranscriptPath string         `json:"transcript_path,omitempty"`
}

// ErrMalformed wraps every input parse failure.
var ErrMalformed = errors.New("hookio: malformed hook input")

// ReadInput decodes one hook payload. Tool events must name a session and a
// tool; other events only need a session.
func ReadInput(r io.Reader) (Input, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxInput+1))
	if err != nil {
		return Input{}, fmt.Errorf("%w: read: %v", ErrMalformed, err)
	}
	if len(data) > maxInput {
		return Input{}, fmt.Errorf("%w: payload exceeds %d bytes", ErrMalformed, maxInput)
	}
	var in Input
	if err := json.Unmarshal(data, &in); err != nil {
		return Input{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(in.SessionID) == "" {
		return Input{}, fmt.Errorf("%w: missing session_id", ErrMalformed)
	}
	if in.ToolInput == nil {
		in.ToolInput = map[string]any{}
	}
	return in, nil
}

// IsToolEvent reports whether in describes a tool call.
func (in Input) IsToolEvent() bool {
	return in.ToolName != ""
}

// Format is a host output format.
type Format string

const (
	// FormatClaude is the nested hookSpecificOutput shape. Deny exits 1.
	FormatClaude Format = "claude"

	// FormatGemini is the flat decision/reason shape. Deny exits 2.
	FormatGemini Format = "gemini"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatClaude, FormatGemini:
		return f, nil
	case "":
		return FormatClaude, nil
	default:
		return "", fmt.Errorf("hookio: unknown format %q (want claude or gemini)", s)
	}
}

// ExitCode is the process exit status for d. A surviving ask exits like a
// deny so that hosts which ignore the JSON still block.
func (f Format) ExitCode(d decision.Decision) int {
	if d == decision.Allow {
		return 0
	}
	if f == FormatGemini {
		return 2
	}
	return 1
}

type claudeOutput struct {
	HookSpecificOutput claudeDecision `json:"hookSpecificOutput"`
}

type claudeDecision struct {
	HookEventName            string `json:"hookEventName"`
	PermissionDecision       string `json:"permissionDecision,omitempty"`
	PermissionDecisionReason string `json:"permissionDecisionReason,omitempty"`
	AdditionalContext        string `json:"additionalContext,omitempty"`
}

type geminiOutput struct {
	Decision      string `json:"decision,omitempty"`
	Reason        string `json:"reason,omitempty"`
	SystemMessage string `json:"systemMessage,omitempty"`
}

// WriteDecision renders a tool-call decision and returns the exit code. An
// undecided result is rendered as deny.
func (f Format) WriteDecision(w io.Writer, d decision.Decision, reason string) (int, error) {
	if !d.Decisive() {
		d = decision.Deny
	}
	var out any
	switch f {
	case FormatGemini:
		out = geminiOutput{Decision: d.String(), Reason: reason}
	default:
		out = claudeOutput{HookSpecificOutput: claudeDecision{
			HookEventName:            "PreToolUse",
			PermissionDecision:       d.String(),
			PermissionDecisionReason: reason,
		}}
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		return f.ExitCode(decision.Deny), fmt.Errorf("hookio: write output: %w", err)
	}
	return f.ExitCode(d), nil
}

// WriteContext renders informational context for a non-tool event such as
// SessionStart. It never blocks the host.
func (f Format) WriteContext(w io.Writer, event, text string) error {
	var out any
	switch f {
	case FormatGemini:
		out = geminiOutput{SystemMessage: text}
	default:
		if event == "" {
			event = "SessionStart"
		}
		out = claudeOutput{HookSpecificOutput: claudeDecision{HookEventName: event, AdditionalContext: text}}
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		return fmt.Errorf("hookio: write output: %w", err)
	}
	return nil
}
