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

// Package sdk embeds the hookwise cascade in a long-lived agent runtime.
//
// A wrapped tool function is evaluated against the session's role before it
// runs. Denied calls return *ErrDenied; calls that still need a human after
// the approval wait return *ErrDenied with Decision "ask".
//
// Basic usage:
//
//	hw, err := sdk.Open("/path/to/project")
//	...
//	_ = hw.Register("session-1", "coder", "fix the parser")
//	ctx = sdk.WithSession(ctx, "session-1")
//	safeBash := hw.Wrap("Bash", runBash)
//	out, err := safeBash(ctx, map[string]any{"command": "go test ./..."})
package sdk

import "fmt"

// ErrDenied is returned when a tool call is not allowed.
type ErrDenied struct {
	// Tool is the blocked tool name.
	Tool string

	// Decision is "deny", or "ask" when a human is still required.
	Decision string

	// Tier and Rule name what decided.
	Tier string
	Rule string

	Message string
}

// Error implements the error interface.
func (e *ErrDenied) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("hookwise: %s %q by %s/%s: %s", e.verb(), e.Tool, e.Tier, e.Rule, e.Message)
	}
	return fmt.Sprintf("hookwise: %s %q: %s", e.verb(), e.Tool, e.Message)
}

func (e *ErrDenied) verb() string {
	if e.Decision == "ask" {
		return "approval required for"
	}
	return "denied"
}

// NeedsApproval reports whether the call was held for a human rather than
// denied outright.
func (e *ErrDenied) NeedsApproval() bool {
	return e.Decision == "ask"
}
