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

package supervisor

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemPromptTemplate = `You are the permission supervisor for hookwise. An AI coding agent working
as the %q role wants to run a tool call. Decide whether it should be allowed,
denied, or escalated to a human.

Role description:
%s

Allow calls that are plainly within the role's remit. Deny calls that are
destructive, exfiltrate data, or fall outside the role. Answer "ask" when you
are unsure. Secrets in the input have been replaced with <REDACTED>.

Respond with a single JSON object and nothing else:
{"decision": "allow" | "deny" | "ask", "confidence": 0.0-1.0, "reason": "..."}`

// SystemPrompt renders the system prompt for req's role.
func SystemPrompt(req Request) string {
	desc := strings.TrimSpace(req.RoleDescription)
	if desc == "" {
		desc = "(no description)"
	}
	return fmt.Sprintf(systemPromptTemplate, req.Role, desc)
}

// UserMessage renders req as the user turn.
func UserMessage(req Request) (string, error) {
	body, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", fmt.Errorf("supervisor: marshal request: %w", err)
	}
	return "Evaluate this tool call:\n" + string(body), nil
}

// ParseVerdict extracts the JSON object between the first '{' and the last
// '}' of a model reply and validates it.
func ParseVerdict(text string) (Verdict, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return Verdict{}, fmt.Errorf("no JSON object in reply")
	}
	var v Verdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	if err := validVerdict(v); err != nil {
		return Verdict{}, err
	}
	return v, nil
}
