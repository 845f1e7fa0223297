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

package notify

import (
	"context"
	"fmt"
)

// Slack posts Block Kit attachments to an incoming webhook.
type Slack struct {
	poster
}

type slackPayload struct {
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string `json:"color"`
	Blocks []any  `json:"blocks"`
}

type slackSection struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackContext struct {
	Type     string      `json:"type"`
	Elements []slackText `json:"elements"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Notify implements Notifier.
func (s *Slack) Notify(ctx context.Context, e Event) error {
	fields := []slackText{
		{Type: "mrkdwn", Text: fmt.Sprintf("*Tool:*\n%s", e.Tool)},
		{Type: "mrkdwn", Text: fmt.Sprintf("*Role:*\n%s", e.Role)},
		{Type: "mrkdwn", Text: fmt.Sprintf("*Reason:*\n%s", e.Reason)},
		{Type: "mrkdwn", Text: fmt.Sprintf("*Expires in:*\n%s", e.expiresIn(s.clock()))},
	}
	if e.Suggested != "" {
		fields = append(fields, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*Suggested:*\n%s", e.Suggested)})
	}

	payload := slackPayload{
		Attachments: []slackAttachment{{
			Color: "#d29922",
			Blocks: []any{
				slackSection{Type: "section", Text: &slackText{Type: "mrkdwn", Text: "*hookwise: approval required*"}},
				slackSection{Type: "section", Text: &slackText{Type: "mrkdwn", Text: "```" + truncate(e.Input, 2000) + "```"}},
				slackSection{Type: "section", Fields: fields},
				slackContext{Type: "context", Elements: []slackText{
					{Type: "mrkdwn", Text: fmt.Sprintf("Session %s | `%s`", e.Session, e.ApproveCommand())},
				}},
			},
		}},
	}
	return s.post(ctx, PlatformSlack, payload)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
