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
	"time"
)

// Discord posts an embed to a channel webhook.
type Discord struct {
	poster
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields"`
	Timestamp   string         `json:"timestamp"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Notify implements Notifier.
func (d *Discord) Notify(ctx context.Context, e Event) error {
	fields := []discordField{
		{Name: "Tool", Value: e.Tool, Inline: true},
		{Name: "Role", Value: e.Role, Inline: true},
		{Name: "Expires In", Value: e.expiresIn(d.clock()), Inline: true},
		{Name: "Reason", Value: e.Reason},
	}
	if e.Suggested != "" {
		fields = append(fields, discordField{Name: "Suggested", Value: e.Suggested})
	}
	fields = append(fields, discordField{Name: "Answer", Value: "`" + e.ApproveCommand() + "`"})

	return d.post(ctx, PlatformDiscord, discordPayload{Embeds: []discordEmbed{{
		Title:       "hookwise: approval required",
		Description: "```" + truncate(e.Input, 1800) + "```",
		Color:       0xd29922,
		Fields:      fields,
		Timestamp:   e.QueuedAt.UTC().Format(time.RFC3339),
	}}})
}
