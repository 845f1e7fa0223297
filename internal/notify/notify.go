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

// Package notify posts a webhook when a tool call is waiting for a human.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Platforms accepted in notify.platform.
const (
	PlatformAuto    = "auto"
	PlatformSlack   = "slack"
	PlatformDiscord = "discord"
	PlatformWebhook = "webhook"
)

const sendTimeout = 5 * time.Second

// Event describes one pending approval. Input is already sanitized.
type Event struct {
	ID        string    `json:"id"`
	Session   string    `json:"session_id"`
	Role      string    `json:"role"`
	Tool      string    `json:"tool_name"`
	Input     string    `json:"input"`
	Reason    string    `json:"reason"`
	Suggested string    `json:"suggested,omitempty"`
	QueuedAt  time.Time `json:"queued_at"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// ApproveCommand is the CLI line that answers the event.
func (e Event) ApproveCommand() string {
	return "hookwise approve " + e.ID
}

func (e Event) expiresIn(now time.Time) string {
	if e.ExpiresAt.IsZero() {
		return "never"
	}
	d := e.ExpiresAt.Sub(now)
	if d <= 0 {
		return "expired"
	}
	return d.Round(time.Second).String()
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// DetectPlatform guesses the webhook platform from its URL.
func DetectPlatform(url string) string {
	switch {
	case strings.Contains(url, "hooks.slack.com"):
		return PlatformSlack
	case strings.Contains(url, "discord.com/api/webhooks"), strings.Contains(url, "discordapp.com/api/webhooks"):
		return PlatformDiscord
	default:
		return PlatformWebhook
	}
}

// New returns the notifier for platform, detecting it from url when platform
// is auto or empty. An empty url gives a nil Notifier.
func New(url, platform string) (Notifier, error) {
	if url == "" {
		return nil, nil
	}
	platform = strings.ToLower(platform)
	if platform == "" || platform == PlatformAuto {
		platform = DetectPlatform(url)
	}
	p := poster{url: url, client: &http.Client{Timeout: sendTimeout}}
	switch platform {
	case PlatformSlack:
		return &Slack{poster: p}, nil
	case PlatformDiscord:
		return &Discord{poster: p}, nil
	case PlatformWebhook:
		return &Webhook{poster: p}, nil
	default:
		return nil, fmt.Errorf("notify: unknown platform %q", platform)
	}
}

type poster struct {
	url    string
	client *http.Client
	now    func() time.Time
}

func (p poster) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

func (p poster) post(ctx context.Context, platform string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal %s payload: %w", platform, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("notify: %s request: %w", platform, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post %s webhook: %w", platform, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: %s webhook returned status %d", platform, resp.StatusCode)
	}
	return nil
}

type webhookPayload struct {
	Event   string `json:"event"`
	Approve string `json:"approve"`
	Request Event  `json:"request"`
}

// Webhook POSTs the event itself as JSON.
type Webhook struct {
	poster
}

// Notify implements Notifier.
func (w *Webhook) Notify(ctx context.Context, e Event) error {
	return w.post(ctx, PlatformWebhook, webhookPayload{
		Event:   "approval_required",
		Approve: e.ApproveCommand(),
		Request: e,
	})
}
