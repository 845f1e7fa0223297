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

// Package approval is the human approval queue.
//
// The queue is a single JSON mailbox file shared by every hook process and
// every operator CLI on the machine. Hooks enqueue a pending request and wait;
// an operator lists the queue and responds; the waiting hook picks up the
// response. Every mutation holds an exclusive flock and replaces the file
// atomically, so readers never see a partial write.
package approval

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Epiphytic/hookwise/internal/decision"
	"github.com/Epiphytic/hookwise/internal/fsutil"
)

// dedupWindow is the window in which identical requests share one entry.
const dedupWindow = 60 * time.Second

// maxPending bounds the number of pending requests.
const maxPending = 1000

var (
	// ErrTooManyPending is returned when the pending limit is reached.
	ErrTooManyPending = fmt.Errorf("approval: too many pending requests (limit: %d)", maxPending)

	// ErrNotFound is returned for an unknown request id.
	ErrNotFound = errors.New("approval: no such request")

	// ErrExpired is returned by Wait when no response arrived in time.
	ErrExpired = errors.New("approval: request expired")
)

// Recommendation is what an earlier tier suggested, shown to the human.
type Recommendation struct {
	Decision   decision.Decision `json:"decision"`
	Confidence float64           `json:"confidence,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Source     decision.Tier     `json:"source"`
}

// PendingRequest is a tool call waiting for a human.
type PendingRequest struct {
	ID      string `json:"id"`
	Session string `json:"session_id"`
	Role    string `json:"role"`
	Tool    string `json:"tool_name"`

	// Input is the sanitized tool input.
	Input string   `json:"input"`
	Paths []string `json:"paths,omitempty"`
	Cwd   string   `json:"cwd,omitempty"`

	// Reason says why the call was escalated.
	Reason         string          `json:"reason,omitempty"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`

	// Reprompt marks a call whose key is cached as ask: the answer applies
	// to this call only unless the human adds a rule.
	Reprompt bool `json:"reprompt,omitempty"`

	QueuedAt  time.Time `json:"queued_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// Waiters counts hook processes waiting on this entry. Deduplicated
	// requests share an entry.
	Waiters  int    `json:"waiters"`
	DedupKey string `json:"dedup_key"`
}

// Expired reports whether the request expired before now.
func (p *PendingRequest) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// HumanResponse is an operator's answer.
type HumanResponse struct {
	Decision decision.Decision `json:"decision"`

	// AlwaysAsk answers this call but stores ask, so the key always comes
	// back to a human.
	AlwaysAsk bool `json:"always_ask,omitempty"`

	// AddRule also records an override rule at Scope.
	AddRule bool   `json:"add_rule,omitempty"`
	Scope   string `json:"scope,omitempty"`

	RespondedBy string    `json:"responded_by,omitempty"`
	RespondedAt time.Time `json:"responded_at"`
}

func (r HumanResponse) validate() error {
	if r.Decision != decision.Allow && r.Decision != decision.Deny {
		return fmt.Errorf("approval: response decision must be allow or deny, got %s", r.Decision)
	}
	if r.AddRule {
		switch r.Scope {
		case "org", "project", "user":
		default:
			return fmt.Errorf("approval: add_rule needs scope org, project, or user, got %q", r.Scope)
		}
	}
	return nil
}

// mailbox is the on-disk document.
type mailbox struct {
	Pending   map[string]*PendingRequest `json:"pending"`
	Responses map[string]*HumanResponse  `json:"responses"`
}

func newMailbox() *mailbox {
	return &mailbox{
		Pending:   make(map[string]*PendingRequest),
		Responses: make(map[string]*HumanResponse),
	}
}

// DefaultPath returns the mailbox for team, or the solo mailbox when team is
// empty.
func DefaultPath(team string) string {
	return filepath.Join(fsutil.RuntimeDir(), "hookwise-pending"+fsutil.TeamSuffix(team)+".json")
}

// dedupKey hashes the fields that make two requests identical.
func dedupKey(p *PendingRequest) string {
	h := sha256.Sum256([]byte(strings.Join([]string{p.Session, p.Role, p.Tool, p.Input}, "\x00")))
	return hex.EncodeToString(h[:])
}
