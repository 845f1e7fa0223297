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

// Package store persists cascade decisions and serves the in-memory views
// the cascade reads: an exact cache keyed by digest, a token index for
// Jaccard similarity and an HNSW vector index for embedding similarity.
//
// The log is append-only. Memory is always rebuildable by replaying it, and
// replay is order-independent.
package store

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/Epiphytic/hookwise/internal/decision"
	"github.com/oklog/ulid/v2"
)

// Record is one persisted decision.
type Record struct {
	// ID is a ULID: time-ordered and unique. It breaks timestamp ties.
	ID string `json:"id"`

	Key    decision.Key `json:"key"`
	Digest string       `json:"digest"`

	Decision   decision.Decision `json:"decision"`
	Tier       decision.Tier     `json:"tier"`
	Rule       string            `json:"rule,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`

	Session string `json:"session,omitempty"`

	// Text is the sanitized request text. It never contains a secret.
	Text string `json:"text,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	Embedding []float32 `json:"embedding,omitempty"`
}

// Explicit reports whether a human or an operator wrote the record.
func (r *Record) Explicit() bool { return r.Tier.Explicit() }

// after reports whether r is ordered strictly after o by (timestamp, id).
func (r *Record) after(o *Record) bool {
	if o == nil {
		return true
	}
	if !r.Timestamp.Equal(o.Timestamp) {
		return r.Timestamp.After(o.Timestamp)
	}
	return r.ID > o.ID
}

// fill sets the generated fields of a record about to be written.
func (r *Record) fill() {
	if r.ID == "" {
		r.ID = NewRecordID()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	if r.Digest == "" {
		r.Digest = r.Key.Digest()
	}
	r.Text = clipText(r.Text)
}

// MaxTextBytes bounds Record.Text. Longer text is cut at a rune boundary.
const MaxTextBytes = 64 << 10

func clipText(s string) string {
	if len(s) <= MaxTextBytes {
		return s
	}
	cut := MaxTextBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func (r *Record) validate() error {
	if !r.Decision.Decisive() {
		return fmt.Errorf("store: refusing to persist %q decision", r.Decision)
	}
	if r.Key.IsZero() {
		return fmt.Errorf("store: record has empty key")
	}
	return nil
}

// NewRecordID returns a new ULID record identifier.
func NewRecordID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), rand.Reader)
	if err == nil {
		return id.String()
	}
	slog.Error("store: generate record id", "error", err)
	return ulid.Make().String()
}

// StorageError describes one record that could not be read. Loading skips
// the record and continues.
type StorageError struct {
	Source string
	Line   int
	Err    error
}

func (e *StorageError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("store: %s:%d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("store: %s: %v", e.Source, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// LoadReport summarizes a replay.
type LoadReport struct {
	Loaded  int
	Skipped int
	Errors  []*StorageError
}

func (r *LoadReport) skip(err *StorageError) {
	r.Skipped++
	// Keep the first few for diagnostics; the count is authoritative.
	if len(r.Errors) < 16 {
		r.Errors = append(r.Errors, err)
	}
}

// Filter selects records for invalidation. Zero fields match everything;
// an entirely zero Filter matches nothing unless All is set.
type Filter struct {
	All     bool
	Role    string
	Tool    string
	Scope   string
	Digest  string
	Session string
}

// Match reports whether the filter selects r.
func (f Filter) Match(r *Record) bool {
	if f.All {
		return true
	}
	if f == (Filter{}) {
		return false
	}
	return (f.Role == "" || r.Key.Role == f.Role) &&
		(f.Tool == "" || r.Key.Tool == f.Tool) &&
		(f.Scope == "" || r.Key.Scope == f.Scope) &&
		(f.Digest == "" || r.Digest == f.Digest) &&
		(f.Session == "" || r.Session == f.Session)
}
