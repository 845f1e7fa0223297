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

package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Epiphytic/hookwise/internal/fsutil"
	"github.com/fsnotify/fsnotify"
	"github.com/oklog/ulid/v2"
)

const defaultPoll = 200 * time.Millisecond

// Queue is a handle on one mailbox file.
type Queue struct {
	path       string
	poll       time.Duration
	logger     *slog.Logger
	now        func() time.Time
	newWatcher func() (*fsnotify.Watcher, error)
}

// Option configures a Queue.
type Option func(*Queue)

// WithPoll sets the fallback poll interval used by Wait.
func WithPoll(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.poll = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// NewQueue returns a queue backed by the mailbox at path.
func NewQueue(path string, opts ...Option) *Queue {
	q := &Queue{
		path:       path,
		poll:       defaultPoll,
		logger:     slog.Default(),
		now:        time.Now,
		newWatcher: fsnotify.NewWatcher,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

// Path returns the mailbox file.
func (q *Queue) Path() string { return q.path }

func (q *Queue) read() (*mailbox, error) {
	data, err := os.ReadFile(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return newMailbox(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("approval: read mailbox: %w", err)
	}
	mb := newMailbox()
	if len(data) == 0 {
		return mb, nil
	}
	if err := json.Unmarshal(data, mb); err != nil {
		return nil, fmt.Errorf("approval: parse mailbox %s: %w", q.path, err)
	}
	if mb.Pending == nil {
		mb.Pending = make(map[string]*PendingRequest)
	}
	if mb.Responses == nil {
		mb.Responses = make(map[string]*HumanResponse)
	}
	return mb, nil
}

// update applies fn to the mailbox under an exclusive lock and writes the
// result atomically when fn returns nil.
func (q *Queue) update(fn func(*mailbox) error) error {
	lock, err := fsutil.LockFile(q.path)
	if err != nil {
		return fmt.Errorf("approval: %w", err)
	}
	defer lock.Unlock()

	mb, err := q.read()
	if err != nil {
		// Reset a corrupt mailbox. Waiters on lost entries expire.
		q.logger.Warn("approval: resetting unreadable mailbox", "path", q.path, "error", err)
		mb = newMailbox()
	}
	if err := fn(mb); err != nil {
		return err
	}
	data, err := json.MarshalIndent(mb, "", "  ")
	if err != nil {
		return fmt.Errorf("approval: marshal mailbox: %w", err)
	}
	if err := fsutil.WriteAtomic(q.path, data, 0o600); err != nil {
		return fmt.Errorf("approval: %w", err)
	}
	return nil
}

// Enqueue adds req and returns the stored entry. An identical unanswered
// request queued within the dedup window is reused instead. ExpiresAt
// defaults to one hour from now when unset.
func (q *Queue) Enqueue(req PendingRequest) (PendingRequest, error) {
	now := q.now().UTC()
	req.DedupKey = dedupKey(&req)
	var out PendingRequest
	err := q.update(func(mb *mailbox) error {
		for id, p := range mb.Pending {
			if p.DedupKey != req.DedupKey || now.Sub(p.QueuedAt) >= dedupWindow || p.Expired(now) {
				continue
			}
			if _, answered := mb.Responses[id]; answered {
				continue
			}
			p.Waiters++
			if req.ExpiresAt.After(p.ExpiresAt) {
				p.ExpiresAt = req.ExpiresAt
			}
			out = *p
			return nil
		}
		if len(mb.Pending) >= maxPending {
			return ErrTooManyPending
		}
		req.ID = ulid.Make().String()
		req.QueuedAt = now
		if req.ExpiresAt.IsZero() {
			req.ExpiresAt = now.Add(time.Hour)
		}
		req.Waiters = 1
		mb.Pending[req.ID] = &req
		out = req
		return nil
	})
	if err != nil {
		return PendingRequest{}, err
	}
	q.logger.Debug("approval: enqueued", "id", out.ID, "session", out.Session, "tool", out.Tool, "waiters", out.Waiters)
	return out, nil
}

// Respond records an answer for id.
func (q *Queue) Respond(id string, resp HumanResponse) error {
	if err := resp.validate(); err != nil {
		return err
	}
	if resp.RespondedAt.IsZero() {
		resp.RespondedAt = q.now().UTC()
	}
	return q.update(func(mb *mailbox) error {
		if _, ok := mb.Pending[id]; !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if _, ok := mb.Responses[id]; ok {
			return fmt.Errorf("approval: %s already has a response", id)
		}
		mb.Responses[id] = &resp
		return nil
	})
}

// Get returns one pending request.
func (q *Queue) Get(id string) (PendingRequest, error) {
	mb, err := q.read()
	if err != nil {
		return PendingRequest{}, err
	}
	p, ok := mb.Pending[id]
	if !ok {
		return PendingRequest{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *p, nil
}

// List returns unanswered, unexpired requests, oldest first.
func (q *Queue) List() ([]PendingRequest, error) {
	mb, err := q.read()
	if err != nil {
		return nil, err
	}
	now := q.now()
	out := make([]PendingRequest, 0, len(mb.Pending))
	for id, p := range mb.Pending {
		if _, answered := mb.Responses[id]; answered || p.Expired(now) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].QueuedAt.Equal(out[j].QueuedAt) {
			return out[i].QueuedAt.Before(out[j].QueuedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Cleanup drops expired requests and their responses. It returns how many
// were removed.
func (q *Queue) Cleanup() (int, error) {
	removed := 0
	now := q.now()
	err := q.update(func(mb *mailbox) error {
		for id, p := range mb.Pending {
			if p.Expired(now) {
				delete(mb.Pending, id)
				delete(mb.Responses, id)
				removed++
			}
		}
		for id := range mb.Responses {
			if _, ok := mb.Pending[id]; !ok {
				delete(mb.Responses, id)
			}
		}
		return nil
	})
	return removed, err
}

// release drops one waiter from id, removing the entry and its response when
// none remain.
func (q *Queue) release(id string) {
	err := q.update(func(mb *mailbox) error {
		p, ok := mb.Pending[id]
		if !ok {
			delete(mb.Responses, id)
			return nil
		}
		p.Waiters--
		if p.Waiters <= 0 {
			delete(mb.Pending, id)
			delete(mb.Responses, id)
		}
		return nil
	})
	if err != nil {
		q.logger.Warn("approval: release request", "id", id, "error", err)
	}
}

// Wait blocks until id has a response, timeout elapses, or ctx is done. It
// polls the mailbox and also wakes on file events. Read and parse errors are
// logged and retried. On return the caller's claim on the entry is released.
func (q *Queue) Wait(ctx context.Context, id string, timeout time.Duration) (HumanResponse, error) {
	defer q.release(id)

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	var wake <-chan fsnotify.Event
	if w, err := q.newWatcher(); err != nil {
		q.logger.Debug("approval: file watcher unavailable, polling only", "error", err)
	} else {
		defer w.Close()
		if err := w.Add(filepath.Dir(q.path)); err != nil {
			q.logger.Debug("approval: watch mailbox dir", "error", err)
		} else {
			wake = w.Events
		}
	}

	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()

	for {
		resp, done, err := q.check(id)
		switch {
		case errors.Is(err, ErrNotFound):
			q.logger.Debug("approval: request not in mailbox", "id", id)
		case err != nil:
			q.logger.Warn("approval: check mailbox", "id", id, "error", err)
		}
		if done {
			return resp, nil
		}
		select {
		case <-ctx.Done():
			return HumanResponse{}, ctx.Err()
		case <-deadline:
			return HumanResponse{}, ErrExpired
		case <-ticker.C:
		case evt, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			if filepath.Base(evt.Name) != filepath.Base(q.path) {
				continue
			}
		}
	}
}

// check reports whether id has a response. A request that vanished from
// the mailbox is reported as ErrNotFound but not as done, so the wait runs
// to its bound.
func (q *Queue) check(id string) (HumanResponse, bool, error) {
	mb, err := q.read()
	if err != nil {
		return HumanResponse{}, false, err
	}
	if r, ok := mb.Responses[id]; ok {
		return *r, true, nil
	}
	if _, ok := mb.Pending[id]; !ok {
		return HumanResponse{}, false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return HumanResponse{}, false, nil
}
