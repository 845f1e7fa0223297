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
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Epiphytic/hookwise/internal/decision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testQueue(t *testing.T, opts ...Option) *Queue {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hookwise-pending.json")
	return NewQueue(path, append([]Option{WithLogger(testLogger()), WithPoll(10 * time.Millisecond)}, opts...)...)
}

func testRequest() PendingRequest {
	return PendingRequest{
		Session:   "sess-1",
		Role:      "coder",
		Tool:      "Bash",
		Input:     `{"command":"terraform apply"}`,
		Reason:    "supervisor unavailable",
		ExpiresAt: time.Now().Add(time.Minute),
		Recommendation: &Recommendation{
			Decision: decision.Deny, Confidence: 0.4, Reason: "infra change", Source: decision.TierSupervisor,
		},
	}
}

func TestEnqueueRespondWait(t *testing.T) {
	q := testQueue(t)
	req, err := q.Enqueue(testRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, 1, req.Waiters)
	assert.False(t, req.QueuedAt.IsZero())

	list, err := q.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, req.ID, list[0].ID)
	require.NotNil(t, list[0].Recommendation)
	assert.Equal(t, decision.Deny, list[0].Recommendation.Decision)

	go func() {
		time.Sleep(30 * time.Millisecond)
		assert.NoError(t, q.Respond(req.ID, HumanResponse{Decision: decision.Allow, AddRule: true, Scope: "project", RespondedBy: "ops"}))
	}()

	resp, err := q.Wait(context.Background(), req.ID, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, decision.Allow, resp.Decision)
	assert.True(t, resp.AddRule)
	assert.Equal(t, "project", resp.Scope)
	assert.False(t, resp.RespondedAt.IsZero())

	_, err = q.Get(req.ID)
	assert.ErrorIs(t, err, ErrNotFound, "entry is removed after wait returns")
}

func TestWaitExpires(t *testing.T) {
	q := testQueue(t)
	req, err := q.Enqueue(testRequest())
	require.NoError(t, err)

	start := time.Now()
	_, err = q.Wait(context.Background(), req.ID, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrExpired)
	assert.Less(t, time.Since(start), 2*time.Second)

	list, err := q.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestWaitCancelled(t *testing.T) {
	q := testQueue(t)
	req, err := q.Enqueue(testRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err = q.Wait(ctx, req.ID, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnqueueDeduplicates(t *testing.T) {
	q := testQueue(t)
	a, err := q.Enqueue(testRequest())
	require.NoError(t, err)
	b, err := q.Enqueue(testRequest())
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, 2, b.Waiters)

	other := testRequest()
	other.Input = `{"command":"terraform plan"}`
	c, err := q.Enqueue(other)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, c.ID)

	require.NoError(t, q.Respond(a.ID, HumanResponse{Decision: decision.Deny}))
	r1, err := q.Wait(context.Background(), a.ID, time.Second)
	require.NoError(t, err)
	r2, err := q.Wait(context.Background(), a.ID, time.Second)
	require.NoError(t, err, "second waiter still sees the response")
	assert.Equal(t, r1.Decision, r2.Decision)

	_, err = q.Get(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDedupWindow(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	q := testQueue(t, WithClock(func() time.Time { return now }))

	req := testRequest()
	req.ExpiresAt = now.Add(time.Hour)
	a, err := q.Enqueue(req)
	require.NoError(t, err)

	now = now.Add(dedupWindow + time.Second)
	b, err := q.Enqueue(req)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestTooManyPending(t *testing.T) {
	q := testQueue(t)
	mb := newMailbox()
	for i := 0; i < maxPending; i++ {
		id := fmt.Sprintf("id-%04d", i)
		mb.Pending[id] = &PendingRequest{ID: id, QueuedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour), DedupKey: id}
	}
	data, err := json.Marshal(mb)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(q.Path(), data, 0o600))

	_, err = q.Enqueue(testRequest())
	assert.ErrorIs(t, err, ErrTooManyPending)
}

func TestRespondErrors(t *testing.T) {
	q := testQueue(t)
	err := q.Respond("nope", HumanResponse{Decision: decision.Allow})
	assert.ErrorIs(t, err, ErrNotFound)

	req, err := q.Enqueue(testRequest())
	require.NoError(t, err)
	assert.Error(t, q.Respond(req.ID, HumanResponse{Decision: decision.Ask}))
	assert.Error(t, q.Respond(req.ID, HumanResponse{Decision: decision.Allow, AddRule: true, Scope: "galaxy"}))

	require.NoError(t, q.Respond(req.ID, HumanResponse{Decision: decision.Allow, AlwaysAsk: true}))
	assert.Error(t, q.Respond(req.ID, HumanResponse{Decision: decision.Deny}), "second response is rejected")
}

func TestListOrderAndCleanup(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	q := testQueue(t, WithClock(func() time.Time { return now }))

	first := testRequest()
	first.ExpiresAt = now.Add(10 * time.Second)
	a, err := q.Enqueue(first)
	require.NoError(t, err)

	now = now.Add(time.Second)
	second := testRequest()
	second.Tool = "Write"
	second.ExpiresAt = now.Add(time.Hour)
	b, err := q.Enqueue(second)
	require.NoError(t, err)

	list, err := q.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)

	now = now.Add(time.Minute)
	list, err = q.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)

	removed, err := q.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, err = q.Get(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWaitSurvivesCorruptMailbox(t *testing.T) {
	q := testQueue(t)
	req, err := q.Enqueue(testRequest())
	require.NoError(t, err)

	good, err := os.ReadFile(q.Path())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(q.Path(), []byte("{torn"), 0o600))

	go func() {
		time.Sleep(40 * time.Millisecond)
		if !assert.NoError(t, os.WriteFile(q.Path(), good, 0o600)) {
			return
		}
		assert.NoError(t, q.Respond(req.ID, HumanResponse{Decision: decision.Deny}))
	}()

	resp, err := q.Wait(context.Background(), req.ID, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, decision.Deny, resp.Decision)
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/9")
	assert.Equal(t, "/run/user/9/hookwise-pending.json", DefaultPath(""))
	assert.Equal(t, "/run/user/9/hookwise-pending-infra.json", DefaultPath("infra"))
}
