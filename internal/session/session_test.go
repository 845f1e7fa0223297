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

package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegisterGetSwitch(t *testing.T) {
	r := NewRegistry(t.TempDir(), "", testLogger())

	_, err := r.Get("s1")
	assert.ErrorIs(t, err, ErrUnknownSession)

	s, err := r.Register("s1", "coder", "implement login")
	require.NoError(t, err)
	assert.True(t, s.Registered())

	got, err := r.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "coder", got.Role)
	assert.Equal(t, "implement login", got.Task)

	_, err = r.Register("s1", "tester", "")
	require.NoError(t, err)
	got, err = r.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "tester", got.Role, "re-registering switches role")

	_, err = r.Register("", "coder", "")
	assert.Error(t, err)
}

func TestDisableEnable(t *testing.T) {
	r := NewRegistry(t.TempDir(), "infra", testLogger())
	assert.Contains(t, r.Path(), "sessions-infra.json")

	require.NoError(t, r.Disable("ghost"))
	s, err := r.Get("ghost")
	require.NoError(t, err)
	assert.True(t, s.Disabled)
	assert.False(t, s.Registered())

	_, err = r.Register("live", "coder", "")
	require.NoError(t, err)
	require.NoError(t, r.Disable("live"))
	require.NoError(t, r.Enable("live"))
	s, err = r.Get("live")
	require.NoError(t, err)
	assert.False(t, s.Disabled)
	assert.Equal(t, "coder", s.Role)

	assert.ErrorIs(t, r.Enable("nobody"), ErrUnknownSession)
	assert.ErrorIs(t, r.Touch("nobody"), ErrUnknownSession)
	require.NoError(t, r.Touch("live"))

	list, err := r.List()
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestWaitForRegistration(t *testing.T) {
	r := NewRegistry(t.TempDir(), "", testLogger())

	go func() {
		time.Sleep(150 * time.Millisecond)
		_, err := r.Register("late", "coder", "")
		assert.NoError(t, err)
	}()
	s, err := r.WaitForRegistration(context.Background(), "late", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "coder", s.Role)

	start := time.Now()
	_, err = r.WaitForRegistration(context.Background(), "never", 250*time.Millisecond)
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.WaitForRegistration(ctx, "never", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultDir(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/var/state")
	assert.Equal(t, "/var/state/hookwise", DefaultDir())
}
