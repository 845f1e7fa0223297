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

package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/Epiphytic/hookwise/internal/decision"
	"github.com/Epiphytic/hookwise/internal/engine"
	"github.com/Epiphytic/hookwise/internal/policy"
	"github.com/Epiphytic/hookwise/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTest(t *testing.T, policyYAML string) *App {
	t.Helper()
	root := t.TempDir()
	configDir := filepath.Join(root, DefaultConfigDir)
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	if policyYAML != "" {
		require.NoError(t, os.WriteFile(filepath.Join(configDir, policy.PolicyFile), []byte(policyYAML), 0o644))
	}
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "xdg"))

	a, err := Open(Options{
		ConfigDir:  configDir,
		StateDir:   filepath.Join(root, "state"),
		QueuePath:  filepath.Join(root, "run", "pending.json"),
		Logger:     testLogger(),
		Supervisor: supervisor.Unavailable{Reason: "test"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestOpenDefaults(t *testing.T) {
	a := openTest(t, "")
	assert.Equal(t, filepath.Dir(a.ConfigDir), a.Project)
	assert.Equal(t, filepath.Join(a.ConfigDir, "decisions.jsonl"), a.LogPath())
	assert.Contains(t, a.Config.RoleNames(), "coder")
	assert.Zero(t, a.Declarations.Len())
}

func TestOpenEvaluates(t *testing.T) {
	a := openTest(t, "")
	_, err := a.Registry.Register("s1", "coder", "")
	require.NoError(t, err)

	res, err := a.Engine.Evaluate(context.Background(), engine.Request{
		Session: "s1",
		Tool:    "Write",
		Input:   map[string]any{"file_path": "src/main.go"},
		Cwd:     a.Project,
	})
	require.NoError(t, err)
	assert.Equal(t, decision.Allow, res.Decision)
	assert.Equal(t, decision.TierPathPolicy, res.Tier)

	_, ok := a.Store.Lookup(res.Key)
	assert.True(t, ok)
	_, err = os.Stat(a.LogPath())
	assert.NoError(t, err, "the decision was appended to the log")
}

func TestOpenConfigError(t *testing.T) {
	root := t.TempDir()
	configDir := filepath.Join(root, DefaultConfigDir)
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, policy.PolicyFile), []byte("similarity:\n  jaccard_threshold: 2\n"), 0o644))

	_, err := Open(Options{ConfigDir: configDir, StateDir: root, Logger: testLogger()})
	var ce *policy.ConfigError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, policy.PolicyFile, ce.File)
}

func TestSQLiteLogPath(t *testing.T) {
	a := openTest(t, "storage:\n  backend: sqlite\n")
	assert.Empty(t, a.LogPath())
}

func TestTeamFromEnv(t *testing.T) {
	t.Setenv("HOOKWISE_TEAM", "")
	t.Setenv("CLAUDE_TEAM_ID", "")
	assert.Empty(t, TeamFromEnv())

	t.Setenv("CLAUDE_TEAM_ID", "alpha")
	assert.Equal(t, "alpha", TeamFromEnv())

	t.Setenv("HOOKWISE_TEAM", "beta")
	assert.Equal(t, "beta", TeamFromEnv())
}

func TestRequireInit(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, RequireInit(dir))
	assert.ErrorIs(t, RequireInit(filepath.Join(dir, "missing")), ErrNotInitialized)
}
