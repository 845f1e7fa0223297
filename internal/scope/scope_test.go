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

package scope

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Epiphytic/hookwise/internal/decision"
	"github.com/Epiphytic/hookwise/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	none  = decision.None
	allow = decision.Allow
	ask   = decision.Ask
	deny  = decision.Deny
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name                     string
		org, project, user, role decision.Decision
		want                     decision.Decision
		wantLevel                Level
	}{
		{"all none", none, none, none, none, none, LevelRole},
		{"role only", none, none, none, allow, allow, LevelRole},
		{"org deny beats role allow", deny, none, none, allow, deny, LevelOrg},
		{"project allow cannot unlock role deny", none, allow, none, deny, deny, LevelRole},
		{"user deny short-circuits", none, allow, deny, allow, deny, LevelUser},
		{"ask beats allow", allow, none, ask, allow, ask, LevelUser},
		{"first most restrictive level reported", ask, ask, none, allow, ask, LevelOrg},
		{"project allow stands alone", none, allow, none, none, allow, LevelProject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, level := MergeExplain(tt.org, tt.project, tt.user, tt.role)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantLevel, level)
			assert.Equal(t, tt.want, Merge(tt.org, tt.project, tt.user, tt.role))
		})
	}
}

func TestMergeNeverLessRestrictiveThanRole(t *testing.T) {
	all := []decision.Decision{none, allow, ask, deny}
	for _, o := range all {
		for _, p := range all {
			for _, u := range all {
				for _, r := range all {
					got := Merge(o, p, u, r)
					assert.GreaterOrEqual(t, int(got), int(r))
					assert.Equal(t, decision.MostRestrictive(o, p, u, r), got)
				}
			}
		}
	}
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("Project")
	require.NoError(t, err)
	assert.Equal(t, LevelProject, l)
	assert.Equal(t, "project", l.String())

	_, err = ParseLevel("global")
	assert.Error(t, err)
}

func TestMatchCommand(t *testing.T) {
	tests := []struct {
		pattern, cmd string
		want         bool
	}{
		{"git *", "git push origin main", true},
		{"git *", "gitk", false},
		{"npm install *", "npm install express", true},
		{"*npm publish*", "cd pkg && npm publish --tag next", true},
		{"*--force", "git push --force", true},
		{"*--force", "git push --force-with-lease", false},
		{"ls", "ls", true},
		{"ls", "ls -la", false},
		{"*", "anything at all", true},
		{"", "ls", false},
		{"git *", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"|"+tt.cmd, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchCommand(tt.pattern, tt.cmd))
		})
	}
}

func TestGeneralizeCommand(t *testing.T) {
	tests := map[string]string{
		"npm install express":   "npm install *",
		"git push origin main":  "git push *",
		"go test":               "go test *",
		"ls":                    "ls",
		"":                      "*",
		"rm -rf /tmp/build":     "rm -rf /tmp/build",
		"git reset --hard HEAD": "git reset --hard HEAD",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, GeneralizeCommand(in))
		})
	}
}

func TestRulesetEvaluate(t *testing.T) {
	rs := Ruleset{
		{Role: "coder", Tool: "Bash", Command: "git *", Decision: allow},
		{Tool: "Bash", Command: "*--force*", Decision: deny},
		{Role: "test*", Path: "src/**", Decision: ask},
		{Path: "docs:**", Decision: allow},
	}

	tests := []struct {
		name     string
		subject  Subject
		want     decision.Decision
		wantRule int
	}{
		{"command allow", Subject{Role: "coder", Tool: "Bash", Command: "git status"}, allow, 0},
		{"deny short-circuits", Subject{Role: "coder", Tool: "Bash", Command: "git push --force"}, deny, 1},
		{"role glob", Subject{Role: "tester", Tool: "Write", Paths: []string{"src/main.go"}}, ask, 2},
		{"category path", Subject{Role: "coder", Tool: "Write", Paths: []string{"docs/a.md", "docs:a.md"}}, allow, 3},
		{"no match", Subject{Role: "coder", Tool: "Write", Paths: []string{"src/main.go"}}, none, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rule := rs.Evaluate(tt.subject)
			assert.Equal(t, tt.want, got)
			if tt.wantRule < 0 {
				assert.Nil(t, rule)
				return
			}
			require.NotNil(t, rule)
			assert.Equal(t, rs[tt.wantRule], *rule)
		})
	}
}

func TestDeclarationsEvaluate(t *testing.T) {
	d := &Declarations{
		Org:     Ruleset{{Command: "curl *", Decision: deny, Note: "no egress"}},
		Project: Ruleset{{Tool: "Bash", Command: "make *", Decision: allow}},
	}

	res := d.Evaluate(Subject{Role: "coder", Tool: "Bash", Command: "curl https://x"}, allow)
	assert.Equal(t, deny, res.Decision)
	assert.Equal(t, LevelOrg, res.Level)
	require.NotNil(t, res.Rule)
	assert.Equal(t, "no egress", res.Rule.Note)

	res = d.Evaluate(Subject{Role: "coder", Tool: "Bash", Command: "make test"}, deny)
	assert.Equal(t, deny, res.Decision)
	assert.Equal(t, LevelRole, res.Level)
	assert.Nil(t, res.Rule)

	res = d.Evaluate(Subject{Role: "coder", Tool: "Bash", Command: "make test"}, none)
	assert.Equal(t, allow, res.Decision)
	assert.Equal(t, LevelProject, res.Level)

	var empty *Declarations
	assert.Equal(t, none, empty.Evaluate(Subject{}, none).Decision)
	assert.Zero(t, empty.Len())
}

func TestAppendAndLoad(t *testing.T) {
	dir := t.TempDir()
	loc := DefaultLocations(filepath.Join(dir, ".hookwise"))
	loc.Org = filepath.Join(dir, "org", OverridesFile)

	d, err := Load(loc)
	require.NoError(t, err)
	assert.Zero(t, d.Len())

	userPath, err := loc.Path(LevelUser)
	require.NoError(t, err)
	require.NoError(t, AppendRule(userPath, Rule{Role: "coder", Tool: "Bash", Command: "go test *", Decision: allow}))
	require.NoError(t, AppendRule(userPath, Rule{Role: "coder", Path: "src/**", Decision: ask}))

	d, err = Load(loc)
	require.NoError(t, err)
	require.Len(t, d.User, 2)
	assert.Equal(t, "go test *", d.User[0].Command)
	assert.Equal(t, ask, d.User[1].Decision)
	assert.False(t, d.User[0].CreatedAt.IsZero())

	_, err = loc.Path(LevelRole)
	assert.Error(t, err)
}

func TestAppendRuleConcurrent(t *testing.T) {
	p := filepath.Join(t.TempDir(), OverridesFile)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, AppendRule(p, Rule{Tool: "Bash", Command: "make *", Decision: allow}))
		}()
	}
	wg.Wait()

	rs, err := LoadFile(p)
	require.NoError(t, err)
	assert.Len(t, rs, 10)
}

func TestAppendRuleRejectsInvalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), OverridesFile)
	assert.Error(t, AppendRule(p, Rule{Command: "ls"}))
	assert.Error(t, AppendRule(p, Rule{Path: "src/[", Decision: allow}))
	_, err := os.Stat(p)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadFileErrors(t *testing.T) {
	tests := map[string]string{
		"bad yaml":      "rules: [",
		"unknown field": "rules:\n  - decision: allow\n    colour: red\n",
		"bad decision":  "rules:\n  - decision: maybe\n",
		"none decision": "rules:\n  - decision: none\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), OverridesFile)
			require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
			_, err := LoadFile(p)
			var cfgErr *policy.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, p, cfgErr.File)
		})
	}
}
