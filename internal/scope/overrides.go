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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/Epiphytic/hookwise/internal/decision"
	"github.com/Epiphytic/hookwise/internal/fsutil"
	"github.com/Epiphytic/hookwise/internal/policy"
	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// OverridesFile is the file name used at every level.
const OverridesFile = "overrides.yml"

// File is the on-disk shape of an overrides document.
type File struct {
	Version string  `yaml:"version"`
	Rules   Ruleset `yaml:"rules"`
}

// Locations names the overrides file for each declarable level.
type Locations struct {
	Org     string
	Project string
	User    string
}

// DefaultLocations returns the standard override paths for a project whose
// config directory is configDir (normally "<root>/.hookwise").
// The org file lives under the user config dir, which honors XDG_CONFIG_HOME.
func DefaultLocations(configDir string) Locations {
	loc := Locations{
		Project: filepath.Join(configDir, OverridesFile),
		User:    filepath.Join(configDir, "user", OverridesFile),
	}
	if dir, err := os.UserConfigDir(); err == nil {
		loc.Org = filepath.Join(dir, "hookwise", "org", OverridesFile)
	}
	return loc
}

// Path returns the file for a level. LevelRole has no file.
func (l Locations) Path(level Level) (string, error) {
	var p string
	switch level {
	case LevelOrg:
		p = l.Org
	case LevelProject:
		p = l.Project
	case LevelUser:
		p = l.User
	default:
		return "", fmt.Errorf("scope: level %s has no overrides file", level)
	}
	if p == "" {
		return "", fmt.Errorf("scope: no overrides file configured for %s", level)
	}
	return p, nil
}

// Declarations holds the override rules of the three declarable levels.
type Declarations struct {
	Org     Ruleset
	Project Ruleset
	User    Ruleset
}

// Load reads every overrides file. Missing files are empty levels.
func Load(loc Locations) (*Declarations, error) {
	var d Declarations
	for _, lv := range []struct {
		path string
		dst  *Ruleset
	}{
		{loc.Org, &d.Org},
		{loc.Project, &d.Project},
		{loc.User, &d.User},
	} {
		if lv.path == "" {
			continue
		}
		rs, err := LoadFile(lv.path)
		if err != nil {
			return nil, err
		}
		*lv.dst = rs
	}
	return &d, nil
}

// Len is the total number of rules across levels.
func (d *Declarations) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Org) + len(d.Project) + len(d.User)
}

// Result is the outcome of evaluating declarations together with the role
// verdict.
type Result struct {
	Decision decision.Decision
	Level    Level
	// Rule is the override that decided, nil when the role level did.
	Rule *Rule
}

// Evaluate merges the declarable levels with the role-level verdict.
func (d *Declarations) Evaluate(s Subject, role decision.Decision) Result {
	if d == nil {
		d = &Declarations{}
	}
	org, orgRule := d.Org.Evaluate(s)
	project, projectRule := d.Project.Evaluate(s)
	user, userRule := d.User.Evaluate(s)

	dec, level := MergeExplain(org, project, user, role)
	res := Result{Decision: dec, Level: level}
	switch level {
	case LevelOrg:
		res.Rule = orgRule
	case LevelProject:
		res.Rule = projectRule
	case LevelUser:
		res.Rule = userRule
	}
	return res
}

// LoadFile reads one overrides file. A missing file yields no rules.
func LoadFile(p string) (Ruleset, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scope: read %s: %w", p, err)
	}
	f, err := parseFile(p, data)
	if err != nil {
		return nil, err
	}
	return f.Rules, nil
}

func parseFile(p string, data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, &policy.ConfigError{File: p, Reason: "invalid YAML", Err: err}
	}
	for i, r := range f.Rules {
		if err := r.validate(); err != nil {
			return nil, &policy.ConfigError{File: p, Field: fmt.Sprintf("rules[%d]", i), Reason: err.Error()}
		}
	}
	return &f, nil
}

func (r Rule) validate() error {
	if !r.Decision.Decisive() {
		return errors.New("decision must be allow, ask, or deny")
	}
	for field, pat := range map[string]string{"role": r.Role, "tool": r.Tool} {
		if pat == "" {
			continue
		}
		if _, err := path.Match(pat, ""); err != nil {
			return fmt.Errorf("%s: bad pattern %q", field, pat)
		}
	}
	if r.Path != "" && !doublestar.ValidatePattern(r.Path) {
		return fmt.Errorf("path: bad glob %q", r.Path)
	}
	return nil
}

// AppendRule adds a rule to the overrides file at p, creating it if needed.
// Concurrent writers are serialized with a file lock and the file is
// replaced atomically.
func AppendRule(p string, r Rule) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	if err := r.validate(); err != nil {
		return fmt.Errorf("scope: invalid rule: %w", err)
	}

	lock, err := fsutil.LockFile(p)
	if err != nil {
		return fmt.Errorf("scope: %w", err)
	}
	defer lock.Unlock()

	f := &File{}
	data, err := os.ReadFile(p)
	switch {
	case err == nil:
		if f, err = parseFile(p, data); err != nil {
			return err
		}
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("scope: read %s: %w", p, err)
	}
	if f.Version == "" {
		f.Version = "1"
	}
	f.Rules = append(f.Rules, r)

	out, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("scope: marshal overrides: %w", err)
	}
	header := fmt.Sprintf("# hookwise overrides. Edit with care; see `hookwise override --help`.\n# Last updated: %s\n",
		time.Now().UTC().Format(time.RFC3339))
	if err := fsutil.WriteAtomic(p, append([]byte(header), out...), 0o644); err != nil {
		return fmt.Errorf("scope: %w", err)
	}
	return nil
}
