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

// Package scope merges permission declarations from the Org, Project, User
// and Role levels into one verdict, and manages the override rules that
// back the first three levels.
package scope

import (
	"fmt"
	"strings"

	"github.com/Epiphytic/hookwise/internal/decision"
)

// Level is one declaration source. Lower values take precedence in a scan.
type Level int

const (
	LevelOrg Level = iota
	LevelProject
	LevelUser
	LevelRole
)

func (l Level) String() string {
	switch l {
	case LevelOrg:
		return "org"
	case LevelProject:
		return "project"
	case LevelUser:
		return "user"
	case LevelRole:
		return "role"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel converts a level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "org":
		return LevelOrg, nil
	case "project":
		return LevelProject, nil
	case "user":
		return LevelUser, nil
	case "role":
		return LevelRole, nil
	default:
		return 0, fmt.Errorf("scope: unknown level %q (want org, project, user, or role)", s)
	}
}

// Merge combines per-level verdicts. Levels are scanned Org, Project, User,
// Role; a deny short-circuits, otherwise the most restrictive verdict wins.
func Merge(org, project, user, role decision.Decision) decision.Decision {
	d, _ := MergeExplain(org, project, user, role)
	return d
}

// MergeExplain is Merge that also reports the level that decided.
func MergeExplain(org, project, user, role decision.Decision) (decision.Decision, Level) {
	out, from := decision.None, LevelRole
	for i, d := range [...]decision.Decision{org, project, user, role} {
		if d == decision.Deny {
			return decision.Deny, Level(i)
		}
		if d > out {
			out, from = d, Level(i)
		}
	}
	return out, from
}
