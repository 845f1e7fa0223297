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

// Package decision defines the tri-state permission verdict shared by every
// tier of the hookwise cascade, the tier identities that produce it, and the
// cache key that decisions are stored under.
package decision

import (
	"fmt"
	"strings"
)

// Decision is the outcome of evaluating a tool call.
//
// Values are ordered by restrictiveness: Deny > Ask > Allow > None. None is
// the zero value and means "no opinion"; it is never persisted.
type Decision int

const (
	// None means the evaluator has no opinion and defers to the next tier.
	None Decision = iota

	// Allow permits the tool call.
	Allow

	// Ask requires a human to confirm the tool call.
	Ask

	// Deny blocks the tool call.
	Deny
)

// String returns the literal vocabulary used on the wire.
func (d Decision) String() string {
	switch d {
	case None:
		return "none"
	case Allow:
		return "allow"
	case Ask:
		return "ask"
	case Deny:
		return "deny"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Decisive reports whether d resolves a request.
func (d Decision) Decisive() bool {
	return d == Allow || d == Ask || d == Deny
}

// Parse converts a string to a Decision. The empty string parses as None.
func Parse(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "allow", "approve", "approved":
		return Allow, nil
	case "ask":
		return Ask, nil
	case "deny", "denied", "block":
		return Deny, nil
	default:
		return None, fmt.Errorf("decision: unknown decision %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Decision) MarshalText() ([]byte, error) {
	if d < None || d > Deny {
		return nil, fmt.Errorf("decision: invalid decision %d", int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Decision) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MostRestrictive returns the most restrictive of the given decisions, or
// None when all are None.
func MostRestrictive(ds ...Decision) Decision {
	out := None
	for _, d := range ds {
		if d > out {
			out = d
		}
	}
	return out
}
