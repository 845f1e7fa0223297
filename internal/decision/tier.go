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

package decision

import (
	"fmt"
	"strings"
)

// Tier identifies which stage of the cascade produced a decision.
type Tier int

const (
	TierUnknown Tier = iota
	TierDisabled
	TierUnregistered
	TierPathPolicy
	TierExactCache
	TierTokenSimilarity
	TierEmbeddingSimilarity
	TierSupervisor
	TierHuman
	TierOverride
)

var tierNames = map[Tier]string{
	TierUnknown:             "unknown",
	TierDisabled:            "disabled",
	TierUnregistered:        "unregistered",
	TierPathPolicy:          "path_policy",
	TierExactCache:          "exact_cache",
	TierTokenSimilarity:     "token_similarity",
	TierEmbeddingSimilarity: "embedding_similarity",
	TierSupervisor:          "supervisor",
	TierHuman:               "human",
	TierOverride:            "override",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Explicit reports whether decisions from this tier were made by a person.
// Explicit decisions may supersede a stored ask; automatic ones may not.
func (t Tier) Explicit() bool {
	return t == TierHuman || t == TierOverride
}

// ParseTier converts a tier name to a Tier.
func ParseTier(s string) (Tier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range tierNames {
		if name == s {
			return t, nil
		}
	}
	return TierUnknown, fmt.Errorf("decision: unknown tier %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
