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
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Key identifies a class of equivalent requests. Two requests with the same
// Key receive the same cached decision.
type Key struct {
	// Role is the session's role name.
	Role string `json:"role"`

	// Tool is the tool name as reported by the host.
	Tool string `json:"tool"`

	// Subject is the normalized path set for file tools, or the sorted token
	// set of the sanitized input for everything else.
	Subject string `json:"subject"`

	// Scope is the project identity the decision applies to.
	Scope string `json:"scope"`
}

// Digest returns a stable hex digest of the key. Fields are length-prefixed
// so that no two distinct keys share an encoding.
func (k Key) Digest() string {
	h := blake3.New()
	var n [8]byte
	for _, field := range []string{k.Role, k.Tool, k.Subject, k.Scope} {
		binary.BigEndian.PutUint64(n[:], uint64(len(field)))
		_, _ = h.Write(n[:])
		_, _ = h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Short returns an abbreviated digest for log lines and rule names.
func (k Key) Short() string {
	return k.Digest()[:12]
}

// IsZero reports whether k is the zero key.
func (k Key) IsZero() bool {
	return k == Key{}
}
