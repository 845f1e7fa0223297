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

package policy

import (
	"fmt"
	"strings"
)

// ConfigError reports a malformed or contradictory policy or roles document.
// It is fatal at load time.
type ConfigError struct {
	// File is the document that failed (for example "roles.yml").
	File string

	// Field is a dotted path to the offending value, if known.
	Field string

	// Reason describes the failure.
	Reason string

	// Err is the underlying cause, if any.
	Err error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("policy: ")
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(": ")
	}
	if e.Field != "" {
		b.WriteString(e.Field)
		b.WriteString(": ")
	}
	b.WriteString(e.Reason)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErr(file, field, format string, args ...any) *ConfigError {
	return &ConfigError{File: file, Field: field, Reason: fmt.Sprintf(format, args...)}
}
