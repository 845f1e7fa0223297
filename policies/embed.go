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

// Package policies embeds the default hookwise policy and roles documents.
package policies

import (
	"embed"
	"fmt"
)

//go:embed policy.yml roles.yml
var FS embed.FS

// DocumentNames lists the embedded documents in the order `hookwise init`
// writes them.
var DocumentNames = []string{"policy.yml", "roles.yml"}

// Document returns an embedded document by file name.
func Document(name string) ([]byte, error) {
	for _, n := range DocumentNames {
		if n == name {
			return FS.ReadFile(name)
		}
	}
	return nil, fmt.Errorf("policies: unknown document %q", name)
}

// DefaultPolicy returns the embedded policy.yml.
func DefaultPolicy() []byte {
	data, _ := FS.ReadFile("policy.yml")
	return data
}

// DefaultRoles returns the embedded roles.yml.
func DefaultRoles() []byte {
	data, _ := FS.ReadFile("roles.yml")
	return data
}
