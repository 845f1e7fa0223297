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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDefaults(t *testing.T) {
	n := NewNormalizer(DefaultCategories())

	tests := []struct {
		in   string
		want string
	}{
		{"docs/reviews/security/findings.md", "security_reviews_output:findings.md"},
		{"docs/reviews/other.md", "reviews_output:other.md"},
		{"docs/research/x.md", "research_output:x.md"},
		{"docs/guide.md", "docs:guide.md"},
		{"src/main.rs", "source:main.rs"},
		{"src/deep/nested/mod.rs", "source:deep/nested/mod.rs"},
		{"Cargo.toml", "config_files:Cargo.toml"},
		{".github/workflows/ci.yml", "ci:workflows/ci.yml"},
		{"random/file.txt", "random/file.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalize(tt.in))
		})
	}
}

func TestNormalizeKeysAreDistinct(t *testing.T) {
	n := NewNormalizer(DefaultCategories())
	a := n.Normalize("docs/reviews/security/findings.md")
	b := n.Normalize("docs/reviews/other.md")
	c := n.Normalize("docs/research/x.md")
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, b, c)
}

func TestNormalizerCategory(t *testing.T) {
	n := NewNormalizer(map[string][]string{"source": {"src/**"}})
	cat, ok := n.Category("src/x.go")
	assert.True(t, ok)
	assert.Equal(t, "source", cat)
	_, ok = n.Category("other/x.go")
	assert.False(t, ok)
	assert.Equal(t, "", n.Normalize(""))
}

func TestGlobSet(t *testing.T) {
	g := MustCompileGlobs("Cargo.toml", "src/**", "*.md", "./docs/adr/**", "**/secrets/**")

	tests := []struct {
		name    string
		pattern string
		ok      bool
	}{
		{"Cargo.toml", "Cargo.toml", true},
		{"src", "src/**", true},
		{"src/a/b/c.rs", "src/**", true},
		{"README.md", "*.md", true},
		{"docs/adr/0001.md", "docs/adr/**", true},
		{"app/secrets/key.pem", "**/secrets/**", true},
		{"docs/other.txt", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := g.Match(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.pattern, p)
		})
	}
	assert.Equal(t, 5, g.Len())

	_, err := CompileGlobs([]string{"src/{a"})
	assert.Error(t, err)
	_, err = CompileGlobs([]string{"  "})
	assert.Error(t, err)
}
