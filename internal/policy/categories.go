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
	"regexp"
	"sort"
	"strings"
)

var (
	categoryNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	roleNameRe     = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
	macroRe        = regexp.MustCompile(`^\{\{([^{}]*)\}\}$`)
)

// DefaultCategories returns the built-in categories. Callers may modify the
// returned map.
func DefaultCategories() map[string][]string {
	return map[string][]string{
		"source":       {"src/**", "lib/**"},
		"tests":        {"tests/**", "test-fixtures/**", "*.test.*", "*.spec.*", "*_test.go", "test_*.py", "**/test_*.py", "**/*_test.go"},
		"docs":         {"docs/**"},
		"ci":           {".github/**", ".gitlab-ci.yml", ".circleci/**", "Jenkinsfile", ".buildkite/**"},
		"infra":        {"*.tf", "*.tfvars", "*.hcl", "terraform/**", "infra/**", "pulumi/**", "cdk/**", "cloudformation/**", "ansible/**", "helm/**", ".terraform.lock.hcl"},
		"config_files": {"Cargo.toml", "Cargo.lock", "package.json", "package-lock.json", "go.mod", "go.sum", "pyproject.toml", "requirements*.txt"},
		"devops": {
			"Dockerfile*", "docker-compose*", ".dockerignore", "Makefile", ".eslintrc*", ".prettierrc*",
			".editorconfig", "tsconfig*", ".*rc", ".*rc.*", ".tool-versions", ".nvmrc", ".python-version",
			".ruby-version", "rust-toolchain.toml", "lefthook.yml", ".husky/**", ".pre-commit-config.yaml",
		},
		"test_config":             {"jest.config.*", "pytest.ini", "vitest.config.*", ".coveragerc", "codecov.yml"},
		"research_output":         {"docs/research/**"},
		"architecture_output":     {"docs/architecture/**", "docs/adr/**"},
		"plans_output":            {"docs/plans/**"},
		"reviews_output":          {"docs/reviews/**"},
		"security_reviews_output": {"docs/reviews/security/**"},
		"docs_output":             {"docs/**", "*.md", "*.aisp", "CHANGELOG.md", "LICENSE"},
	}
}

// mergeCategories replaces built-in categories with project categories of
// the same name. Lists are replaced whole, never merged element-wise.
func mergeCategories(project map[string]StringOrSlice) (map[string][]string, error) {
	merged := DefaultCategories()
	names := make([]string, 0, len(project))
	for name := range project {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		field := "categories." + name
		if !categoryNameRe.MatchString(name) {
			return nil, configErr(RolesFile, field, "invalid category name %q (want [a-z][a-z0-9_]*)", name)
		}
		patterns := make([]string, 0, len(project[name]))
		for i, p := range project[name] {
			if strings.Contains(p, "{{") || strings.Contains(p, "}}") {
				return nil, configErr(RolesFile, fmt.Sprintf("%s[%d]", field, i), "categories cannot reference other categories")
			}
			if err := validateGlob(cleanPattern(p)); err != nil {
				return nil, configErr(RolesFile, fmt.Sprintf("%s[%d]", field, i), "%v", err)
			}
			patterns = append(patterns, cleanPattern(p))
		}
		merged[name] = patterns
	}
	return merged, nil
}

// expandMacros replaces each "{{name}}" entry with the named category's
// patterns. Plain globs pass through.
func expandMacros(patterns []string, categories map[string][]string, field string) ([]string, error) {
	out := make([]string, 0, len(patterns))
	for i, p := range patterns {
		p = strings.TrimSpace(p)
		if !strings.Contains(p, "{{") && !strings.Contains(p, "}}") {
			out = append(out, p)
			continue
		}
		m := macroRe.FindStringSubmatch(p)
		if m == nil {
			return nil, configErr(RolesFile, fmt.Sprintf("%s[%d]", field, i), "malformed category reference %q", p)
		}
		name := strings.TrimSpace(m[1])
		if !categoryNameRe.MatchString(name) {
			return nil, configErr(RolesFile, fmt.Sprintf("%s[%d]", field, i), "invalid category name %q", name)
		}
		cat, ok := categories[name]
		if !ok {
			return nil, configErr(RolesFile, fmt.Sprintf("%s[%d]", field, i), "unknown category %q", name)
		}
		out = append(out, cat...)
	}
	return out, nil
}
