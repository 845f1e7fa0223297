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

// Package policy compiles the hookwise policy and roles documents into an
// immutable Config and evaluates Tier 0: sensitive paths and role globs.
//
// Category macros ({{name}}) are expanded once, at load time. Runtime code
// only sees compiled GlobSets and never re-interprets macro tokens.
package policy

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
)

// Role is a compiled role definition.
type Role struct {
	Name        string
	Description string

	allowWrite *GlobSet
	denyWrite  *GlobSet
	allowRead  *GlobSet
}

// AllowWrite returns the expanded allow_write patterns.
func (r *Role) AllowWrite() []string { return r.allowWrite.Patterns() }

// DenyWrite returns the expanded deny_write patterns.
func (r *Role) DenyWrite() []string { return r.denyWrite.Patterns() }

// AllowRead returns the expanded allow_read patterns.
func (r *Role) AllowRead() []string { return r.allowRead.Patterns() }

// Config is the resolved, immutable configuration consumed by the cascade.
type Config struct {
	doc        Document
	sensitive  *GlobSet
	roles      map[string]*Role
	categories map[string][]string
	normalizer *Normalizer
	home       string
}

type loadConfig struct {
	home   string
	logger *slog.Logger
}

// LoadOption configures Load.
type LoadOption func(*loadConfig)

// WithHome overrides the home directory used to match "~/" patterns.
func WithHome(dir string) LoadOption {
	return func(c *loadConfig) {
		c.home = dir
	}
}

// WithLogger configures the logger used while loading.
// Defaults to slog.Default() if not set.
func WithLogger(logger *slog.Logger) LoadOption {
	return func(c *loadConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Load validates and compiles the two documents. Every failure is a
// *ConfigError.
func Load(doc Document, roles RolesDocument, opts ...LoadOption) (*Config, error) {
	lc := loadConfig{}
	if home, err := os.UserHomeDir(); err == nil {
		lc.home = home
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&lc)
		}
	}
	if lc.logger == nil {
		lc.logger = slog.Default()
	}

	if err := doc.validate(); err != nil {
		return nil, err
	}
	sensitive, err := CompileGlobs(doc.SensitivePaths.AskWrite)
	if err != nil {
		return nil, configErr(PolicyFile, "sensitive_paths.ask_write", "%v", err)
	}

	categories, err := mergeCategories(roles.Categories)
	if err != nil {
		return nil, err
	}

	if len(roles.Roles) == 0 {
		return nil, configErr(RolesFile, "roles", "no roles defined")
	}
	compiled := make(map[string]*Role, len(roles.Roles))
	for key, spec := range roles.Roles {
		role, err := compileRole(key, spec, categories)
		if err != nil {
			return nil, err
		}
		compiled[key] = role
	}

	cfg := &Config{
		doc:        doc,
		sensitive:  sensitive,
		roles:      compiled,
		categories: categories,
		normalizer: NewNormalizer(categories),
		home:       lc.home,
	}
	lc.logger.Debug("policy: config loaded",
		"roles", len(compiled),
		"categories", len(categories),
		"sensitive_patterns", sensitive.Len(),
	)
	return cfg, nil
}

func compileRole(key string, spec RoleSpec, categories map[string][]string) (*Role, error) {
	field := "roles." + key
	if !roleNameRe.MatchString(key) {
		return nil, configErr(RolesFile, field, "invalid role name %q (want [a-z][a-z0-9_-]*)", key)
	}
	if spec.Name != "" && spec.Name != key {
		return nil, configErr(RolesFile, field+".name", "name %q does not match role key %q", spec.Name, key)
	}

	compile := func(list string, patterns []string) (*GlobSet, error) {
		expanded, err := expandMacros(patterns, categories, field+".paths."+list)
		if err != nil {
			return nil, err
		}
		set, err := CompileGlobs(expanded)
		if err != nil {
			return nil, configErr(RolesFile, field+".paths."+list, "%v", err)
		}
		return set, nil
	}

	allowWrite, err := compile("allow_write", spec.Paths.AllowWrite)
	if err != nil {
		return nil, err
	}
	denyWrite, err := compile("deny_write", spec.Paths.DenyWrite)
	if err != nil {
		return nil, err
	}
	allowRead, err := compile("allow_read", spec.Paths.AllowRead)
	if err != nil {
		return nil, err
	}
	return &Role{
		Name:        key,
		Description: spec.Description,
		allowWrite:  allowWrite,
		denyWrite:   denyWrite,
		allowRead:   allowRead,
	}, nil
}

// Document returns the policy document settings.
func (c *Config) Document() Document { return c.doc }

// Normalizer returns the category normalizer.
func (c *Config) Normalizer() *Normalizer { return c.normalizer }

// Role looks up a role by name.
func (c *Config) Role(name string) (*Role, bool) {
	r, ok := c.roles[name]
	return r, ok
}

// MustRole is like Role but returns an error naming the available roles.
func (c *Config) MustRole(name string) (*Role, error) {
	if r, ok := c.roles[name]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("policy: unknown role %q (available: %v)", name, c.RoleNames())
}

// RoleNames returns the configured role names, sorted.
func (c *Config) RoleNames() []string {
	names := make([]string, 0, len(c.roles))
	for n := range c.roles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Categories returns the merged categories. Callers must not modify the
// returned slices.
func (c *Config) Categories() map[string][]string {
	out := make(map[string][]string, len(c.categories))
	for k, v := range c.categories {
		out[k] = v
	}
	return out
}
