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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Epiphytic/hookwise/policies"
	"gopkg.in/yaml.v3"
)

const (
	// PolicyFile is the policy document's file name inside the config dir.
	PolicyFile = "policy.yml"

	// RolesFile is the roles document's file name inside the config dir.
	RolesFile = "roles.yml"
)

// Supervisor backends accepted in supervisor.backend.
const (
	BackendSocket    = "socket"
	BackendAnthropic = "anthropic"
	BackendOpenAI    = "openai"
	BackendNone      = "none"
)

// Storage backends accepted in storage.backend.
const (
	StorageJSONL  = "jsonl"
	StorageSQLite = "sqlite"
)

// Document is the policy document: sensitive paths, thresholds, timeouts,
// and backend selection.
type Document struct {
	SensitivePaths SensitivePaths   `yaml:"sensitive_paths"`
	Similarity     Similarity       `yaml:"similarity"`
	Confidence     Confidence       `yaml:"confidence"`
	Timeouts       Timeouts         `yaml:"timeouts"`
	Supervisor     SupervisorConfig `yaml:"supervisor"`
	Storage        StorageConfig    `yaml:"storage"`
	Sanitize       SanitizeConfig   `yaml:"sanitize"`
	Notify         NotifyConfig     `yaml:"notify"`
}

// SensitivePaths lists role-independent patterns that always require a human.
type SensitivePaths struct {
	AskWrite StringOrSlice `yaml:"ask_write"`
}

// Similarity holds the approximate-match thresholds.
type Similarity struct {
	JaccardThreshold   float64 `yaml:"jaccard_threshold"`
	JaccardMinTokens   int     `yaml:"jaccard_min_tokens"`
	EmbeddingThreshold float64 `yaml:"embedding_threshold"`
}

// Confidence holds the minimum supervisor confidence accepted without a human.
type Confidence struct {
	Supervisor float64 `yaml:"supervisor"`
}

// Timeouts bound the blocking tiers.
type Timeouts struct {
	Registration Duration `yaml:"registration"`
	Supervisor   Duration `yaml:"supervisor"`
	Human        Duration `yaml:"human"`
	HumanPoll    Duration `yaml:"human_poll"`
}

// SupervisorConfig selects and configures the supervisor backend.
type SupervisorConfig struct {
	Backend    string `yaml:"backend"`
	SocketPath string `yaml:"socket_path,omitempty"`
	Model      string `yaml:"model,omitempty"`
	BaseURL    string `yaml:"base_url,omitempty"`
	APIKeyEnv  string `yaml:"api_key_env,omitempty"`
	MaxTokens  int    `yaml:"max_tokens,omitempty"`
	Retries    int    `yaml:"retries"`
}

// StorageConfig selects the decision log backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path,omitempty"`
	Fsync   *bool  `yaml:"fsync,omitempty"`
}

// FsyncEnabled reports whether appends should be fsynced. Defaults to true.
func (s StorageConfig) FsyncEnabled() bool {
	return s.Fsync == nil || *s.Fsync
}

// SanitizeConfig tunes the sanitization pipeline.
type SanitizeConfig struct {
	EntropyThreshold float64 `yaml:"entropy_threshold"`
}

// Notify platforms accepted in notify.platform.
const (
	NotifyAuto    = "auto"
	NotifySlack   = "slack"
	NotifyDiscord = "discord"
	NotifyWebhook = "webhook"
)

// NotifyConfig configures the webhook posted when a call waits for a human.
type NotifyConfig struct {
	URL      string `yaml:"url,omitempty"`
	URLEnv   string `yaml:"url_env,omitempty"`
	Platform string `yaml:"platform,omitempty"`
}

// WebhookURL returns the configured URL, falling back to the URLEnv
// variable. Empty disables notifications.
func (n NotifyConfig) WebhookURL() string {
	if n.URL != "" {
		return n.URL
	}
	if n.URLEnv != "" {
		return os.Getenv(n.URLEnv)
	}
	return ""
}

// RolesDocument is the roles document: categories and role definitions.
type RolesDocument struct {
	Categories map[string]StringOrSlice `yaml:"categories,omitempty"`
	Roles      map[string]RoleSpec      `yaml:"roles"`
}

// RoleSpec is one role as written in roles.yml.
type RoleSpec struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Paths       PathSpec `yaml:"paths"`
}

// PathSpec holds a role's glob lists before category expansion.
type PathSpec struct {
	AllowWrite StringOrSlice `yaml:"allow_write"`
	DenyWrite  StringOrSlice `yaml:"deny_write"`
	AllowRead  StringOrSlice `yaml:"allow_read"`
}

// DefaultDocument returns the embedded default policy document.
func DefaultDocument() Document {
	var doc Document
	if err := decodeStrict(policies.DefaultPolicy(), &doc); err != nil {
		panic(fmt.Sprintf("policy: embedded %s is invalid: %v", PolicyFile, err))
	}
	return doc
}

// DefaultRoles returns the embedded default roles document.
func DefaultRoles() RolesDocument {
	var doc RolesDocument
	if err := decodeStrict(policies.DefaultRoles(), &doc); err != nil {
		panic(fmt.Sprintf("policy: embedded %s is invalid: %v", RolesFile, err))
	}
	return doc
}

// ParseDocument parses a policy document layered over the embedded defaults.
// Fields absent from data keep their default values; lists are replaced.
func ParseDocument(data []byte) (Document, error) {
	doc := DefaultDocument()
	if err := decodeStrict(data, &doc); err != nil {
		return Document{}, &ConfigError{File: PolicyFile, Reason: "parse", Err: err}
	}
	if err := doc.validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// ParseRoles parses a roles document. Roles are taken from data alone;
// categories are merged over the built-ins later, at compile time.
func ParseRoles(data []byte) (RolesDocument, error) {
	var doc RolesDocument
	if err := decodeStrict(data, &doc); err != nil {
		return RolesDocument{}, &ConfigError{File: RolesFile, Reason: "parse", Err: err}
	}
	return doc, nil
}

// ReadDocuments reads policy.yml and roles.yml from dir. A missing file
// falls back to the embedded default.
func ReadDocuments(dir string) (Document, RolesDocument, error) {
	policyData, err := readOptional(filepath.Join(dir, PolicyFile))
	if err != nil {
		return Document{}, RolesDocument{}, &ConfigError{File: PolicyFile, Reason: "read", Err: err}
	}
	var doc Document
	if policyData == nil {
		doc = DefaultDocument()
	} else if doc, err = ParseDocument(policyData); err != nil {
		return Document{}, RolesDocument{}, err
	}

	rolesData, err := readOptional(filepath.Join(dir, RolesFile))
	if err != nil {
		return Document{}, RolesDocument{}, &ConfigError{File: RolesFile, Reason: "read", Err: err}
	}
	roles := DefaultRoles()
	if rolesData != nil {
		if roles, err = ParseRoles(rolesData); err != nil {
			return Document{}, RolesDocument{}, err
		}
	}
	return doc, roles, nil
}

// LoadDir reads and compiles the documents in dir.
func LoadDir(dir string, opts ...LoadOption) (*Config, error) {
	doc, roles, err := ReadDocuments(dir)
	if err != nil {
		return nil, err
	}
	return Load(doc, roles, opts...)
}

func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// validate checks thresholds, timeouts and backend names.
func (d *Document) validate() error {
	unit := func(field string, v float64) error {
		if v <= 0 || v > 1 {
			return configErr(PolicyFile, field, "must be in (0, 1], got %v", v)
		}
		return nil
	}
	if err := unit("similarity.jaccard_threshold", d.Similarity.JaccardThreshold); err != nil {
		return err
	}
	if err := unit("similarity.embedding_threshold", d.Similarity.EmbeddingThreshold); err != nil {
		return err
	}
	if err := unit("confidence.supervisor", d.Confidence.Supervisor); err != nil {
		return err
	}
	if d.Similarity.JaccardMinTokens < 1 {
		return configErr(PolicyFile, "similarity.jaccard_min_tokens", "must be at least 1")
	}

	for field, dur := range map[string]time.Duration{
		"timeouts.registration": d.Timeouts.Registration.Duration,
		"timeouts.supervisor":   d.Timeouts.Supervisor.Duration,
		"timeouts.human":        d.Timeouts.Human.Duration,
		"timeouts.human_poll":   d.Timeouts.HumanPoll.Duration,
	} {
		if dur < 0 {
			return configErr(PolicyFile, field, "must not be negative")
		}
	}
	if d.Timeouts.HumanPoll.Duration == 0 {
		return configErr(PolicyFile, "timeouts.human_poll", "must be positive")
	}

	switch strings.ToLower(d.Supervisor.Backend) {
	case BackendSocket, BackendAnthropic, BackendOpenAI:
		if d.Timeouts.Supervisor.Duration <= 0 {
			return configErr(PolicyFile, "timeouts.supervisor", "must be positive when a supervisor is configured")
		}
		if d.Timeouts.Human.Duration > 0 && d.Timeouts.Supervisor.Duration >= d.Timeouts.Human.Duration {
			return configErr(PolicyFile, "timeouts.supervisor", "must be shorter than timeouts.human (%s >= %s)",
				d.Timeouts.Supervisor.Duration, d.Timeouts.Human.Duration)
		}
	case BackendNone, "":
	default:
		return configErr(PolicyFile, "supervisor.backend", "unknown backend %q", d.Supervisor.Backend)
	}
	if d.Supervisor.Retries < 0 {
		return configErr(PolicyFile, "supervisor.retries", "must not be negative")
	}

	switch strings.ToLower(d.Storage.Backend) {
	case StorageJSONL, StorageSQLite, "":
	default:
		return configErr(PolicyFile, "storage.backend", "unknown backend %q", d.Storage.Backend)
	}

	if d.Sanitize.EntropyThreshold < 0 {
		return configErr(PolicyFile, "sanitize.entropy_threshold", "must not be negative")
	}

	switch strings.ToLower(d.Notify.Platform) {
	case NotifyAuto, NotifySlack, NotifyDiscord, NotifyWebhook, "":
	default:
		return configErr(PolicyFile, "notify.platform", "unknown platform %q", d.Notify.Platform)
	}
	if u := d.Notify.URL; u != "" && !strings.HasPrefix(u, "https://") && !strings.HasPrefix(u, "http://") {
		return configErr(PolicyFile, "notify.url", "must be an http(s) URL")
	}

	for i, p := range d.SensitivePaths.AskWrite {
		if err := validateGlob(p); err != nil {
			return configErr(PolicyFile, fmt.Sprintf("sensitive_paths.ask_write[%d]", i), "%v", err)
		}
	}
	return nil
}
