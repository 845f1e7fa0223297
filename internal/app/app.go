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

// Package app assembles a ready-to-use cascade from a project's config
// directory. The CLI and the SDK both open one App per process.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Epiphytic/hookwise/internal/approval"
	"github.com/Epiphytic/hookwise/internal/embed"
	"github.com/Epiphytic/hookwise/internal/engine"
	"github.com/Epiphytic/hookwise/internal/metrics"
	"github.com/Epiphytic/hookwise/internal/notify"
	"github.com/Epiphytic/hookwise/internal/policy"
	"github.com/Epiphytic/hookwise/internal/scope"
	"github.com/Epiphytic/hookwise/internal/session"
	"github.com/Epiphytic/hookwise/internal/store"
	"github.com/Epiphytic/hookwise/internal/supervisor"
)

// DefaultConfigDir is the project config directory name.
const DefaultConfigDir = ".hookwise"

// Team environment variables, in lookup order.
var teamEnv = []string{"HOOKWISE_TEAM", "CLAUDE_TEAM_ID"}

// TeamFromEnv returns the team id from the environment, or "" for solo use.
func TeamFromEnv() string {
	for _, name := range teamEnv {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// Options locate the project and shared state.
type Options struct {
	// ConfigDir holds policy.yml, roles.yml, overrides and the decision log.
	ConfigDir string

	// StateDir holds the session registry. Defaults to session.DefaultDir().
	StateDir string

	// QueuePath overrides the approval mailbox location.
	QueuePath string

	Team   string
	Logger *slog.Logger

	// Supervisor replaces the configured backend, mainly for tests.
	Supervisor supervisor.Backend

	// Metrics, when set, records every decision.
	Metrics *metrics.Metrics
}

// App holds every long-lived handle of one project.
type App struct {
	ConfigDir    string
	Project      string
	Team         string
	Config       *policy.Config
	Locations    scope.Locations
	Declarations *scope.Declarations
	Store        *store.Store
	LoadReport   store.LoadReport
	Registry     *session.Registry
	Queue        *approval.Queue
	Supervisor   supervisor.Backend
	Embedder     *embed.Hashing
	Engine       *engine.Engine

	logger *slog.Logger
}

// Open loads configuration and opens the decision store. A configuration
// problem is returned as a *policy.ConfigError.
func Open(opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ConfigDir == "" {
		opts.ConfigDir = DefaultConfigDir
	}
	configDir, err := filepath.Abs(opts.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("app: resolve config dir: %w", err)
	}
	if opts.StateDir == "" {
		opts.StateDir = session.DefaultDir()
	}
	if opts.QueuePath == "" {
		opts.QueuePath = approval.DefaultPath(opts.Team)
	}

	home, _ := os.UserHomeDir()
	cfg, err := policy.LoadDir(configDir, policy.WithHome(home), policy.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	doc := cfg.Document()

	a := &App{
		ConfigDir: configDir,
		Project:   filepath.Dir(configDir),
		Team:      opts.Team,
		Config:    cfg,
		Locations: scope.DefaultLocations(configDir),
		Registry:  session.NewRegistry(opts.StateDir, opts.Team, logger),
		Queue: approval.NewQueue(opts.QueuePath,
			approval.WithPoll(doc.Timeouts.HumanPoll.Duration),
			approval.WithLogger(logger)),
		Embedder: embed.NewHashing(embed.DefaultDim),
		logger:   logger,
	}

	if a.Declarations, err = scope.Load(a.Locations); err != nil {
		return nil, err
	}

	a.Supervisor = opts.Supervisor
	if a.Supervisor == nil {
		if a.Supervisor, err = supervisor.New(doc.Supervisor, opts.Team, logger); err != nil {
			return nil, &policy.ConfigError{File: policy.PolicyFile, Field: "supervisor.backend", Reason: "invalid", Err: err}
		}
	}

	backend, err := store.OpenBackend(configDir, doc.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("app: open decision log: %w", err)
	}
	a.Store, a.LoadReport, err = store.Open(backend,
		store.WithSnapshotPath(filepath.Join(configDir, store.DefaultSnapshotPath)),
		store.WithStoreLogger(logger))
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("app: load decisions: %w", err)
	}
	if a.LoadReport.Skipped > 0 {
		logger.Warn("app: skipped corrupt decision records", "skipped", a.LoadReport.Skipped, "loaded", a.LoadReport.Loaded)
	}

	notifier, err := notify.New(doc.Notify.WebhookURL(), doc.Notify.Platform)
	if err != nil {
		_ = a.Store.Close()
		return nil, &policy.ConfigError{File: policy.PolicyFile, Field: "notify.platform", Reason: "invalid", Err: err}
	}

	a.Engine, err = engine.New(engine.Options{
		Config:       cfg,
		Declarations: a.Declarations,
		Rules:        engine.LocationWriter(a.Locations),
		Store:        a.Store,
		Registry:     a.Registry,
		Queue:        a.Queue,
		Supervisor:   a.Supervisor,
		Embedder:     a.Embedder,
		Project:      a.Project,
		Metrics:      opts.Metrics,
		Notifier:     notifier,
		Logger:       logger,
	})
	if err != nil {
		_ = a.Store.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the decision store.
func (a *App) Close() error {
	if a == nil || a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

// LogPath is the JSONL decision log, or "" when another backend is used.
func (a *App) LogPath() string {
	st := a.Config.Document().Storage
	if b := strings.ToLower(st.Backend); b != "" && b != policy.StorageJSONL {
		return ""
	}
	p := st.Path
	if p == "" {
		p = store.DefaultJSONLFile
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(a.ConfigDir, p)
	}
	return p
}

// ErrNotInitialized is returned by RequireInit when the project has no
// config directory.
var ErrNotInitialized = errors.New("app: project not initialized, run `hookwise init`")

// RequireInit checks that configDir exists.
func RequireInit(configDir string) error {
	info, err := os.Stat(configDir)
	if errors.Is(err, os.ErrNotExist) || (err == nil && !info.IsDir()) {
		return ErrNotInitialized
	}
	return err
}
