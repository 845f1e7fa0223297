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

// Package engine runs the permission cascade for one tool call.
//
// Tiers run strictly in order and the first decisive tier wins:
//
//	session gate → path policy + scope merge → exact cache →
//	token similarity → embedding similarity → supervisor → human
//
// The approximate tiers only ever allow; they abstain rather than deny. Only
// the supervisor and human tiers block on I/O. Terminal decisions are
// written back to the decision store so the next identical call resolves
// from the cache.
//
// Engine is safe for concurrent use.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Epiphytic/hookwise/internal/approval"
	"github.com/Epiphytic/hookwise/internal/decision"
	"github.com/Epiphytic/hookwise/internal/metrics"
	"github.com/Epiphytic/hookwise/internal/notify"
	"github.com/Epiphytic/hookwise/internal/policy"
	"github.com/Epiphytic/hookwise/internal/sanitize"
	"github.com/Epiphytic/hookwise/internal/scope"
	"github.com/Epiphytic/hookwise/internal/session"
	"github.com/Epiphytic/hookwise/internal/store"
	"github.com/Epiphytic/hookwise/internal/supervisor"
)

// Registry resolves a session to its role.
type Registry interface {
	WaitForRegistration(ctx context.Context, id string, timeout time.Duration) (session.Session, error)
}

// HumanQueue hands a call to a human and waits for the answer.
type HumanQueue interface {
	Enqueue(req approval.PendingRequest) (approval.PendingRequest, error)
	Wait(ctx context.Context, id string, timeout time.Duration) (approval.HumanResponse, error)
}

// RuleWriter persists an override rule at a scope level.
type RuleWriter interface {
	AppendRule(level scope.Level, rule scope.Rule) error
}

// LocationWriter is the RuleWriter for on-disk override files.
type LocationWriter scope.Locations

// AppendRule implements RuleWriter.
func (w LocationWriter) AppendRule(level scope.Level, rule scope.Rule) error {
	path, err := scope.Locations(w).Path(level)
	if err != nil {
		return err
	}
	return scope.AppendRule(path, rule)
}

// Options wires an Engine. Config, Store and Registry are required.
type Options struct {
	Config       *policy.Config
	Declarations *scope.Declarations
	Rules        RuleWriter
	Store        *store.Store
	Registry     Registry
	Queue        HumanQueue
	Supervisor   supervisor.Backend
	Embedder     store.Embedder
	Sanitizer    *sanitize.Pipeline

	// Metrics is optional.
	Metrics *metrics.Metrics

	// Notifier, when set, is told about each new pending approval.
	Notifier notify.Notifier

	// Project is the project root; it scopes cache keys.
	Project string

	Logger *slog.Logger
	Now    func() time.Time
}

// Engine evaluates tool calls.
type Engine struct {
	cfg        *policy.Config
	store      *store.Store
	registry   Registry
	queue      HumanQueue
	supervisor supervisor.Backend
	embedder   store.Embedder
	sanitizer  *sanitize.Pipeline
	rules      RuleWriter
	metrics    *metrics.Metrics
	notifier   notify.Notifier
	project    string
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.RWMutex
	decls *scope.Declarations
}

// New builds an engine from opts.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Config == nil:
		return nil, fmt.Errorf("engine: no policy config")
	case opts.Store == nil:
		return nil, fmt.Errorf("engine: no decision store")
	case opts.Registry == nil:
		return nil, fmt.Errorf("engine: no session registry")
	}
	e := &Engine{
		cfg:        opts.Config,
		store:      opts.Store,
		registry:   opts.Registry,
		queue:      opts.Queue,
		supervisor: opts.Supervisor,
		embedder:   opts.Embedder,
		sanitizer:  opts.Sanitizer,
		rules:      opts.Rules,
		metrics:    opts.Metrics,
		notifier:   opts.Notifier,
		project:    opts.Project,
		logger:     opts.Logger,
		now:        opts.Now,
		decls:      opts.Declarations,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.sanitizer == nil {
		e.sanitizer = sanitize.New(sanitize.WithEntropyThreshold(opts.Config.Document().Sanitize.EntropyThreshold))
	}
	if e.supervisor == nil {
		e.supervisor = supervisor.Unavailable{Reason: "no supervisor configured"}
	}
	if e.decls == nil {
		e.decls = &scope.Declarations{}
	}
	return e, nil
}

func (e *Engine) declarations() *scope.Declarations {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.decls
}

// addDeclaration makes a freshly written override visible to this process.
func (e *Engine) addDeclaration(level scope.Level, r scope.Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := *e.decls
	switch level {
	case scope.LevelOrg:
		next.Org = append(append(scope.Ruleset(nil), next.Org...), r)
	case scope.LevelProject:
		next.Project = append(append(scope.Ruleset(nil), next.Project...), r)
	case scope.LevelUser:
		next.User = append(append(scope.Ruleset(nil), next.User...), r)
	}
	e.decls = &next
}

// Request is one tool call from the host.
type Request struct {
	Session string
	Tool    string
	Input   map[string]any
	Cwd     string
}

// Result is the cascade's answer.
type Result struct {
	Decision   decision.Decision
	Tier       decision.Tier
	Rule       string
	Reason     string
	Confidence float64
	Key        decision.Key

	// PendingID is set when a human was asked.
	PendingID string

	// Redactions counts secrets removed from the input.
	Redactions int
}

// Message renders the reason shown to the agent, naming the deciding tier
// and rule.
func (r Result) Message() string {
	rule := r.Rule
	if rule == "" {
		rule = "-"
	}
	return fmt.Sprintf("hookwise[%s/%s]: %s", r.Tier, rule, r.Reason)
}
