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

package sdk

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/Epiphytic/hookwise/internal/app"
	"github.com/Epiphytic/hookwise/internal/decision"
	"github.com/Epiphytic/hookwise/internal/engine"
	"github.com/Epiphytic/hookwise/internal/metrics"
)

// contextKey is an unexported type for context keys, preventing collisions
// with keys from other packages.
type contextKey string

const (
	// SessionKey is the context key for the session identifier.
	SessionKey contextKey = "hookwise-session"

	// CwdKey is the context key for the working directory of a call.
	CwdKey contextKey = "hookwise-cwd"
)

// WithSession returns a context carrying the session id used by Wrap.
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionKey, id)
}

// WithCwd returns a context carrying the working directory used by Wrap.
func WithCwd(ctx context.Context, dir string) context.Context {
	return context.WithValue(ctx, CwdKey, dir)
}

// ToolFunc is a runtime tool function wrapped by hookwise checks.
type ToolFunc func(ctx context.Context, params map[string]any) (any, error)

// Option configures Open.
type Option func(*app.Options)

// WithTeam selects a team's shared registry, queue and supervisor socket.
func WithTeam(team string) Option {
	return func(o *app.Options) { o.Team = team }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *app.Options) { o.Logger = logger }
}

// WithStateDir overrides where the session registry lives.
func WithStateDir(dir string) Option {
	return func(o *app.Options) { o.StateDir = dir }
}

// WithQueuePath overrides the approval mailbox location.
func WithQueuePath(path string) Option {
	return func(o *app.Options) { o.QueuePath = path }
}

// SDK evaluates tool calls for one project.
type SDK struct {
	app     *app.App
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Open loads the project's .hookwise directory. The team defaults to the
// HOOKWISE_TEAM environment variable.
func Open(projectDir string, opts ...Option) (*SDK, error) {
	o := app.Options{
		ConfigDir: filepath.Join(projectDir, app.DefaultConfigDir),
		Team:      app.TeamFromEnv(),
		Metrics:   metrics.New(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	a, err := app.Open(o)
	if err != nil {
		return nil, fmt.Errorf("sdk: open: %w", err)
	}
	return &SDK{app: a, metrics: o.Metrics, logger: o.Logger}, nil
}

// MetricsHandler serves the SDK's Prometheus metrics.
func (s *SDK) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

// Close releases the decision store.
func (s *SDK) Close() error {
	return s.app.Close()
}

// Register assigns a role to a session.
func (s *SDK) Register(session, role, task string) error {
	if _, ok := s.app.Config.Role(role); !ok {
		return fmt.Errorf("sdk: unknown role %q", role)
	}
	_, err := s.app.Registry.Register(session, role, task)
	return err
}

// Result is the outcome of a check.
type Result struct {
	// Allowed is true only for an allow decision.
	Allowed bool

	// Decision is allow, ask, or deny.
	Decision string

	Tier   string
	Rule   string
	Reason string

	// Message is the full reason line naming tier and rule.
	Message string

	EvalTime time.Duration
}

// Check runs the cascade for one call without executing anything.
func (s *SDK) Check(ctx context.Context, session, tool string, params map[string]any) (Result, error) {
	if params == nil {
		params = map[string]any{}
	}
	cwd, _ := ctx.Value(CwdKey).(string)
	if cwd == "" {
		cwd = s.app.Project
	}
	start := time.Now()
	res, err := s.app.Engine.Evaluate(ctx, engine.Request{Session: session, Tool: tool, Input: params, Cwd: cwd})
	out := Result{
		Allowed:  res.Decision == decision.Allow,
		Decision: res.Decision.String(),
		Tier:     res.Tier.String(),
		Rule:     res.Rule,
		Reason:   res.Reason,
		Message:  res.Message(),
		EvalTime: time.Since(start),
	}
	if err != nil {
		return out, fmt.Errorf("sdk: %w", err)
	}
	return out, nil
}

// Wrap returns a checked wrapper for fn. The session comes from the call's
// context (see WithSession).
func (s *SDK) Wrap(tool string, fn ToolFunc) ToolFunc {
	return func(ctx context.Context, params map[string]any) (any, error) {
		session, _ := ctx.Value(SessionKey).(string)
		res, err := s.Check(ctx, session, tool, params)

		s.logger.Info("sdk: tool evaluated",
			"tool", tool,
			"session", session,
			"decision", res.Decision,
			"tier", res.Tier,
			"eval_duration", res.EvalTime,
		)

		if err != nil || !res.Allowed {
			return nil, &ErrDenied{
				Tool:     tool,
				Decision: res.Decision,
				Tier:     res.Tier,
				Rule:     res.Rule,
				Message:  res.Reason,
			}
		}
		return fn(ctx, params)
	}
}
