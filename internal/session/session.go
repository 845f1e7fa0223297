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

// Package session tracks which role each agent session runs as.
//
// The registry is a JSON file in the state directory, shared by every hook
// process of a team. Mutations hold an exclusive flock and replace the file
// atomically. Sessions are never deleted, only superseded.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Epiphytic/hookwise/internal/fsutil"
)

// ErrUnknownSession is returned for a session that never registered.
var ErrUnknownSession = errors.New("session: unknown session")

const registrationPoll = 100 * time.Millisecond

// Session is one agent session.
type Session struct {
	ID           string    `json:"id"`
	Role         string    `json:"role,omitempty"`
	Task         string    `json:"task,omitempty"`
	Disabled     bool      `json:"disabled,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `json:"last_seen,omitempty"`
}

// Registered reports whether the session has a role.
func (s Session) Registered() bool { return s.Role != "" }

type registryFile struct {
	Sessions map[string]*Session `json:"sessions"`
}

// DefaultDir returns $XDG_STATE_HOME/hookwise, or ~/.local/state/hookwise.
func DefaultDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "hookwise")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "hookwise-state")
	}
	return filepath.Join(home, ".local", "state", "hookwise")
}

// FileName returns the registry file name for team.
func FileName(team string) string {
	return "sessions" + fsutil.TeamSuffix(team) + ".json"
}

// Registry is a handle on one registry file.
type Registry struct {
	path   string
	logger *slog.Logger
	now    func() time.Time
	poll   time.Duration
}

// NewRegistry returns the registry for team under dir.
func NewRegistry(dir, team string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		path:   filepath.Join(dir, FileName(team)),
		logger: logger,
		now:    time.Now,
		poll:   registrationPoll,
	}
}

// Path returns the registry file.
func (r *Registry) Path() string { return r.path }

func (r *Registry) read() (*registryFile, error) {
	rf := &registryFile{Sessions: make(map[string]*Session)}
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(data) == 0) {
		return rf, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read registry: %w", err)
	}
	if err := json.Unmarshal(data, rf); err != nil {
		return nil, fmt.Errorf("session: parse registry %s: %w", r.path, err)
	}
	if rf.Sessions == nil {
		rf.Sessions = make(map[string]*Session)
	}
	return rf, nil
}

func (r *Registry) update(fn func(*registryFile) error) error {
	lock, err := fsutil.LockFile(r.path)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	defer lock.Unlock()

	rf, err := r.read()
	if err != nil {
		return err
	}
	if err := fn(rf); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rf, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal registry: %w", err)
	}
	if err := fsutil.WriteAtomic(r.path, data, 0o600); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return nil
}

// Register sets the role of id, creating or superseding the entry. It also
// clears a disabled flag.
func (r *Registry) Register(id, role, task string) (Session, error) {
	if id == "" || role == "" {
		return Session{}, fmt.Errorf("session: register needs a session id and a role")
	}
	var out Session
	now := r.now().UTC()
	err := r.update(func(rf *registryFile) error {
		s := &Session{ID: id, Role: role, Task: task, RegisteredAt: now, LastSeen: now}
		rf.Sessions[id] = s
		out = *s
		return nil
	})
	if err == nil {
		r.logger.Info("session: registered", "session", id, "role", role)
	}
	return out, err
}

// Disable turns the cascade off for id. Disabling an unknown session
// creates a disabled entry.
func (r *Registry) Disable(id string) error {
	return r.setDisabled(id, true)
}

// Enable turns the cascade back on for id.
func (r *Registry) Enable(id string) error {
	return r.setDisabled(id, false)
}

func (r *Registry) setDisabled(id string, disabled bool) error {
	if id == "" {
		return fmt.Errorf("session: empty session id")
	}
	now := r.now().UTC()
	return r.update(func(rf *registryFile) error {
		s, ok := rf.Sessions[id]
		if !ok {
			if !disabled {
				return fmt.Errorf("%w: %s", ErrUnknownSession, id)
			}
			s = &Session{ID: id, RegisteredAt: now}
			rf.Sessions[id] = s
		}
		s.Disabled = disabled
		s.LastSeen = now
		return nil
	})
}

// Get returns the session. A missing session is ErrUnknownSession.
func (r *Registry) Get(id string) (Session, error) {
	rf, err := r.read()
	if err != nil {
		return Session{}, err
	}
	s, ok := rf.Sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return *s, nil
}

// Touch records activity on id.
func (r *Registry) Touch(id string) error {
	now := r.now().UTC()
	return r.update(func(rf *registryFile) error {
		s, ok := rf.Sessions[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSession, id)
		}
		s.LastSeen = now
		return nil
	})
}

// List returns every session, most recently registered first.
func (r *Registry) List() ([]Session, error) {
	rf, err := r.read()
	if err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(rf.Sessions))
	for _, s := range rf.Sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.After(out[j].RegisteredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// WaitForRegistration returns the session once it is registered or
// disabled, polling until timeout. On expiry it returns ErrUnknownSession.
func (r *Registry) WaitForRegistration(ctx context.Context, id string, timeout time.Duration) (Session, error) {
	deadline := time.Now().Add(timeout)
	for {
		s, err := r.Get(id)
		switch {
		case err == nil && (s.Registered() || s.Disabled):
			return s, nil
		case err != nil && !errors.Is(err, ErrUnknownSession):
			r.logger.Warn("session: read registry", "error", err)
		}
		if !time.Now().Before(deadline) {
			return Session{}, fmt.Errorf("%w: %s not registered after %s", ErrUnknownSession, id, timeout)
		}
		wait := r.poll
		if left := time.Until(deadline); left < wait {
			wait = left
		}
		select {
		case <-ctx.Done():
			return Session{}, ctx.Err()
		case <-time.After(wait):
		}
	}
}
