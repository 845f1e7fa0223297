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

// Package supervisor asks a model for a verdict on a tool call the cheaper
// tiers could not decide.
//
// A Backend is one of: a Unix-socket client talking to a supervisor process
// (see Serve), the Anthropic Messages API, or an OpenAI-compatible chat
// completions API. Every failure maps onto ErrUnavailable, *TransportError,
// or *TimeoutError so the cascade can degrade to a human.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Epiphytic/hookwise/internal/decision"
)

// Request is what the supervisor sees. Input is always sanitized.
type Request struct {
	Session         string   `json:"session_id"`
	Role            string   `json:"role"`
	RoleDescription string   `json:"role_description"`
	Tool            string   `json:"tool_name"`
	Input           string   `json:"sanitized_input"`
	Paths           []string `json:"paths,omitempty"`
	Cwd             string   `json:"cwd"`
	Task            string   `json:"task_description,omitempty"`
}

// Verdict is the supervisor's answer.
type Verdict struct {
	Decision   decision.Decision `json:"decision"`
	Confidence float64           `json:"confidence"`
	Reason     string            `json:"reason"`
}

// Backend evaluates one request.
type Backend interface {
	Evaluate(ctx context.Context, req Request) (Verdict, error)
}

// ErrUnavailable means no supervisor is reachable or configured. It is
// distinct from a timeout.
var ErrUnavailable = errors.New("supervisor: unavailable")

// TransportError is a failed exchange: a broken connection, a non-success
// API response, or a reply that is not a valid verdict.
type TransportError struct {
	Backend string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("supervisor: %s transport: %v", e.Backend, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError means the deadline expired before a verdict arrived.
type TimeoutError struct {
	Backend string
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("supervisor: %s timed out after %s", e.Backend, e.After)
	}
	return fmt.Sprintf("supervisor: %s timed out", e.Backend)
}

// Is lets errors.Is(err, context.DeadlineExceeded) match.
func (e *TimeoutError) Is(target error) bool { return target == context.DeadlineExceeded }

// classify wraps err from backend into the error taxonomy.
func classify(ctx context.Context, backend string, started time.Time, err error) error {
	if err == nil {
		return nil
	}
	var (
		te *TransportError
		to *TimeoutError
	)
	switch {
	case errors.Is(err, ErrUnavailable), errors.As(err, &te), errors.As(err, &to):
		return err
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &TimeoutError{Backend: backend, After: time.Since(started).Round(time.Millisecond)}
	case errors.Is(err, context.Canceled):
		return err
	default:
		return &TransportError{Backend: backend, Err: err}
	}
}

func validVerdict(v Verdict) error {
	if !v.Decision.Decisive() {
		return fmt.Errorf("verdict has no decision")
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", v.Confidence)
	}
	return nil
}

// Unavailable is a Backend that always fails with ErrUnavailable. It stands
// in when the supervisor is disabled or cannot be configured.
type Unavailable struct {
	Reason string
}

// Evaluate implements Backend.
func (u Unavailable) Evaluate(context.Context, Request) (Verdict, error) {
	if u.Reason == "" {
		return Verdict{}, ErrUnavailable
	}
	return Verdict{}, fmt.Errorf("%w: %s", ErrUnavailable, u.Reason)
}

// Retrying retries transport errors up to n extra times while ctx allows.
// Timeouts and unavailability are returned immediately.
type Retrying struct {
	Backend Backend
	Retries int
	Backoff time.Duration
	Logger  *slog.Logger
}

// Evaluate implements Backend.
func (r *Retrying) Evaluate(ctx context.Context, req Request) (Verdict, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var err error
	for attempt := 0; attempt <= r.Retries; attempt++ {
		var v Verdict
		v, err = r.Backend.Evaluate(ctx, req)
		var te *TransportError
		if err == nil || !errors.As(err, &te) {
			return v, err
		}
		if attempt == r.Retries {
			break
		}
		logger.Debug("supervisor: retrying after transport error", "attempt", attempt+1, "error", err)
		if r.Backoff > 0 {
			select {
			case <-ctx.Done():
				return Verdict{}, classify(ctx, "retry", time.Now(), ctx.Err())
			case <-time.After(r.Backoff):
			}
		}
		if ctx.Err() != nil {
			return Verdict{}, classify(ctx, "retry", time.Now(), ctx.Err())
		}
	}
	return Verdict{}, err
}
