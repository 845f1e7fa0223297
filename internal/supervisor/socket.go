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

package supervisor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/Epiphytic/hookwise/internal/fsutil"
)

// maxResponseBytes caps a socket reply.
const maxResponseBytes = 1 << 20

// SocketPath returns the supervisor socket for team, or the solo socket when
// team is empty.
func SocketPath(team string) string {
	name := "solo"
	if team != "" {
		name = team
	}
	return filepath.Join(fsutil.RuntimeDir(), "hookwise-"+name+".sock")
}

// wireResponse is a verdict or a remote error.
type wireResponse struct {
	Verdict
	Error string `json:"error,omitempty"`
}

// Socket is a Backend that sends each request to a supervisor process over a
// Unix socket: one JSON line out, write side closed, one JSON reply in.
type Socket struct {
	Path   string
	Dialer net.Dialer
}

// NewSocket returns a socket client for path.
func NewSocket(path string) *Socket {
	return &Socket{Path: path}
}

// Evaluate implements Backend.
func (s *Socket) Evaluate(ctx context.Context, req Request) (Verdict, error) {
	started := time.Now()
	conn, err := s.Dialer.DialContext(ctx, "unix", s.Path)
	if err != nil {
		if ctx.Err() != nil {
			return Verdict{}, classify(ctx, "socket", started, ctx.Err())
		}
		return Verdict{}, fmt.Errorf("%w: dial %s: %v", ErrUnavailable, s.Path, err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	// Unblock reads and writes on cancellation.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	line, err := json.Marshal(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("supervisor: marshal request: %w", err)
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		return Verdict{}, socketErr(ctx, started, fmt.Errorf("write: %w", err))
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		if err := uc.CloseWrite(); err != nil {
			return Verdict{}, socketErr(ctx, started, fmt.Errorf("close write: %w", err))
		}
	}

	data, err := io.ReadAll(io.LimitReader(conn, maxResponseBytes+1))
	if err != nil {
		return Verdict{}, socketErr(ctx, started, fmt.Errorf("read: %w", err))
	}
	if len(data) > maxResponseBytes {
		return Verdict{}, &TransportError{Backend: "socket", Err: fmt.Errorf("response exceeds %d bytes", maxResponseBytes)}
	}
	var resp wireResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return Verdict{}, &TransportError{Backend: "socket", Err: fmt.Errorf("invalid response: %w", err)}
	}
	if resp.Error != "" {
		return Verdict{}, &TransportError{Backend: "socket", Err: fmt.Errorf("remote: %s", resp.Error)}
	}
	if err := validVerdict(resp.Verdict); err != nil {
		return Verdict{}, &TransportError{Backend: "socket", Err: err}
	}
	return resp.Verdict, nil
}

func socketErr(ctx context.Context, started time.Time, err error) error {
	var ne net.Error
	if ctx.Err() != nil || (errors.As(err, &ne) && ne.Timeout()) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return &TimeoutError{Backend: "socket", After: time.Since(started).Round(time.Millisecond)}
	}
	return &TransportError{Backend: "socket", Err: err}
}

// Serve accepts connections on ln and answers each request with backend
// until ctx is cancelled. It is the other end of Socket, letting one
// supervisor process serve many sessions.
func Serve(ctx context.Context, ln net.Listener, backend Backend, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("supervisor: accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			handleConn(ctx, conn, backend, logger)
		}()
	}
}

func handleConn(ctx context.Context, conn net.Conn, backend Backend, logger *slog.Logger) {
	defer conn.Close()

	reader := bufio.NewReader(io.LimitReader(conn, maxResponseBytes))
	line, err := reader.ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		logger.Warn("supervisor: read request", "error", err)
		return
	}
	var resp wireResponse
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		resp.Error = "invalid request: " + err.Error()
	} else {
		v, err := backend.Evaluate(ctx, req)
		if err != nil {
			logger.Warn("supervisor: backend failed", "session", req.Session, "tool", req.Tool, "error", err)
			resp.Error = err.Error()
		} else {
			resp.Verdict = v
			logger.Info("supervisor: verdict",
				"session", req.Session,
				"role", req.Role,
				"tool", req.Tool,
				"decision", v.Decision,
				"confidence", v.Confidence,
			)
		}
	}
	out, err := json.Marshal(resp)
	if err != nil {
		logger.Warn("supervisor: marshal response", "error", err)
		return
	}
	if _, err := conn.Write(append(out, '\n')); err != nil {
		logger.Warn("supervisor: write response", "error", err)
	}
}
