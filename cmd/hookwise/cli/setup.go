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

package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Epiphytic/hookwise/internal/build"
	"github.com/Epiphytic/hookwise/internal/fsutil"
	"github.com/Epiphytic/hookwise/internal/metrics"
	"github.com/Epiphytic/hookwise/internal/policy"
	"github.com/Epiphytic/hookwise/internal/scope"
	"github.com/Epiphytic/hookwise/internal/supervisor"
	"github.com/Epiphytic/hookwise/policies"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default policy and roles into the config directory",
		Long: `Create the config directory (.hookwise by default) with the built-in
policy.yml and roles.yml. Existing files are left alone unless --force is
set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := os.MkdirAll(opts.configDir, 0o755); err != nil {
				return fmt.Errorf("init: create %s: %w", opts.configDir, err)
			}
			for _, name := range policies.DocumentNames {
				path := filepath.Join(opts.configDir, name)
				if _, err := os.Stat(path); err == nil && !force {
					fmt.Fprintf(cmd.OutOrStdout(), "Kept existing %s\n", path)
					continue
				} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("init: %w", err)
				}
				data, err := policies.Document(name)
				if err != nil {
					return err
				}
				if err := fsutil.WriteAtomic(path, data, 0o644); err != nil {
					return fmt.Errorf("init: write %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	return cmd
}

type roleView struct {
	Description string   `yaml:"description,omitempty"`
	AllowWrite  []string `yaml:"allow_write,omitempty"`
	DenyWrite   []string `yaml:"deny_write,omitempty"`
	AllowRead   []string `yaml:"allow_read,omitempty"`
}

type resolvedConfig struct {
	Policy     policy.Document     `yaml:"policy"`
	Roles      map[string]roleView `yaml:"roles"`
	Categories map[string][]string `yaml:"categories"`
	Overrides  map[string]string   `yaml:"overrides"`
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Long: `Print the policy after defaults are applied, every role with its
categories expanded, and where override rules are read from.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			out := resolvedConfig{
				Policy:     cfg.Document(),
				Roles:      make(map[string]roleView),
				Categories: cfg.Categories(),
				Overrides:  make(map[string]string),
			}
			for _, name := range cfg.RoleNames() {
				r, _ := cfg.Role(name)
				out.Roles[name] = roleView{
					Description: r.Description,
					AllowWrite:  r.AllowWrite(),
					DenyWrite:   r.DenyWrite(),
					AllowRead:   r.AllowRead(),
				}
			}
			loc := scope.DefaultLocations(opts.configDir)
			for _, lvl := range []scope.Level{scope.LevelOrg, scope.LevelProject, scope.LevelUser} {
				if p, err := loc.Path(lvl); err == nil {
					out.Overrides[lvl.String()] = p
				}
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("config: encode: %w", err)
			}
			return enc.Close()
		},
	}
}

func newSuperviseCmd(opts *rootOptions) *cobra.Command {
	var socketPath, backendName, model, metricsAddr string

	cmd := &cobra.Command{
		Use:   "supervise",
		Short: "Serve supervisor verdicts on a local socket",
		Long: `Listen on a Unix socket and answer supervisor requests from every hook
process of this team with an API backend. Point sessions at it with
supervisor.backend: socket in policy.yml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := opts.logger(cmd)
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}

			sc := cfg.Document().Supervisor
			sc.Backend = strings.ToLower(backendName)
			if model != "" {
				sc.Model = model
			}
			if sc.Backend != policy.BackendAnthropic && sc.Backend != policy.BackendOpenAI {
				return fmt.Errorf("supervise: --backend must be %s or %s", policy.BackendAnthropic, policy.BackendOpenAI)
			}
			backend, err := supervisor.New(sc, opts.team, logger)
			if err != nil {
				return err
			}
			if u, ok := backend.(supervisor.Unavailable); ok {
				return fmt.Errorf("supervise: %s", u.Reason)
			}

			if socketPath == "" {
				socketPath = supervisor.SocketPath(opts.team)
			}
			if err := removeStaleSocket(socketPath); err != nil {
				return err
			}
			ln, err := net.Listen("unix", socketPath)
			if err != nil {
				return fmt.Errorf("supervise: listen: %w", err)
			}
			defer os.Remove(socketPath)
			if err := os.Chmod(socketPath, 0o600); err != nil {
				ln.Close()
				return fmt.Errorf("supervise: %w", err)
			}

			m := metrics.New()
			backend = m.Instrument(backend)
			if metricsAddr != "" {
				stop, err := serveMetrics(cmd.Context(), metricsAddr, m, logger)
				if err != nil {
					ln.Close()
					return err
				}
				defer stop()
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Supervising on %s with %s\n", socketPath, sc.Backend)
			return supervisor.Serve(cmd.Context(), ln, backend, logger)
		},
	}

	cmd.Flags().StringVar(&socketPath, "socket", "", "Socket path (default per team under $XDG_RUNTIME_DIR)")
	cmd.Flags().StringVar(&backendName, "backend", policy.BackendAnthropic, "API backend: anthropic or openai")
	cmd.Flags().StringVar(&model, "model", "", "Model name (default from policy.yml)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")
	return cmd
}

// serveMetrics exposes /metrics until the returned stop func is called.
func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("supervise: metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("supervise: metrics server", "error", err)
		}
	}()
	logger.Info("supervise: serving metrics", "addr", ln.Addr().String())
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}

// removeStaleSocket deletes a leftover socket file. Anything else at path is
// an error.
func removeStaleSocket(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("supervise: %w", err)
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("supervise: %s exists and is not a socket", path)
	}
	return os.Remove(path)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build and runtime version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), build.String()); err != nil {
				return fmt.Errorf("cli: write version output: %w", err)
			}
			return nil
		},
	}
}
