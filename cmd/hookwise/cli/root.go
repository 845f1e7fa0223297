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

// Package cli contains hookwise command-line subcommands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Epiphytic/hookwise/internal/app"
	"github.com/Epiphytic/hookwise/internal/approval"
	"github.com/Epiphytic/hookwise/internal/policy"
	"github.com/Epiphytic/hookwise/internal/session"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configDir string
	team      string
	stateDir  string
	verbose   bool
}

// exitCodeError carries a process exit status without an error message.
// The hook commands use it after they have already written their output.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func (e exitCodeError) ExitCode() int { return e.code }

// Execute runs the hookwise CLI command tree. SIGINT and SIGTERM cancel the
// command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCmd(ctx, os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		var ec interface{ ExitCode() int }
		if !errors.As(err, &ec) {
			fmt.Fprintf(os.Stderr, "hookwise: %v\n", err)
		}
		return err
	}
	return nil
}

// ExitCode returns the process exit code implied by err.
// Non-nil errors default to exit code 1 unless they expose ExitCode().
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var ec interface{ ExitCode() int }
	if errors.As(err, &ec) {
		if code := ec.ExitCode(); code > 0 {
			return code
		}
	}
	return 1
}

// NewRootCmd builds the hookwise root command.
func NewRootCmd(ctx context.Context, outWriter, errWriter io.Writer) *cobra.Command {
	opts := &rootOptions{}
	if ctx == nil {
		ctx = context.Background()
	}

	cmd := &cobra.Command{
		Use:           "hookwise",
		Short:         "Role-aware permission gate for AI coding agents",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.SetContext(ctx)
	cmd.SetOut(outWriter)
	cmd.SetErr(errWriter)

	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", app.DefaultConfigDir, "Project configuration directory")
	cmd.PersistentFlags().StringVar(&opts.team, "team", app.TeamFromEnv(), "Team id for shared sessions, queue and supervisor (or set HOOKWISE_TEAM)")
	cmd.PersistentFlags().StringVar(&opts.stateDir, "state-dir", "", "Session registry directory (default $XDG_STATE_HOME/hookwise)")
	cmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")

	const (
		groupHooks     = "hooks"
		groupSessions  = "sessions"
		groupApprovals = "approvals"
		groupDecisions = "decisions"
		groupSetup     = "setup"
	)
	cmd.AddGroup(
		&cobra.Group{ID: groupHooks, Title: "Hooks"},
		&cobra.Group{ID: groupSessions, Title: "Sessions"},
		&cobra.Group{ID: groupApprovals, Title: "Approvals"},
		&cobra.Group{ID: groupDecisions, Title: "Decisions"},
		&cobra.Group{ID: groupSetup, Title: "Setup"},
	)

	add := func(group string, cmds ...*cobra.Command) {
		for _, c := range cmds {
			c.GroupID = group
			cmd.AddCommand(c)
		}
	}
	add(groupHooks, newCheckCmd(opts), newSessionCheckCmd(opts))
	add(groupSessions, newRegisterCmd(opts), newDisableCmd(opts), newEnableCmd(opts), newSessionsCmd(opts))
	add(groupApprovals, newQueueCmd(opts), newApproveCmd(opts), newDenyCmd(opts))
	add(groupDecisions, newBuildCmd(opts), newInvalidateCmd(opts), newOverrideCmd(opts),
		newStatsCmd(opts), newMonitorCmd(opts), newScanCmd(opts))
	add(groupSetup, newInitCmd(opts), newConfigCmd(opts), newSuperviseCmd(opts), newVersionCmd())

	return cmd
}

func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func (o *rootOptions) openApp(cmd *cobra.Command) (*app.App, error) {
	return app.Open(app.Options{
		ConfigDir: o.configDir,
		StateDir:  o.stateDir,
		Team:      o.team,
		Logger:    o.logger(cmd),
	})
}

func (o *rootOptions) loadConfig(cmd *cobra.Command) (*policy.Config, error) {
	home, _ := os.UserHomeDir()
	return policy.LoadDir(o.configDir, policy.WithHome(home), policy.WithLogger(o.logger(cmd)))
}

func (o *rootOptions) registry(cmd *cobra.Command) *session.Registry {
	dir := o.stateDir
	if dir == "" {
		dir = session.DefaultDir()
	}
	return session.NewRegistry(dir, o.team, o.logger(cmd))
}

func (o *rootOptions) queue(cmd *cobra.Command) *approval.Queue {
	return approval.NewQueue(approval.DefaultPath(o.team), approval.WithLogger(o.logger(cmd)))
}
