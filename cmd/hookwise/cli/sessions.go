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
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/Epiphytic/hookwise/internal/watch"
	"github.com/spf13/cobra"
)

func newRegisterCmd(opts *rootOptions) *cobra.Command {
	var id, role, task string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Assign a role to an agent session",
		Example: `  hookwise register --session $SESSION_ID --role coder --task "fix the parser"
  hookwise register --session $SESSION_ID --role tester`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if _, err := cfg.MustRole(role); err != nil {
				return err
			}
			s, err := opts.registry(cmd).Register(id, role, task)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered session %s as %s\n", s.ID, s.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "session", "", "Session id")
	cmd.Flags().StringVar(&role, "role", "", "Role name from roles.yml")
	cmd.Flags().StringVar(&task, "task", "", "Task description shown to the supervisor")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func newDisableCmd(opts *rootOptions) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "disable",
		Short: "Let every tool call of a session through",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.registry(cmd).Disable(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "hookwise disabled for session %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "session", "", "Session id")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newEnableCmd(opts *rootOptions) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "enable",
		Short: "Re-enable checks for a disabled session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.registry(cmd).Enable(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "hookwise enabled for session %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "session", "", "Session id")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List known sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := opts.registry(cmd).List()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions.")
				return nil
			}

			now := time.Now()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "SESSION\tROLE\tSTATE\tLAST SEEN\tTASK\n")
			for _, s := range list {
				state := "active"
				switch {
				case s.Disabled:
					state = "disabled"
				case !s.Registered():
					state = "unregistered"
				}
				seen := "-"
				if !s.LastSeen.IsZero() {
					seen = watch.RelativeTime(now, s.LastSeen)
				}
				role := s.Role
				if role == "" {
					role = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, role, state, seen, truncate(s.Task, 50))
			}
			return w.Flush()
		},
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
