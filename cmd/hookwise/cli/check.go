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
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Epiphytic/hookwise/internal/decision"
	"github.com/Epiphytic/hookwise/internal/engine"
	"github.com/Epiphytic/hookwise/internal/hookio"
	"github.com/Epiphytic/hookwise/internal/session"
	"github.com/spf13/cobra"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate a PreToolUse hook payload from stdin",
		Long: `Read one PreToolUse payload from stdin, run it through the permission
cascade and print the host's decision JSON.

Any failure (malformed input, a broken config, an internal error) is
rendered as a deny. A call that still needs a human exits like a deny and
prints "hookwise: approval required" on stderr.

Claude Code settings.json:
  "PreToolUse": [{"matcher": "*", "hooks": [{"type": "command",
    "command": "hookwise check --format claude"}]}]`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := hookio.ParseFormat(format)
			if err != nil {
				return err
			}
			return runCheck(cmd, opts, f)
		},
	}

	cmd.Flags().StringVar(&format, "format", string(hookio.FormatClaude), "Hook output format (claude or gemini)")
	return cmd
}

func runCheck(cmd *cobra.Command, opts *rootOptions, f hookio.Format) error {
	logger := opts.logger(cmd)

	in, err := hookio.ReadInput(cmd.InOrStdin())
	if err != nil {
		logger.Warn("check: bad input", "error", err)
		return writeVerdict(cmd, f, "", decision.Deny, "hookwise[request/malformed]: "+err.Error())
	}

	a, err := opts.openApp(cmd)
	if err != nil {
		logger.Error("check: load configuration", "error", err)
		return writeVerdict(cmd, f, in.ToolName, decision.Deny, "hookwise[config/-]: "+err.Error())
	}
	defer a.Close()

	res, err := a.Engine.Evaluate(cmd.Context(), engine.Request{
		Session: in.SessionID,
		Tool:    in.ToolName,
		Input:   in.ToolInput,
		Cwd:     in.Cwd,
	})
	if err != nil {
		logger.Warn("check: evaluate", "session", in.SessionID, "tool", in.ToolName, "error", err)
	}
	logger.Debug("check: decided",
		"session", in.SessionID,
		"tool", in.ToolName,
		"decision", res.Decision,
		"tier", res.Tier,
		"rule", res.Rule,
	)
	return writeVerdict(cmd, f, in.ToolName, res.Decision, res.Message())
}

// writeVerdict prints the host JSON and, for anything but allow, a short
// message on stderr. The exit status is carried in an exitCodeError.
func writeVerdict(cmd *cobra.Command, f hookio.Format, tool string, d decision.Decision, reason string) error {
	code, err := f.WriteDecision(cmd.OutOrStdout(), d, reason)
	switch d {
	case decision.Allow:
	case decision.Ask:
		fmt.Fprint(cmd.ErrOrStderr(), formatApprovalRequiredMessage(cmd.ErrOrStderr(), tool, reason))
	default:
		fmt.Fprint(cmd.ErrOrStderr(), formatDenyMessage(cmd.ErrOrStderr(), tool, reason))
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "hookwise: %v\n", err)
	}
	if code != 0 {
		return exitCodeError{code: code}
	}
	return nil
}

func formatDenyMessage(w io.Writer, tool, reason string) string {
	color := supportsColor(w)
	return fmt.Sprintf("%s %s\n   %s\n",
		paint(color, denyStyle, "hookwise: blocked"), displayTool(tool),
		paint(color, dimStyle, reason))
}

func formatApprovalRequiredMessage(w io.Writer, tool, reason string) string {
	color := supportsColor(w)
	return fmt.Sprintf("%s %s\n   %s\n",
		paint(color, askStyle, "hookwise: approval required"), displayTool(tool),
		paint(color, dimStyle, reason))
}

func displayTool(tool string) string {
	if tool == "" {
		return "(unknown tool)"
	}
	return tool
}

func newSessionCheckCmd(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "session-check",
		Short: "SessionStart hook: report whether the session has a role",
		Long: `Read a SessionStart payload from stdin and tell the agent whether its
session is registered. Unregistered sessions have every tool call denied
until they register. This hook never blocks.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := hookio.ParseFormat(format)
			if err != nil {
				return err
			}
			in, err := hookio.ReadInput(cmd.InOrStdin())
			if err != nil {
				opts.logger(cmd).Warn("session-check: bad input", "error", err)
				return nil
			}
			text := sessionContext(cmd, opts, in.SessionID)
			return f.WriteContext(cmd.OutOrStdout(), in.HookEventName, text)
		},
	}

	cmd.Flags().StringVar(&format, "format", string(hookio.FormatClaude), "Hook output format (claude or gemini)")
	return cmd
}

func sessionContext(cmd *cobra.Command, opts *rootOptions, id string) string {
	s, err := opts.registry(cmd).Get(id)
	switch {
	case err == nil && s.Disabled:
		return "hookwise is disabled for this session."
	case err == nil && s.Registered():
		text := fmt.Sprintf("hookwise: this session is registered as role %q.", s.Role)
		if s.Task != "" {
			text += " Task: " + s.Task
		}
		return text
	case err != nil && !errors.Is(err, session.ErrUnknownSession):
		opts.logger(cmd).Warn("session-check: read registry", "error", err)
	}

	text := fmt.Sprintf("hookwise: session %s is not registered, so tool calls will be denied. "+
		"Register with: hookwise register --session %s --role <role>", id, id)
	if cfg, err := opts.loadConfig(cmd); err == nil {
		text += " (roles: " + strings.Join(cfg.RoleNames(), ", ") + ")"
	}
	return text
}
