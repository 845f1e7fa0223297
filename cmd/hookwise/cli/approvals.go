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
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Epiphytic/hookwise/internal/approval"
	"github.com/Epiphytic/hookwise/internal/decision"
	"github.com/Epiphytic/hookwise/internal/scope"
	"github.com/spf13/cobra"
)

func newQueueCmd(opts *rootOptions) *cobra.Command {
	var cleanup bool

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List tool calls waiting for a human",
		Long: `Show every tool call blocked on a human decision.

Answer one with 'hookwise approve <id>' or 'hookwise deny <id>'. A unique
id prefix is enough.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := opts.queue(cmd)
			if cleanup {
				n, err := q.Cleanup()
				if err != nil {
					return err
				}
				if n > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "Removed %d expired request(s)\n", n)
				}
			}
			pending, err := q.List()
			if err != nil {
				return err
			}
			return printQueue(cmd, pending, time.Now())
		},
	}

	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Drop expired requests first")
	return cmd
}

func printQueue(cmd *cobra.Command, pending []approval.PendingRequest, now time.Time) error {
	out := cmd.OutOrStdout()
	if len(pending) == 0 {
		fmt.Fprintln(out, "No pending approvals.")
		return nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tSESSION\tROLE\tTOOL\tINPUT\tSUGGESTED\tEXPIRES\n")
	for _, p := range pending {
		suggested := "-"
		if rec := p.Recommendation; rec != nil {
			suggested = fmt.Sprintf("%s (%s %.2f)", rec.Decision, rec.Source, rec.Confidence)
		}
		if p.Reprompt {
			suggested = "ask (always)"
		}
		expires := "never"
		if !p.ExpiresAt.IsZero() {
			expires = p.ExpiresAt.Sub(now).Truncate(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Session, p.Role, p.Tool, truncate(oneLine(p.Input), 48), suggested, expires)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	color := supportsColor(out)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	for i, line := range lines {
		switch {
		case i == 0:
			line = paint(color, headStyle, line)
		case pending[i-1].Reprompt:
			line = paint(color, askStyle, line)
		}
		fmt.Fprintln(out, line)
	}
	for _, p := range pending {
		if p.Reason != "" {
			fmt.Fprintf(out, "%s %s\n", paint(color, dimStyle, p.ID+":"), p.Reason)
		}
	}
	return nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type answerFlags struct {
	alwaysAsk bool
	addRule   bool
	scope     string
	by        string
}

func newApproveCmd(opts *rootOptions) *cobra.Command {
	var f answerFlags

	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending tool call",
		Long: `Approve a tool call waiting in the queue.

The answer is cached for the request's role, tool and target so the same
call is allowed without asking again. --always-ask lets this call through
but keeps asking for it. --add-rule also writes an override rule at
--scope, generalizing shell commands to a prefix glob.

Example:
  hookwise queue
  hookwise approve 01HGW1
  hookwise approve 01HGW1 --add-rule --scope project`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return answer(cmd, opts, args[0], decision.Allow, f)
		},
	}

	addAnswerFlags(cmd, &f)
	return cmd
}

func newDenyCmd(opts *rootOptions) *cobra.Command {
	var f answerFlags

	cmd := &cobra.Command{
		Use:   "deny <id>",
		Short: "Deny a pending tool call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return answer(cmd, opts, args[0], decision.Deny, f)
		},
	}

	addAnswerFlags(cmd, &f)
	return cmd
}

func addAnswerFlags(cmd *cobra.Command, f *answerFlags) {
	cmd.Flags().BoolVar(&f.alwaysAsk, "always-ask", false, "Answer this call only and keep asking for it")
	cmd.Flags().BoolVar(&f.addRule, "add-rule", false, "Also write an override rule")
	cmd.Flags().StringVar(&f.scope, "scope", scope.LevelProject.String(), "Override scope for --add-rule (org, project, user)")
	cmd.Flags().StringVar(&f.by, "by", os.Getenv("USER"), "Name recorded as the responder")
}

func answer(cmd *cobra.Command, opts *rootOptions, prefix string, d decision.Decision, f answerFlags) error {
	if f.addRule {
		level, err := scope.ParseLevel(f.scope)
		if err != nil {
			return err
		}
		if level == scope.LevelRole {
			return fmt.Errorf("--scope must be org, project, or user")
		}
	}

	q := opts.queue(cmd)
	id, err := resolvePendingID(q, prefix)
	if err != nil {
		return err
	}
	err = q.Respond(id, approval.HumanResponse{
		Decision:    d,
		AlwaysAsk:   f.alwaysAsk,
		AddRule:     f.addRule,
		Scope:       strings.ToLower(f.scope),
		RespondedBy: f.by,
	})
	if err != nil {
		return err
	}

	action := "approved"
	if d == decision.Deny {
		action = "denied"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s %s\n", id, action)
	return nil
}

// resolvePendingID expands a unique id prefix.
func resolvePendingID(q *approval.Queue, prefix string) (string, error) {
	if _, err := q.Get(prefix); err == nil {
		return prefix, nil
	}
	pending, err := q.List()
	if err != nil {
		return "", err
	}
	var matches []string
	for _, p := range pending {
		if strings.HasPrefix(p.ID, strings.ToUpper(prefix)) {
			matches = append(matches, p.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", approval.ErrNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous id %q matches %d requests", prefix, len(matches))
	}
}
