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
	"os"
	"sort"
	"strings"

	"github.com/Epiphytic/hookwise/internal/decision"
	"github.com/Epiphytic/hookwise/internal/scope"
	"github.com/Epiphytic/hookwise/internal/store"
	"github.com/Epiphytic/hookwise/internal/watch"
	"github.com/spf13/cobra"
)

func newBuildCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Rebuild the similarity vector index from the decision log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Store.RebuildVectors(a.Embedder)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d decisions with %s\n", n, a.Embedder.Name())
			return nil
		},
	}
}

func newInvalidateCmd(opts *rootOptions) *cobra.Command {
	var f store.Filter

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Forget cached decisions",
		Long: `Remove cached decisions from the log so matching calls are evaluated
again. Override rules are not touched.`,
		Example: `  hookwise invalidate --role coder
  hookwise invalidate --role tester --tool Bash
  hookwise invalidate --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f == (store.Filter{}) {
				return errors.New("invalidate: pass --all or at least one of --role, --tool, --session")
			}
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Store.Invalidate(f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d decision(s)\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVar(&f.All, "all", false, "Remove every cached decision")
	cmd.Flags().StringVar(&f.Role, "role", "", "Only decisions for this role")
	cmd.Flags().StringVar(&f.Tool, "tool", "", "Only decisions for this tool")
	cmd.Flags().StringVar(&f.Session, "session", "", "Only decisions made in this session")
	return cmd
}

func newOverrideCmd(opts *rootOptions) *cobra.Command {
	var (
		level            string
		rule             scope.Rule
		allow, deny, ask bool
		exact            bool
	)

	cmd := &cobra.Command{
		Use:   "override",
		Short: "Declare an explicit allow, ask or deny rule at a scope",
		Long: `Append an override rule to the org, project or user overrides file.

Org rules bound every project: an org deny cannot be lifted below it. A
project or user allow never unlocks a role's deny_write. Commands without a
'*' are widened to a prefix glob ("npm install express" becomes
"npm install *") unless --exact is set. Destructive commands are never
widened.`,
		Example: `  hookwise override --scope org --command "curl * | sh" --deny
  hookwise override --role coder --command "cargo build" --allow
  hookwise override --scope user --tool Write --path "scratch/**" --allow`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lvl, err := scope.ParseLevel(level)
			if err != nil {
				return err
			}
			if lvl == scope.LevelRole {
				return errors.New("override: role-level rules live in roles.yml")
			}

			var picked []decision.Decision
			for d, on := range map[decision.Decision]bool{decision.Allow: allow, decision.Deny: deny, decision.Ask: ask} {
				if on {
					picked = append(picked, d)
				}
			}
			if len(picked) != 1 {
				return errors.New("override: pass exactly one of --allow, --deny, --ask")
			}
			rule.Decision = picked[0]

			if rule.Path != "" && rule.Command != "" {
				return errors.New("override: --path and --command are exclusive")
			}
			if rule.Command != "" && !exact && !strings.Contains(rule.Command, "*") {
				rule.Command = scope.GeneralizeCommand(rule.Command)
			}
			if rule.CreatedBy == "" {
				rule.CreatedBy = os.Getenv("USER")
			}

			if opts.configDir != "" {
				if err := os.MkdirAll(opts.configDir, 0o755); err != nil {
					return fmt.Errorf("override: %w", err)
				}
			}
			loc := scope.DefaultLocations(opts.configDir)
			path, err := loc.Path(lvl)
			if err != nil {
				return err
			}
			if err := scope.AppendRule(path, rule); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s rule %s to %s\n", lvl, rule.Describe(), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&level, "scope", scope.LevelProject.String(), "Scope: org, project, or user")
	cmd.Flags().StringVar(&rule.Role, "role", "", "Role glob (default all roles)")
	cmd.Flags().StringVar(&rule.Tool, "tool", "", "Tool glob (default all tools)")
	cmd.Flags().StringVar(&rule.Path, "path", "", "Path glob (doublestar)")
	cmd.Flags().StringVar(&rule.Command, "command", "", "Command glob")
	cmd.Flags().StringVar(&rule.Note, "note", "", "Note shown in the decision reason")
	cmd.Flags().BoolVar(&allow, "allow", false, "Allow matching calls")
	cmd.Flags().BoolVar(&deny, "deny", false, "Deny matching calls")
	cmd.Flags().BoolVar(&ask, "ask", false, "Always ask a human for matching calls")
	cmd.Flags().BoolVar(&exact, "exact", false, "Keep --command exactly as written")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize cached decisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			st := a.Store.Stats()
			out := cmd.OutOrStdout()
			color := supportsColor(out)

			fmt.Fprintln(out, paint(color, headStyle, "Decisions"))
			fmt.Fprintf(out, "  %-10s %d\n", "keys", st.Keys)
			for _, d := range []decision.Decision{decision.Allow, decision.Ask, decision.Deny} {
				fmt.Fprintf(out, "  %s %d\n", paint(color, decisionStyle(d), fmt.Sprintf("%-10s", d)), st.ByDecision[d])
			}

			fmt.Fprintln(out, paint(color, headStyle, "By tier"))
			tiers := make([]decision.Tier, 0, len(st.ByTier))
			for t := range st.ByTier {
				tiers = append(tiers, t)
			}
			sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })
			for _, t := range tiers {
				fmt.Fprintf(out, "  %-20s %d\n", t, st.ByTier[t])
			}

			fmt.Fprintln(out, paint(color, headStyle, "Indexes"))
			fmt.Fprintf(out, "  %-20s %d\n", "token entries", st.TokenEntries)
			vectors := fmt.Sprintf("%d", st.Vectors)
			if !st.VectorsBuilt.IsZero() {
				vectors += fmt.Sprintf(" (%s, built %s)", st.VectorsSource, st.VectorsBuilt.Local().Format("2006-01-02 15:04"))
			}
			fmt.Fprintf(out, "  %-20s %s\n", "vectors", vectors)
			if a.LoadReport.Skipped > 0 {
				fmt.Fprintf(out, "  %-20s %d\n", "corrupt records", a.LoadReport.Skipped)
			}
			return nil
		},
	}
}

func newMonitorCmd(opts *rootOptions) *cobra.Command {
	var cfg watch.Config
	var noColorFlag bool

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Follow decisions as they are made",
		Long: `Print each decision appended to the log, one line per decision, until
interrupted. Only the JSONL storage backend can be followed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			cfg.LogFile = a.LogPath()
			_ = a.Close()
			if cfg.LogFile == "" {
				return errors.New("monitor: storage backend is not jsonl")
			}
			cfg.Color = !noColorFlag && supportsColor(cmd.OutOrStdout())

			stats, err := watch.Stream(cmd.Context(), cfg, cmd.OutOrStdout())
			fmt.Fprintln(cmd.ErrOrStderr(), stats.Summary())
			return err
		},
	}

	cmd.Flags().BoolVar(&cfg.FromStart, "from-start", false, "Replay the existing log first")
	cmd.Flags().StringVar(&cfg.Role, "role", "", "Filter by role")
	cmd.Flags().StringVar(&cfg.Decision, "decision", "", "Filter by decision (allow, ask, deny)")
	cmd.Flags().StringVar(&cfg.Tool, "tool", "", "Filter by tool name")
	cmd.Flags().BoolVar(&noColorFlag, "no-color", false, "Disable colors")
	return cmd
}
