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
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/Epiphytic/hookwise/internal/sanitize"
	"github.com/spf13/cobra"
)

func newScanCmd(opts *rootOptions) *cobra.Command {
	var staged bool

	cmd := &cobra.Command{
		Use:   "scan [files...]",
		Short: "Scan files for secrets (pre-commit)",
		Long: `Run the secret sanitizer over files and report what it would redact.
Exits 1 when anything is found.

With --staged the staged content of every added, copied, modified or renamed
file is scanned, which makes it usable as a git pre-commit hook:

  #!/bin/sh
  exec hookwise scan --staged`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !staged {
				return errors.New("scan: pass files or --staged")
			}
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			p := sanitize.New(sanitize.WithEntropyThreshold(cfg.Document().Sanitize.EntropyThreshold))

			sources := make([]scanSource, 0, len(args))
			for _, name := range args {
				sources = append(sources, scanSource{name: name, read: func() ([]byte, error) { return os.ReadFile(name) }})
			}
			if staged {
				more, err := stagedSources(cmd.Context())
				if err != nil {
					return err
				}
				sources = append(sources, more...)
			}

			found := 0
			for _, src := range sources {
				data, err := src.read()
				if err != nil {
					return fmt.Errorf("scan: %s: %w", src.name, err)
				}
				if bytes.IndexByte(data, 0) >= 0 {
					continue // binary
				}
				res := p.Sanitize(string(data))
				for _, f := range res.Findings {
					found++
					fmt.Fprintf(cmd.OutOrStdout(), "%s:%d: %s (%s)\n", src.name, lineOf(res.Text, f.Offset), f.Kind, f.Layer)
				}
			}
			if found > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "hookwise: %d possible secret(s) found\n", found)
				return exitCodeError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&staged, "staged", false, "Scan files staged for commit")
	return cmd
}

type scanSource struct {
	name string
	read func() ([]byte, error)
}

func stagedSources(ctx context.Context) ([]scanSource, error) {
	out, err := exec.CommandContext(ctx, "git", "diff", "--cached", "--name-only", "--diff-filter=ACMR", "-z").Output()
	if err != nil {
		return nil, fmt.Errorf("scan: list staged files: %w", err)
	}
	var sources []scanSource
	for _, name := range strings.Split(string(out), "\x00") {
		if name == "" {
			continue
		}
		sources = append(sources, scanSource{
			name: name,
			read: func() ([]byte, error) {
				return exec.CommandContext(ctx, "git", "show", ":"+name).Output()
			},
		})
	}
	return sources, nil
}

// lineOf returns the 1-based line of offset in the redacted text.
func lineOf(text string, offset int) int {
	if offset > len(text) {
		offset = len(text)
	}
	return strings.Count(text[:offset], "\n") + 1
}
