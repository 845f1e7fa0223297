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

package store

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Epiphytic/hookwise/internal/policy"
)

// Backend is durable record storage.
type Backend interface {
	Persist(Record) error
	Load() ([]Record, LoadReport, error)
	// Rewrite atomically replaces the stored records.
	Rewrite([]Record) error
	Close() error
}

// Default file names under the config directory.
const (
	DefaultJSONLFile  = "decisions.jsonl"
	DefaultSQLiteFile = "decisions.db"
)

// OpenBackend constructs the backend named by cfg. Relative paths resolve
// against dir.
func OpenBackend(dir string, cfg policy.StorageConfig, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	resolve := func(def string) string {
		p := cfg.Path
		if p == "" {
			p = def
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		return p
	}
	switch strings.ToLower(cfg.Backend) {
	case "", policy.StorageJSONL:
		return NewJSONLBackend(resolve(DefaultJSONLFile), WithFsync(cfg.FsyncEnabled()), WithLogger(logger))
	case policy.StorageSQLite:
		return NewSQLiteBackend(resolve(DefaultSQLiteFile), logger)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
