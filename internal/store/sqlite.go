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
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Epiphytic/hookwise/internal/decision"
	_ "modernc.org/sqlite"
)

const createDecisionsSQL = `
CREATE TABLE IF NOT EXISTS decisions (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    id         TEXT NOT NULL UNIQUE,
    digest     TEXT NOT NULL,
    role       TEXT NOT NULL,
    tool       TEXT NOT NULL,
    subject    TEXT NOT NULL,
    scope      TEXT NOT NULL,
    decision   TEXT NOT NULL,
    tier       TEXT NOT NULL,
    rule       TEXT NOT NULL DEFAULT '',
    reason     TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL DEFAULT 0,
    session    TEXT NOT NULL DEFAULT '',
    text       TEXT NOT NULL DEFAULT '',
    timestamp  TEXT NOT NULL,
    embedding  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_decisions_digest ON decisions(digest);
`

// SQLiteBackend stores records in one append-only SQLite table.
type SQLiteBackend struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteBackend opens (or creates) the database at path in WAL mode.
func NewSQLiteBackend(path string, logger *slog.Logger) (*SQLiteBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(createDecisionsSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create tables: %w", err)
	}
	return &SQLiteBackend{db: db, path: path, logger: logger}, nil
}

const insertDecisionSQL = `
INSERT INTO decisions
    (id, digest, role, tool, subject, scope, decision, tier, rule, reason, confidence, session, text, timestamp, embedding)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertRecord(db execer, r Record) error {
	var emb []byte
	if len(r.Embedding) > 0 {
		var err error
		if emb, err = json.Marshal(r.Embedding); err != nil {
			return fmt.Errorf("store: marshal embedding: %w", err)
		}
	}
	_, err := db.Exec(insertDecisionSQL,
		r.ID, r.Digest,
		r.Key.Role, r.Key.Tool, r.Key.Subject, r.Key.Scope,
		r.Decision.String(), r.Tier.String(),
		r.Rule, r.Reason, r.Confidence, r.Session, r.Text,
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		string(emb),
	)
	if err != nil {
		return fmt.Errorf("store: insert record: %w", err)
	}
	return nil
}

// Persist inserts a record.
func (b *SQLiteBackend) Persist(r Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return insertRecord(b.db, r)
}

// Load reads every record in insertion order. Rows that fail to decode are
// skipped and reported.
func (b *SQLiteBackend) Load() ([]Record, LoadReport, error) {
	var report LoadReport
	rows, err := b.db.Query(`
		SELECT seq, id, digest, role, tool, subject, scope, decision, tier, rule, reason,
		       confidence, session, text, timestamp, embedding
		FROM decisions ORDER BY seq`)
	if err != nil {
		return nil, report, fmt.Errorf("store: query records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r                 Record
			seq               int
			dec, tier, ts, em string
		)
		if err := rows.Scan(&seq, &r.ID, &r.Digest,
			&r.Key.Role, &r.Key.Tool, &r.Key.Subject, &r.Key.Scope,
			&dec, &tier, &r.Rule, &r.Reason, &r.Confidence, &r.Session, &r.Text, &ts, &em); err != nil {
			report.skip(&StorageError{Source: b.path, Err: err})
			continue
		}
		if err := decodeRow(&r, dec, tier, ts, em); err != nil {
			serr := &StorageError{Source: b.path, Line: seq, Err: err}
			b.logger.Warn("store: skipping corrupt row", "error", serr)
			report.skip(serr)
			continue
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return records, report, fmt.Errorf("store: iterate records: %w", err)
	}
	report.Loaded = len(records)
	return records, report, nil
}

func decodeRow(r *Record, dec, tier, ts, emb string) error {
	var err error
	if r.Decision, err = decision.Parse(dec); err != nil {
		return err
	}
	if r.Tier, err = decision.ParseTier(tier); err != nil {
		return err
	}
	if r.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return err
	}
	if emb != "" {
		if err := json.Unmarshal([]byte(emb), &r.Embedding); err != nil {
			return err
		}
	}
	return r.validate()
}

// Rewrite replaces the table contents in one transaction.
func (b *SQLiteBackend) Rewrite(records []Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin rewrite: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM decisions`); err != nil {
		tx.Rollback()
		return fmt.Errorf("store: clear records: %w", err)
	}
	for _, r := range records {
		if err := insertRecord(tx, r); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit rewrite: %w", err)
	}
	return nil
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
