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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Epiphytic/hookwise/internal/decision"
	"github.com/Epiphytic/hookwise/internal/fsutil"
)

// DefaultSnapshotPath is the vector snapshot location relative to the
// config directory.
const DefaultSnapshotPath = "index/vectors.cbor.zst"

// Store is the decision store handle. It is safe for concurrent use.
type Store struct {
	backend Backend
	logger  *slog.Logger

	snapshotPath string

	// maint is held exclusively while the log is rewritten and memory is
	// rebuilt, and shared by ordinary writes.
	maint sync.RWMutex

	cache   exactCache
	tokens  tokenIndex
	vectors vectorIndex
}

// Option configures a Store.
type Option func(*Store)

// WithSnapshotPath sets where the vector snapshot is loaded from and saved
// to. Without it the vector index lives in memory only.
func WithSnapshotPath(path string) Option {
	return func(s *Store) { s.snapshotPath = path }
}

// WithStoreLogger sets the logger.
func WithStoreLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open replays backend into memory and loads the vector snapshot. Corrupt
// records are skipped and counted in the report; a missing or corrupt
// snapshot leaves the vector index empty.
func Open(backend Backend, opts ...Option) (*Store, LoadReport, error) {
	s := &Store{backend: backend, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	report, err := s.replay()
	if err != nil {
		return nil, report, err
	}
	if report.Skipped > 0 {
		s.logger.Warn("store: skipped corrupt records", "skipped", report.Skipped, "loaded", report.Loaded)
	}
	s.loadSnapshot()
	return s, report, nil
}

func (s *Store) replay() (LoadReport, error) {
	records, report, err := s.backend.Load()
	if err != nil {
		return report, fmt.Errorf("store: load: %w", err)
	}
	for i := range records {
		s.apply(&records[i])
	}
	return report, nil
}

func (s *Store) apply(r *Record) {
	s.cache.apply(r)
	s.tokens.add(r)
}

func (s *Store) loadSnapshot() {
	if s.snapshotPath == "" {
		return
	}
	body, err := readSnapshot(s.snapshotPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.logger.Debug("store: no vector snapshot", "path", s.snapshotPath)
		return
	case err != nil:
		s.logger.Warn("store: ignoring vector snapshot", "path", s.snapshotPath, "error", err)
		return
	}
	s.vectors.install(body)
	s.logger.Debug("store: loaded vector snapshot", "vectors", len(body.Entries), "embedder", body.Embedder)
}

// Write persists r and applies it to memory. The append and the cache update
// are atomic with respect to lookups of the same key. The stored record,
// with generated fields filled in, is returned.
func (s *Store) Write(r Record) (Record, error) {
	r.fill()
	if err := r.validate(); err != nil {
		return r, err
	}

	s.maint.RLock()
	defer s.maint.RUnlock()

	mu := s.cache.lock(r.Digest)
	mu.Lock()
	if err := s.backend.Persist(r); err != nil {
		mu.Unlock()
		return r, fmt.Errorf("store: persist: %w", err)
	}
	stored := r
	s.cache.applyLocked(&stored)
	mu.Unlock()

	s.tokens.add(&stored)
	return r, nil
}

// Lookup returns the effective record for key.
func (s *Store) Lookup(key decision.Key) (Record, bool) {
	return s.cache.lookup(key.Digest())
}

// Candidate is a similarity hit with the effective record of its key.
type Candidate struct {
	Record
	Score float64
	// Shared is the number of tokens in common (token similarity only).
	Shared int
}

// Similar returns cached keys with the same role, tool and scope whose token
// sets are at least threshold similar to text. A candidate needs at least
// minTokens shared tokens, and nothing is returned for a query shorter than
// minTokens. Results are ordered best first.
func (s *Store) Similar(key decision.Key, text string, minTokens int, threshold float64) []Candidate {
	toks := Tokenize(text)
	if len(toks) < minTokens || len(toks) == 0 {
		return nil
	}
	self := key.Digest()
	var out []Candidate
	for _, m := range s.tokens.query(key.Role, key.Tool, key.Scope, toks) {
		if m.digest == self || m.shared < minTokens || m.score < threshold {
			continue
		}
		r, ok := s.cache.lookup(m.digest)
		if !ok {
			continue
		}
		out = append(out, Candidate{Record: r, Score: m.score, Shared: m.shared})
	}
	sortCandidates(out)
	return out
}

// Nearest returns up to k vector neighbors of text with the same role, tool
// and scope, most similar first. It returns nothing when no snapshot from
// this embedder is loaded.
func (s *Store) Nearest(key decision.Key, text string, embedder Embedder, k int) []Candidate {
	if embedder == nil || k <= 0 || s.vectors.len() == 0 {
		return nil
	}
	vec := embedder.Embed(text)
	self := key.Digest()
	var out []Candidate
	for _, n := range s.vectors.nearest(embedder.Name(), vec, key.Role, key.Tool, key.Scope, k+1) {
		if n.Digest == self {
			continue
		}
		r, ok := s.cache.lookup(n.Digest)
		if !ok {
			continue
		}
		out = append(out, Candidate{Record: r, Score: n.Similarity})
	}
	sortCandidates(out)
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func sortCandidates(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Score != c[j].Score {
			return c[i].Score > c[j].Score
		}
		return c[i].Digest < c[j].Digest
	})
}

// Effective returns the effective record of every key, oldest first.
func (s *Store) Effective() []Record {
	var out []Record
	s.cache.each(func(r Record) { out = append(out, r) })
	sort.Slice(out, func(i, j int) bool { return out[j].after(&out[i]) })
	return out
}

// RebuildVectors embeds the text of every effective record, replaces the
// vector index, and saves the snapshot. It returns the number of vectors.
func (s *Store) RebuildVectors(embedder Embedder) (int, error) {
	if embedder == nil {
		return 0, fmt.Errorf("store: rebuild vectors: no embedder")
	}
	body := &snapshotBody{Embedder: embedder.Name(), BuiltAt: time.Now().UTC()}
	for _, r := range s.Effective() {
		if r.Text == "" {
			continue
		}
		vec := embedder.Embed(r.Text)
		if len(vec) == 0 {
			continue
		}
		body.Entries = append(body.Entries, snapshotEntry{
			Digest: r.Digest,
			Role:   r.Key.Role,
			Tool:   r.Key.Tool,
			Scope:  r.Key.Scope,
			Vector: vec,
		})
	}

	if s.snapshotPath != "" {
		data, err := encodeSnapshot(body)
		if err != nil {
			return 0, err
		}
		if err := os.MkdirAll(filepath.Dir(s.snapshotPath), 0o755); err != nil {
			return 0, fmt.Errorf("store: create index dir: %w", err)
		}
		if err := fsutil.WriteAtomic(s.snapshotPath, data, 0o644); err != nil {
			return 0, fmt.Errorf("store: save snapshot: %w", err)
		}
	}
	s.vectors.install(body)
	s.logger.Info("store: rebuilt vector index", "vectors", len(body.Entries), "embedder", body.Embedder)
	return len(body.Entries), nil
}

// Invalidate removes every record matching f from the log and rebuilds
// memory from what remains. It returns the number of records removed.
func (s *Store) Invalidate(f Filter) (int, error) {
	s.maint.Lock()
	defer s.maint.Unlock()

	records, _, err := s.backend.Load()
	if err != nil {
		return 0, fmt.Errorf("store: invalidate: %w", err)
	}
	kept := records[:0]
	removed := 0
	for _, r := range records {
		if f.Match(&r) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.backend.Rewrite(kept); err != nil {
		return 0, fmt.Errorf("store: invalidate: %w", err)
	}

	s.cache.reset()
	s.tokens.reset()
	for i := range kept {
		s.apply(&kept[i])
	}
	if f.All {
		s.vectors.clear()
		if s.snapshotPath != "" {
			if err := os.Remove(s.snapshotPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.logger.Warn("store: remove vector snapshot", "error", err)
			}
		}
	}
	s.logger.Info("store: invalidated records", "removed", removed, "kept", len(kept))
	return removed, nil
}

// Stats summarizes the effective decisions in memory.
type Stats struct {
	Keys          int
	ByDecision    map[decision.Decision]int
	ByTier        map[decision.Tier]int
	TokenEntries  int
	Vectors       int
	VectorsBuilt  time.Time
	VectorsSource string
}

// Stats counts effective decisions by decision and tier.
func (s *Store) Stats() Stats {
	st := Stats{
		ByDecision:   make(map[decision.Decision]int),
		ByTier:       make(map[decision.Tier]int),
		TokenEntries: s.tokens.len(),
		Vectors:      s.vectors.len(),
	}
	s.cache.each(func(r Record) {
		st.Keys++
		st.ByDecision[r.Decision]++
		st.ByTier[r.Tier]++
	})
	s.vectors.mu.RLock()
	st.VectorsBuilt, st.VectorsSource = s.vectors.builtAt, s.vectors.embedder
	s.vectors.mu.RUnlock()
	return st
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
