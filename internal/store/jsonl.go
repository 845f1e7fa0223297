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
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Epiphytic/hookwise/internal/fsutil"
)

// maxLineBytes bounds a single log line. Persist refuses to write longer
// lines and Load skips them.
const maxLineBytes = 4 << 20

var errLineTooLong = fmt.Errorf("line exceeds %d bytes", maxLineBytes)

// JSONLBackend is an append-only JSONL decision log.
//
// Appends take an in-process mutex and a cross-process flock on
// <path>.lock, so concurrent hook processes never interleave lines.
type JSONLBackend struct {
	mu sync.Mutex

	path   string
	fsync  bool
	closed bool
	logger *slog.Logger
}

// JSONLOption configures a JSONLBackend.
type JSONLOption func(*JSONLBackend)

// WithFsync controls whether every append is fsynced.
func WithFsync(enabled bool) JSONLOption {
	return func(b *JSONLBackend) { b.fsync = enabled }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) JSONLOption {
	return func(b *JSONLBackend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewJSONLBackend creates a JSONL backend at path. The file is created on
// first write.
func NewJSONLBackend(path string, opts ...JSONLOption) (*JSONLBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("store: log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create log dir: %w", err)
	}
	b := &JSONLBackend{path: path, fsync: true, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

// Path returns the log file path.
func (b *JSONLBackend) Path() string { return b.path }

// Persist appends a record.
func (b *JSONLBackend) Persist(r Record) error {
	r.Text = clipText(r.Text)
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: marshal record: %w", err)
	}
	if len(line) >= maxLineBytes {
		return &StorageError{Source: b.path, Err: errLineTooLong}
	}
	line = append(line, '\n')

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("store: write on closed log")
	}

	lock, err := fsutil.LockFile(b.path)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer lock.Unlock()

	f, err := os.OpenFile(b.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("store: open log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("store: write record: %w", err)
	}
	if b.fsync {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("store: fsync record: %w", err)
		}
	}
	b.logger.Debug("store: appended record", "id", r.ID, "digest", r.Key.Short(), "decision", r.Decision)
	return nil
}

// Load reads every record. Corrupt lines are skipped and reported.
func (b *JSONLBackend) Load() ([]Record, LoadReport, error) {
	var report LoadReport
	f, err := os.Open(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, report, nil
	}
	if err != nil {
		return nil, report, fmt.Errorf("store: open log: %w", err)
	}
	defer f.Close()

	var records []Record
	reader := bufio.NewReader(f)
	lineNo := 0
	for {
		line, oversize, err := readLine(reader, maxLineBytes)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, report, fmt.Errorf("store: read log: %w", err)
		}
		if errors.Is(err, io.EOF) && len(line) == 0 && !oversize {
			break
		}
		lineNo++
		switch trimmed := bytes.TrimSpace(line); {
		case oversize:
			serr := &StorageError{Source: b.path, Line: lineNo, Err: errLineTooLong}
			b.logger.Warn("store: skipping oversize record", "error", serr)
			report.skip(serr)
		case len(trimmed) == 0:
		default:
			// A torn tail line fails to decode and is skipped like any
			// other corrupt record.
			r, derr := decodeRecord(trimmed)
			if derr != nil {
				serr := &StorageError{Source: b.path, Line: lineNo, Err: derr}
				b.logger.Warn("store: skipping corrupt record", "error", serr)
				report.skip(serr)
				break
			}
			records = append(records, r)
		}
		if errors.Is(err, io.EOF) {
			break
		}
	}
	report.Loaded = len(records)
	return records, report, nil
}

// readLine reads one newline-terminated line. A line longer than max is
// consumed and discarded and reported as oversize.
func readLine(r *bufio.Reader, max int) ([]byte, bool, error) {
	var (
		buf      []byte
		oversize bool
	)
	for {
		chunk, err := r.ReadSlice('\n')
		if !oversize {
			if len(buf)+len(chunk) > max {
				oversize, buf = true, nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return buf, oversize, err
	}
}

func decodeRecord(line []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return r, err
	}
	if err := r.validate(); err != nil {
		return r, err
	}
	if r.ID == "" || r.Timestamp.IsZero() {
		return r, errors.New("record missing id or timestamp")
	}
	if r.Digest == "" {
		r.Digest = r.Key.Digest()
	}
	return r, nil
}

// Rewrite replaces the log with records via temp file and rename.
func (b *JSONLBackend) Rewrite(records []Record) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("store: marshal record: %w", err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	lock, err := fsutil.LockFile(b.path)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer lock.Unlock()
	if err := fsutil.WriteAtomic(b.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("store: rewrite log: %w", err)
	}
	return nil
}

// Close marks the backend closed. Further writes fail.
func (b *JSONLBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// ReadRecordsFromOffset reads records from path starting at a byte offset.
// It returns the records, the offset after the last complete line, and any
// error. If the file shrank below offset it starts over from zero. Partial
// trailing lines are left for the next call.
func ReadRecordsFromOffset(path string, offset int64) ([]Record, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, offset, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("store: stat %s: %w", path, err)
	}
	if offset > info.Size() {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("store: seek %s: %w", path, err)
	}

	reader := bufio.NewReader(f)
	cursor := offset
	records := make([]Record, 0, 8)
	for {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, cursor, fmt.Errorf("store: read line: %w", err)
		}
		if !strings.HasSuffix(line, "\n") {
			return records, cursor, nil
		}
		cursor += int64(len(line))
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			if r, derr := decodeRecord([]byte(trimmed)); derr == nil {
				records = append(records, r)
			}
		}
		if errors.Is(err, io.EOF) {
			return records, cursor, nil
		}
	}
}
