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

package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Epiphytic/hookwise/internal/store"
	"github.com/fsnotify/fsnotify"
)

const defaultTailPoll = 250 * time.Millisecond

type tailerEvent struct {
	record store.Record
	err    error
}

// fileTailer follows a JSONL decision log. The log is rewritten in place by
// invalidation, so a rename or remove restarts from the top.
type fileTailer struct {
	path       string
	newWatcher func() (*fsnotify.Watcher, error)
	pollEvery  time.Duration

	// skipExisting starts at the current end of the log.
	skipExisting bool
}

func newFileTailer(path string) *fileTailer {
	return &fileTailer{
		path:       path,
		newWatcher: fsnotify.NewWatcher,
		pollEvery:  defaultTailPoll,
	}
}

func (t *fileTailer) start(ctx context.Context) <-chan tailerEvent {
	out := make(chan tailerEvent, 128)

	go func() {
		defer close(out)
		if strings.TrimSpace(t.path) == "" {
			out <- tailerEvent{err: errors.New("watch: decision log path is empty")}
			return
		}

		dir := filepath.Dir(t.path)
		watcher, err := t.newWatcher()
		if err != nil {
			out <- tailerEvent{err: fmt.Errorf("watch: create file watcher: %w", err)}
			return
		}
		defer watcher.Close()

		if err := watcher.Add(dir); err != nil {
			out <- tailerEvent{err: fmt.Errorf("watch: watch directory %s: %w", dir, err)}
			return
		}

		var offset int64
		if info, err := os.Stat(t.path); err == nil && t.skipExisting {
			offset = info.Size()
		}
		offset = t.publish(ctx, out, offset)

		ticker := time.NewTicker(t.pollEvery)
		defer ticker.Stop()

		target := filepath.Clean(t.path)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				offset = t.publish(ctx, out, offset)
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != target {
					continue
				}
				if evt.Has(fsnotify.Remove) || evt.Has(fsnotify.Rename) {
					offset = 0
					continue
				}
				if evt.Has(fsnotify.Create) {
					offset = 0
				}
				offset = t.publish(ctx, out, offset)
			case err, ok := <-watcher.Errors:
				if !ok {
					continue
				}
				select {
				case out <- tailerEvent{err: fmt.Errorf("watch: watcher error: %w", err)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// publish sends every complete record after offset and returns the new
// offset.
func (t *fileTailer) publish(ctx context.Context, out chan<- tailerEvent, offset int64) int64 {
	records, next, err := store.ReadRecordsFromOffset(t.path, offset)
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		select {
		case out <- tailerEvent{err: err}:
		case <-ctx.Done():
		}
		return offset
	}
	for _, r := range records {
		select {
		case out <- tailerEvent{record: r}:
		case <-ctx.Done():
			return next
		}
	}
	return next
}
