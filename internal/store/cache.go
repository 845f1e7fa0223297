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
	"strconv"
	"sync"

	"github.com/Epiphytic/hookwise/internal/decision"
)

const cacheStripes = 64

// cacheEntry keeps, per key, the latest record of three kinds. Each slot is
// a maximum by (timestamp, id), so applying records in any order yields the
// same entry.
type cacheEntry struct {
	ask      *Record // latest ask, explicit or not
	explicit *Record // latest explicit allow/deny
	auto     *Record // latest automatic allow/deny
}

func (e *cacheEntry) apply(r *Record) {
	slot := &e.auto
	switch {
	case r.Decision == decision.Ask:
		slot = &e.ask
	case r.Explicit():
		slot = &e.explicit
	}
	if r.after(*slot) {
		*slot = r
	}
}

// effective returns the record that decides this key. An ask stands until
// an explicit record is written after it.
func (e *cacheEntry) effective() *Record {
	if e.ask != nil && (e.explicit == nil || !e.explicit.after(e.ask)) {
		return e.ask
	}
	switch {
	case e.explicit == nil:
		return e.auto
	case e.auto == nil:
		return e.explicit
	case e.auto.after(e.explicit):
		return e.auto
	default:
		return e.explicit
	}
}

// exactCache maps digests to entries. Each digest is guarded by one of a
// fixed set of striped locks, so a write and a lookup of the same key are
// serialized while unrelated keys proceed in parallel.
type exactCache struct {
	stripes [cacheStripes]sync.RWMutex
	entries sync.Map // digest -> *cacheEntry
}

func stripeFor(digest string) int {
	if len(digest) >= 4 {
		if v, err := strconv.ParseUint(digest[:4], 16, 16); err == nil {
			return int(v) % cacheStripes
		}
	}
	h := 0
	for i := 0; i < len(digest); i++ {
		h = h*31 + int(digest[i])
	}
	if h < 0 {
		h = -h
	}
	return h % cacheStripes
}

func (c *exactCache) lock(digest string) *sync.RWMutex {
	return &c.stripes[stripeFor(digest)]
}

// applyLocked merges r. The caller holds the stripe lock for r.Digest.
func (c *exactCache) applyLocked(r *Record) {
	v, _ := c.entries.LoadOrStore(r.Digest, &cacheEntry{})
	v.(*cacheEntry).apply(r)
}

func (c *exactCache) apply(r *Record) {
	mu := c.lock(r.Digest)
	mu.Lock()
	c.applyLocked(r)
	mu.Unlock()
}

// lookup returns a copy of the effective record for digest.
func (c *exactCache) lookup(digest string) (Record, bool) {
	mu := c.lock(digest)
	mu.RLock()
	defer mu.RUnlock()
	v, ok := c.entries.Load(digest)
	if !ok {
		return Record{}, false
	}
	r := v.(*cacheEntry).effective()
	if r == nil {
		return Record{}, false
	}
	return *r, true
}

// effectiveDecision is lookup reduced to the decision.
func (c *exactCache) effectiveDecision(digest string) decision.Decision {
	r, ok := c.lookup(digest)
	if !ok {
		return decision.None
	}
	return r.Decision
}

// each calls fn with the effective record of every key.
func (c *exactCache) each(fn func(Record)) {
	c.entries.Range(func(k, _ any) bool {
		if r, ok := c.lookup(k.(string)); ok {
			fn(r)
		}
		return true
	})
}

func (c *exactCache) reset() {
	c.entries.Range(func(k, _ any) bool {
		c.entries.Delete(k)
		return true
	})
}
