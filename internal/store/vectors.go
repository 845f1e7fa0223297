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
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// Embedder turns sanitized text into a fixed-size vector.
type Embedder interface {
	Embed(text string) []float32
	// Name identifies the model and dimension. A snapshot built by a
	// different embedder is not used.
	Name() string
}

// Neighbor is one vector-index hit.
type Neighbor struct {
	Digest     string
	Similarity float64
}

type vectorMeta struct {
	role, tool, scope string
}

// vectorIndex is the HNSW graph loaded from the last build.
type vectorIndex struct {
	mu       sync.RWMutex
	graph    *hnsw.Graph[string]
	meta     map[string]vectorMeta
	embedder string
	builtAt  time.Time
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.Distance = hnsw.CosineDistance
	return g
}

func (v *vectorIndex) install(s *snapshotBody) {
	g := newGraph()
	meta := make(map[string]vectorMeta, len(s.Entries))
	for _, e := range s.Entries {
		if len(e.Vector) == 0 {
			continue
		}
		if _, dup := meta[e.Digest]; dup {
			continue
		}
		g.Add(hnsw.MakeNode(e.Digest, e.Vector))
		meta[e.Digest] = vectorMeta{role: e.Role, tool: e.Tool, scope: e.Scope}
	}
	v.mu.Lock()
	v.graph, v.meta, v.embedder, v.builtAt = g, meta, s.Embedder, s.BuiltAt
	v.mu.Unlock()
}

func (v *vectorIndex) clear() {
	v.mu.Lock()
	v.graph, v.meta, v.embedder, v.builtAt = nil, nil, "", time.Time{}
	v.mu.Unlock()
}

func (v *vectorIndex) len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.meta)
}

// nearest returns up to k neighbors with the same role, tool and scope,
// most similar first. It returns nothing when the index was built by a
// different embedder.
func (v *vectorIndex) nearest(embedder string, vec []float32, role, tool, scope string, k int) []Neighbor {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.graph == nil || len(v.meta) == 0 || embedder != v.embedder || len(vec) == 0 {
		return nil
	}
	// The graph is shared across roles and tools; over-fetch and filter.
	fetch := k * 8
	if fetch < 32 {
		fetch = 32
	}
	if fetch > len(v.meta) {
		fetch = len(v.meta)
	}
	var out []Neighbor
	for _, n := range v.graph.Search(vec, fetch) {
		m, ok := v.meta[n.Key]
		if !ok || m.role != role || m.tool != tool || (scope != "" && m.scope != scope) {
			continue
		}
		sim := 1 - float64(hnsw.CosineDistance(vec, n.Value))
		out = append(out, Neighbor{Digest: n.Key, Similarity: sim})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// Snapshot format: zstd(cbor(envelope)). The envelope carries the CBOR
// encoded body and its blake3 checksum.

const snapshotVersion = 1

type snapshotEnvelope struct {
	Version  int    `cbor:"version"`
	Checksum []byte `cbor:"checksum"`
	Body     []byte `cbor:"body"`
}

type snapshotBody struct {
	Embedder string          `cbor:"embedder"`
	BuiltAt  time.Time       `cbor:"built_at"`
	Entries  []snapshotEntry `cbor:"entries"`
}

type snapshotEntry struct {
	Digest string    `cbor:"digest"`
	Role   string    `cbor:"role"`
	Tool   string    `cbor:"tool"`
	Scope  string    `cbor:"scope"`
	Vector []float32 `cbor:"vector"`
}

// ErrSnapshotCorrupt is returned for a snapshot that fails to decode or
// verify.
var ErrSnapshotCorrupt = errors.New("store: vector snapshot is corrupt")

var (
	cborEnc cbor.EncMode
	zstdEnc *zstd.Encoder
	zstdDec *zstd.Decoder
)

func init() {
	var err error
	if cborEnc, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}
	if zstdEnc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)); err != nil {
		panic("store: zstd encoder initialization failed: " + err.Error())
	}
	if zstdDec, err = zstd.NewReader(nil); err != nil {
		panic("store: zstd decoder initialization failed: " + err.Error())
	}
}

func encodeSnapshot(s *snapshotBody) ([]byte, error) {
	body, err := cborEnc.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("store: encode snapshot: %w", err)
	}
	sum := blake3.Sum256(body)
	env, err := cborEnc.Marshal(snapshotEnvelope{Version: snapshotVersion, Checksum: sum[:], Body: body})
	if err != nil {
		return nil, fmt.Errorf("store: encode snapshot envelope: %w", err)
	}
	return zstdEnc.EncodeAll(env, nil), nil
}

func decodeSnapshot(data []byte) (*snapshotBody, error) {
	raw, err := zstdDec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	var env snapshotEnvelope
	if err := cbor.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if env.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrSnapshotCorrupt, env.Version)
	}
	sum := blake3.Sum256(env.Body)
	if !bytes.Equal(sum[:], env.Checksum) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrSnapshotCorrupt)
	}
	var body snapshotBody
	if err := cbor.Unmarshal(env.Body, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	return &body, nil
}

func readSnapshot(path string) (*snapshotBody, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(data)
}
