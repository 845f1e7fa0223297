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

// Package embed provides the local text embedder used for embedding
// similarity. It runs in memory with no model files and no network.
//
// The embedder is a signed feature-hashing model over word tokens and
// character trigrams. Similar commands and paths land near each other in
// cosine space, which is all the cascade needs from it.
package embed

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/zeebo/blake3"
)

// DefaultDim is the default vector dimension.
const DefaultDim = 256

// Hashing is a feature-hashing embedder.
type Hashing struct {
	dim int
}

// NewHashing returns a hashing embedder with dim dimensions. A dim below 16
// selects DefaultDim.
func NewHashing(dim int) *Hashing {
	if dim < 16 {
		dim = DefaultDim
	}
	return &Hashing{dim: dim}
}

// Name identifies the model and dimension.
func (h *Hashing) Name() string { return fmt.Sprintf("hashing-v1/%d", h.dim) }

// Dim returns the vector dimension.
func (h *Hashing) Dim() int { return h.dim }

// Embed returns the L2-normalized embedding of text, or nil when text has
// no features.
func (h *Hashing) Embed(text string) []float32 {
	words := words(text)
	if len(words) == 0 {
		return nil
	}
	acc := make([]float64, h.dim)
	for _, w := range words {
		h.add(acc, "w:"+w, 1.0)
		padded := "^" + w + "$"
		if len(padded) <= 3 {
			continue
		}
		for i := 0; i+3 <= len(padded); i++ {
			h.add(acc, "t:"+padded[i:i+3], 0.5)
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)
	out := make([]float32, h.dim)
	for i, v := range acc {
		out[i] = float32(v / norm)
	}
	return out
}

func (h *Hashing) add(acc []float64, feature string, weight float64) {
	sum := blake3.Sum256([]byte(feature))
	idx := binary.LittleEndian.Uint32(sum[:4]) % uint32(h.dim)
	if sum[4]&1 == 1 {
		weight = -weight
	}
	acc[idx] += weight
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.')
	})
}

// Cosine returns the cosine similarity of two vectors of equal length.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
