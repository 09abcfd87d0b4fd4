// Copyright 2025 Inkwell Authors
//
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

// Package keyword is the in-process BM25 index over the chunk corpus.
//
// The vector index is the source of truth; this index is rebuilt from
// its scroll on cold start and after writes. A rebuild builds a fresh
// snapshot and swaps it atomically, so queries observe either the
// pre-swap or post-swap state, never a partial one.
package keyword

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/inkwell-ai/inkwell/pkg/vector"
)

// Standard BM25 parameters.
const (
	k1 = 1.5
	b  = 0.75
)

type indexedChunk struct {
	chunkID    string
	text       string
	payload    map[string]any
	termCounts map[string]int
	length     int
}

// snapshot is one immutable build of the index.
type snapshot struct {
	chunks    []indexedChunk
	docFreq   map[string]int
	avgLength float64
	builtAt   time.Time
}

// Index scores chunks with BM25. Safe for concurrent use.
type Index struct {
	mu   sync.RWMutex
	snap *snapshot
}

// New creates an empty index. Until the first rebuild, searches
// return no results.
func New() *Index {
	return &Index{snap: &snapshot{docFreq: make(map[string]int)}}
}

// Tokenize lowercases and splits on non-alphanumeric runs. Numeric
// tokens are kept; there is no stemming. Query and corpus text go
// through the same function.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Rebuild scrolls the vector index and swaps in a fresh snapshot.
func (idx *Index) Rebuild(ctx context.Context, source vector.Index, batchSize int) error {
	start := time.Now()

	var chunks []indexedChunk
	err := source.Scroll(ctx, batchSize, func(r vector.Result) error {
		tokens := Tokenize(r.Text)
		counts := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			counts[tok]++
		}
		chunks = append(chunks, indexedChunk{
			chunkID:    r.ChunkID,
			text:       r.Text,
			payload:    r.Payload,
			termCounts: counts,
			length:     len(tokens),
		})
		return nil
	})
	if err != nil {
		return err
	}

	// Deterministic order regardless of scroll order, so repeated
	// rebuilds of the same corpus are identical.
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].chunkID < chunks[j].chunkID
	})

	docFreq := make(map[string]int)
	totalLength := 0
	for _, c := range chunks {
		totalLength += c.length
		for term := range c.termCounts {
			docFreq[term]++
		}
	}
	avgLength := 0.0
	if len(chunks) > 0 {
		avgLength = float64(totalLength) / float64(len(chunks))
	}

	next := &snapshot{
		chunks:    chunks,
		docFreq:   docFreq,
		avgLength: avgLength,
		builtAt:   time.Now(),
	}

	idx.mu.Lock()
	idx.snap = next
	idx.mu.Unlock()

	slog.Info("Rebuilt keyword index",
		"chunks", len(chunks),
		"terms", len(docFreq),
		"duration", time.Since(start))
	return nil
}

// Search scores every chunk matching the filter and returns the top k
// by BM25 desc, ties by chunk id asc. Empty queries return nothing
// without touching the scorer.
func (idx *Index) Search(query string, k int, filter *vector.Filter) []vector.Result {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	idx.mu.RLock()
	snap := idx.snap
	idx.mu.RUnlock()

	n := len(snap.chunks)
	if n == 0 {
		return nil
	}

	results := make([]vector.Result, 0, k)
	for _, chunk := range snap.chunks {
		if !filter.Matches(chunk.payload) {
			continue
		}
		score := snap.score(queryTokens, chunk)
		if score <= 0 {
			continue
		}
		results = append(results, vector.Result{
			ChunkID: chunk.chunkID,
			Text:    chunk.text,
			Score:   float32(score),
			Payload: chunk.payload,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

// score computes BM25 for one chunk against the query tokens.
func (s *snapshot) score(queryTokens []string, chunk indexedChunk) float64 {
	if chunk.length == 0 {
		return 0
	}
	n := float64(len(s.chunks))
	lengthNorm := k1 * (1 - b + b*float64(chunk.length)/s.avgLength)

	var total float64
	for _, term := range queryTokens {
		tf := float64(chunk.termCounts[term])
		if tf == 0 {
			continue
		}
		df := float64(s.docFreq[term])
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		total += idf * (tf * (k1 + 1)) / (tf + lengthNorm)
	}
	return total
}

// Size returns the chunk count of the current snapshot.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.snap.chunks)
}

// BuiltAt returns when the current snapshot was built; zero before
// the first rebuild.
func (idx *Index) BuiltAt() time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.snap.builtAt
}
