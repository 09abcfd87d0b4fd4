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

package vector

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
)

// MemoryIndex is a cosine-scan Index for tests and single-node dev
// runs. Not meant for large corpora.
type MemoryIndex struct {
	mu     sync.RWMutex
	dim    int
	points map[string]Point // keyed by chunk id
}

var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: make(map[string]Point)}
}

func (m *MemoryIndex) EnsureCollection(ctx context.Context, dim int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dim == 0 {
		m.dim = dim
	}
	return nil
}

func (m *MemoryIndex) Upsert(ctx context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range points {
		if len(p.Vector) == 0 {
			return apperr.Newf(apperr.KindValidation, "chunk %s has no vector", p.ChunkID)
		}
		if m.dim != 0 && len(p.Vector) != m.dim {
			return apperr.Newf(apperr.KindValidation,
				"chunk %s has dimension %d, collection expects %d", p.ChunkID, len(p.Vector), m.dim)
		}
	}
	for _, p := range points {
		m.points[p.ChunkID] = p
	}
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, vector []float32, k int, filter *Filter) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Result, 0, len(m.points))
	for _, p := range m.points {
		if !filter.Matches(p.Payload) {
			continue
		}
		results = append(results, Result{
			ChunkID: p.ChunkID,
			Text:    stringField(p.Payload, "text"),
			Score:   cosineSimilarity(vector, p.Vector),
			Payload: p.Payload,
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
	return results, nil
}

func (m *MemoryIndex) SetPayloadByDocID(ctx context.Context, docID string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, p := range m.points {
		if stringField(p.Payload, "doc_id") != docID {
			continue
		}
		// Copy so readers holding the old payload map are unaffected.
		payload := make(map[string]any, len(p.Payload)+len(fields))
		for k, v := range p.Payload {
			payload[k] = v
		}
		for k, v := range fields {
			if v == nil {
				delete(payload, k)
				continue
			}
			payload[k] = v
		}
		p.Payload = payload
		m.points[id] = p
	}
	return nil
}

func (m *MemoryIndex) DeleteByDocID(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, p := range m.points {
		if stringField(p.Payload, "doc_id") == docID {
			delete(m.points, id)
		}
	}
	return nil
}

func (m *MemoryIndex) Scroll(ctx context.Context, batchSize int, fn func(Result) error) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.points))
	for id := range m.points {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	snapshot := make([]Result, 0, len(ids))
	for _, id := range ids {
		p := m.points[id]
		snapshot = append(snapshot, Result{
			ChunkID: p.ChunkID,
			Text:    stringField(p.Payload, "text"),
			Payload: p.Payload,
		})
	}
	m.mu.RUnlock()

	for _, r := range snapshot {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryIndex) Health(ctx context.Context) error {
	return nil
}

func (m *MemoryIndex) Close() error {
	return nil
}

// Count returns the number of stored points.
func (m *MemoryIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
