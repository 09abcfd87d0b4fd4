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

package keyword

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/pkg/vector"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Hello, World!", []string{"hello", "world"}},
		{"FY2023 budget: $1,500", []string{"fy2023", "budget", "1", "500"}},
		{"multi-word  hyphen_split", []string{"multi", "word", "hyphen", "split"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Tokenize(tt.in), tt.in)
	}

	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("   \t\n"))
	assert.Empty(t, Tokenize("!!! ---"))
}

func seedSource(t *testing.T) *vector.MemoryIndex {
	t.Helper()
	src := vector.NewMemoryIndex()
	require.NoError(t, src.EnsureCollection(context.Background(), 2))

	points := []vector.Point{
		{ChunkID: "d1:chunk:0", Vector: []float32{1, 0}, Payload: map[string]any{
			"doc_id": "d1", "text": "education grant proposal for rural schools", "year": int64(2023)}},
		{ChunkID: "d2:chunk:0", Vector: []float32{0, 1}, Payload: map[string]any{
			"doc_id": "d2", "text": "health program annual report", "year": int64(2021)}},
		{ChunkID: "d3:chunk:0", Vector: []float32{1, 1}, Payload: map[string]any{
			"doc_id": "d3", "text": "education education education repeated heavily", "year": int64(2019)}},
	}
	require.NoError(t, src.Upsert(context.Background(), points))
	return src
}

func buildIndex(t *testing.T) *Index {
	t.Helper()
	idx := New()
	require.NoError(t, idx.Rebuild(context.Background(), seedSource(t), 2))
	return idx
}

func TestSearchRanksByRelevance(t *testing.T) {
	idx := buildIndex(t)

	results := idx.Search("education", 10, nil)
	require.Len(t, results, 2)

	// Term frequency wins for the same single-term query.
	assert.Equal(t, "d3:chunk:0", results[0].ChunkID)
	assert.Equal(t, "d1:chunk:0", results[1].ChunkID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSearchEmptyQueryReturnsNothing(t *testing.T) {
	idx := buildIndex(t)
	assert.Nil(t, idx.Search("", 10, nil))
	assert.Nil(t, idx.Search("  \t ", 10, nil))
	assert.Nil(t, idx.Search("!!!", 10, nil))
}

func TestSearchBeforeFirstRebuild(t *testing.T) {
	idx := New()
	assert.Empty(t, idx.Search("education", 10, nil))
	assert.Zero(t, idx.BuiltAt())
}

func TestSearchHonorsFilter(t *testing.T) {
	idx := buildIndex(t)

	results := idx.Search("education", 10, vector.And(vector.In("year", 2023)))
	require.Len(t, results, 1)
	assert.Equal(t, "d1:chunk:0", results[0].ChunkID)
}

func TestSearchHonorsK(t *testing.T) {
	idx := buildIndex(t)
	results := idx.Search("education report program", 1, nil)
	assert.Len(t, results, 1)
}

func TestRebuildIsIdempotent(t *testing.T) {
	src := seedSource(t)

	a := New()
	require.NoError(t, a.Rebuild(context.Background(), src, 2))
	require.NoError(t, a.Rebuild(context.Background(), src, 2))

	b := New()
	require.NoError(t, b.Rebuild(context.Background(), src, 1))

	qa := a.Search("education grant", 10, nil)
	qb := b.Search("education grant", 10, nil)
	require.Equal(t, len(qa), len(qb))
	for i := range qa {
		assert.Equal(t, qa[i].ChunkID, qb[i].ChunkID)
		assert.InDelta(t, qa[i].Score, qb[i].Score, 1e-6)
	}
}

func TestRebuildReflectsDeletes(t *testing.T) {
	src := seedSource(t)
	idx := New()
	require.NoError(t, idx.Rebuild(context.Background(), src, 10))
	require.Equal(t, 3, idx.Size())

	require.NoError(t, src.DeleteByDocID(context.Background(), "d3"))
	require.NoError(t, idx.Rebuild(context.Background(), src, 10))
	assert.Equal(t, 2, idx.Size())

	results := idx.Search("education", 10, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "d1:chunk:0", results[0].ChunkID)
}
