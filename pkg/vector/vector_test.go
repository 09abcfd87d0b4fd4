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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
)

func TestFilterMatches(t *testing.T) {
	payload := map[string]any{
		"doc_type": "grant_proposal",
		"year":     int64(2023),
		"programs": []any{"Education", "Health"},
		"outcome":  "funded",
	}

	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{"nil filter matches", nil, true},
		{"equals string", And(Eq("doc_type", "grant_proposal")), true},
		{"equals mismatch", And(Eq("doc_type", "annual_report")), false},
		{"equals numeric cross-type", And(Eq("year", 2023)), true},
		{"set membership on payload list", And(Eq("programs", "Education")), true},
		{"set membership miss", And(Eq("programs", "Arts")), false},
		{"in-set", And(In("year", 2021, 2023)), true},
		{"in-set miss", And(In("year", 2021, 2022)), false},
		{"not-in", And(NotIn("outcome", "pending")), true},
		{"not-in hit", And(NotIn("outcome", "funded")), false},
		{"not-in on absent field", And(NotIn("missing", "x")), true},
		{"between inclusive", And(Between("year", Float64(2023), Float64(2024))), true},
		{"between below", And(Between("year", Float64(2024), nil)), false},
		{"between open min", And(Between("year", nil, Float64(2024))), true},
		{"conjunction", And(Eq("doc_type", "grant_proposal"), In("year", 2023)), true},
		{"conjunction one fails", And(Eq("doc_type", "grant_proposal"), Eq("outcome", "pending")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(payload))
		})
	}
}

func seedMemoryIndex(t *testing.T) *MemoryIndex {
	t.Helper()
	idx := NewMemoryIndex()
	require.NoError(t, idx.EnsureCollection(context.Background(), 3))

	points := []Point{
		{ChunkID: "d1:chunk:0", Vector: []float32{1, 0, 0}, Payload: map[string]any{
			"doc_id": "d1", "text": "education grants", "year": int64(2023)}},
		{ChunkID: "d1:chunk:1", Vector: []float32{0.9, 0.1, 0}, Payload: map[string]any{
			"doc_id": "d1", "text": "education outcomes", "year": int64(2023)}},
		{ChunkID: "d2:chunk:0", Vector: []float32{0, 1, 0}, Payload: map[string]any{
			"doc_id": "d2", "text": "health program", "year": int64(2019)}},
	}
	require.NoError(t, idx.Upsert(context.Background(), points))
	return idx
}

func TestMemorySearchOrdering(t *testing.T) {
	idx := seedMemoryIndex(t)

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "d1:chunk:0", results[0].ChunkID)
	assert.Equal(t, "d1:chunk:1", results[1].ChunkID)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
	}
}

func TestMemorySearchHonorsK(t *testing.T) {
	idx := seedMemoryIndex(t)

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	// Fewer points than k returns everything available.
	results, err = idx.Search(context.Background(), []float32{1, 0, 0}, 50, nil)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestMemorySearchFiltered(t *testing.T) {
	idx := seedMemoryIndex(t)

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 10,
		And(In("year", 2023)))
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, int64(2023), r.Payload["year"])
	}
}

func TestMemoryDeleteByDocID(t *testing.T) {
	idx := seedMemoryIndex(t)

	require.NoError(t, idx.DeleteByDocID(context.Background(), "d1"))
	assert.Equal(t, 1, idx.Count())

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d2:chunk:0", results[0].ChunkID)
}

func TestMemorySetPayloadByDocID(t *testing.T) {
	idx := seedMemoryIndex(t)

	err := idx.SetPayloadByDocID(context.Background(), "d1", map[string]any{
		"year":    int64(2025),
		"outcome": "funded",
		"text":    nil,
	})
	require.NoError(t, err)

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 10,
		And(In("year", 2025)))
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "funded", r.Payload["outcome"])
		assert.NotContains(t, r.Payload, "text", "nil field value removes the key")
	}

	// Other documents keep their payloads.
	results, err = idx.Search(context.Background(), []float32{0, 1, 0}, 10,
		And(Eq("doc_id", "d2")))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(2019), results[0].Payload["year"])
}

func TestMemoryUpsertRejectsNilVector(t *testing.T) {
	idx := NewMemoryIndex()
	err := idx.Upsert(context.Background(), []Point{{ChunkID: "x:chunk:0"}})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestMemoryScrollVisitsAll(t *testing.T) {
	idx := seedMemoryIndex(t)

	var seen []string
	err := idx.Scroll(context.Background(), 2, func(r Result) error {
		seen = append(seen, r.ChunkID)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"d1:chunk:0", "d1:chunk:1", "d2:chunk:0"}, seen)
}

func TestBuildQdrantFilterShapes(t *testing.T) {
	f := buildQdrantFilter(And(
		Eq("doc_type", "grant_proposal"),
		In("year", 2021, 2024),
		NotIn("outcome", "pending"),
		Between("year", Float64(2020), Float64(2025)),
	))
	require.NotNil(t, f)
	assert.Len(t, f.Must, 3)
	assert.Len(t, f.MustNot, 1)

	assert.Nil(t, buildQdrantFilter(nil))
	assert.Nil(t, buildQdrantFilter(&Filter{}))
}

func TestPointIDDeterministic(t *testing.T) {
	a := pointID("d1:chunk:0")
	b := pointID("d1:chunk:0")
	c := pointID("d1:chunk:1")
	assert.Equal(t, a.String(), b.String())
	assert.NotEqual(t, a.String(), c.String())
}
