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

package chunking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	text := "First sentence. Second one! Third? Final without terminator"
	sentences := splitSentences(text)
	require.Len(t, sentences, 4)
	assert.Equal(t, "First sentence.", sentences[0])
	assert.Equal(t, "Second one!", sentences[1])
	assert.Equal(t, "Third?", sentences[2])
	assert.Equal(t, "Final without terminator", sentences[3])
}

func TestSentenceChunkerRespectsBoundaries(t *testing.T) {
	chunker, err := New(Config{Strategy: StrategySentence, Size: 20, Overlap: 0}, nil)
	require.NoError(t, err)

	var sb strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&sb, "Sentence number %d talks about community grants. ", i)
	}

	chunks := ChunkDocument(context.Background(), chunker, sb.String())
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		// Every chunk ends at a sentence boundary.
		assert.True(t, strings.HasSuffix(strings.TrimSpace(c.Text), "."),
			"chunk should end with a full sentence: %q", c.Text)
	}
}

func TestChunkIndicesDense(t *testing.T) {
	chunker, err := New(Config{Strategy: StrategyToken, Size: 16, Overlap: 4}, nil)
	require.NoError(t, err)

	text := strings.Repeat("annual report narrative for the education program ", 40)
	chunks := ChunkDocument(context.Background(), chunker, text)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, len(chunks), c.Total)
		assert.Equal(t, StrategyToken, c.Strategy)
		assert.Positive(t, c.CharCount)
		assert.Positive(t, c.WordCount)
	}
}

func TestEmptyInputYieldsZeroChunks(t *testing.T) {
	chunker, err := New(Config{}, nil)
	require.NoError(t, err)

	assert.Empty(t, ChunkDocument(context.Background(), chunker, ""))
	assert.Empty(t, ChunkDocument(context.Background(), chunker, "   \n\t  "))
}

func TestOversizedSentenceBecomesOwnChunk(t *testing.T) {
	chunker, err := New(Config{Strategy: StrategySentence, Size: 10, Overlap: 0}, nil)
	require.NoError(t, err)

	long := "This single sentence is deliberately much longer than the ten token budget allows for one chunk."
	text := "Short one. " + long + " Another short."

	chunks := ChunkDocument(context.Background(), chunker, text)
	require.NotEmpty(t, chunks)

	found := false
	for _, c := range chunks {
		if strings.Contains(c.Text, "deliberately much longer") {
			found = true
			// The oversized sentence is intact, not split.
			assert.Equal(t, long, c.Text)
		}
	}
	assert.True(t, found)
}

type panickingChunker struct{}

func (panickingChunker) Chunk(ctx context.Context, text string) ([]Chunk, error) {
	panic("boom")
}
func (panickingChunker) Strategy() Strategy { return StrategySentence }

func TestChunkDocumentRecoversFromPanic(t *testing.T) {
	text := strings.Repeat("resilient ingestion text ", 50)
	chunks := ChunkDocument(context.Background(), panickingChunker{}, text)

	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, strategyCharacter, c.Strategy)
	}
	// Fallback output is deterministic.
	again := ChunkDocument(context.Background(), panickingChunker{}, text)
	assert.Equal(t, chunks, again)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("provider down")
}

func TestSemanticFallsBackToSentence(t *testing.T) {
	chunker, err := New(Config{Strategy: StrategySemantic, Size: 64, Overlap: 0}, failingEmbedder{})
	require.NoError(t, err)
	assert.Equal(t, StrategySemantic, chunker.Strategy())

	text := "One sentence about grants. Another about programs. A third about outcomes. A fourth about impact."
	chunks := ChunkDocument(context.Background(), chunker, text)
	require.NotEmpty(t, chunks)
}

type stubEmbedder struct {
	vectors [][]float32
}

func (s stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vectors[i%len(s.vectors)]
	}
	return out, nil
}

func TestSemanticSplitsOnSimilarityDrop(t *testing.T) {
	// Alternate orthogonal vectors so every adjacent pair is a drop.
	chunker, err := New(Config{Strategy: StrategySemantic, Size: 512, Overlap: 0}, stubEmbedder{
		vectors: [][]float32{{1, 0}, {0, 1}},
	})
	require.NoError(t, err)

	text := "Alpha topic here. Beta topic here. Gamma topic here. Delta topic here. Epsilon topic here."
	chunks := ChunkDocument(context.Background(), chunker, text)
	assert.Greater(t, len(chunks), 1)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{1}, []float32{1, 2}))
}
