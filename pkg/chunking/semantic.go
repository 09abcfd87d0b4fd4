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
	"log/slog"
	"math"
	"strings"
)

// semanticChunker splits where embedding similarity drops between
// adjacent sentence windows. Provider failures degrade to the
// sentence-aware strategy.
type semanticChunker struct {
	cfg      Config
	counter  *TokenCounter
	embedder Embedder
	fallback *sentenceChunker
}

var _ Chunker = (*semanticChunker)(nil)

// similarityDropThreshold marks a topic boundary: adjacent windows
// less similar than this start a new chunk.
const similarityDropThreshold = 0.75

// semanticWindow is the number of sentences per comparison window.
const semanticWindow = 3

func (c *semanticChunker) Strategy() Strategy {
	return StrategySemantic
}

func (c *semanticChunker) Chunk(ctx context.Context, text string) ([]Chunk, error) {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}
	if len(sentences) <= semanticWindow {
		return []Chunk{{Text: strings.Join(sentences, " ")}}, nil
	}

	windows := make([]string, 0, len(sentences))
	for i := range sentences {
		end := i + semanticWindow
		if end > len(sentences) {
			end = len(sentences)
		}
		windows = append(windows, strings.Join(sentences[i:end], " "))
	}

	vectors, err := c.embedder.Embed(ctx, windows)
	if err != nil {
		slog.Warn("Semantic chunking embed failed, using sentence-aware", "error", err)
		return c.fallback.Chunk(ctx, text)
	}
	if len(vectors) != len(windows) {
		return c.fallback.Chunk(ctx, text)
	}

	// A boundary before sentence i is a similarity drop between the
	// windows ending there, provided the running chunk stays within
	// the token budget.
	var chunks []Chunk
	var current []string
	currentTokens := 0

	for i, sentence := range sentences {
		tokens := c.counter.Count(sentence)

		boundary := false
		if i > 0 && len(current) > 0 {
			sim := cosine(vectors[i-1], vectors[i])
			if sim < similarityDropThreshold {
				boundary = true
			}
		}
		if currentTokens+tokens > c.cfg.Size {
			boundary = true
		}

		if boundary && len(current) > 0 {
			chunks = append(chunks, Chunk{Text: strings.Join(current, " ")})
			current = nil
			currentTokens = 0
		}

		current = append(current, sentence)
		currentTokens += tokens
	}
	if len(current) > 0 {
		chunks = append(chunks, Chunk{Text: strings.Join(current, " ")})
	}

	return chunks, nil
}

func cosine(a, b []float32) float64 {
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
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
