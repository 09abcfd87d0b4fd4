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

// Package chunking splits extracted text into retrieval units.
//
// Chunking is critical for retrieval quality:
//   - Too small: loses context, retrieves fragments
//   - Too large: wastes tokens, dilutes relevance
//
// Three strategies are available. All of them are wrapped by
// ChunkDocument, which guarantees ingestion never fails on a chunker
// fault by degrading to a character-window split.
package chunking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Strategy identifies a chunking strategy.
type Strategy string

const (
	// StrategySentence respects sentence boundaries within a token budget.
	StrategySentence Strategy = "sentence"

	// StrategyToken splits by fixed token windows. Predictable baseline.
	StrategyToken Strategy = "token"

	// StrategySemantic splits on drops in embedding similarity between
	// adjacent sentence windows. Falls back to sentence-aware when no
	// embedder is available at init.
	StrategySemantic Strategy = "semantic"

	// strategyCharacter is the internal fault fallback.
	strategyCharacter Strategy = "character"
)

// Chunk is one retrieval unit of a document.
type Chunk struct {
	// Index is 0-based and dense within the document.
	Index int
	// Total is the chunk count of the document.
	Total int
	// Text is the chunk content.
	Text string
	// CharCount and WordCount are derived from Text.
	CharCount int
	WordCount int
	// Strategy that produced this chunk.
	Strategy Strategy
}

// Chunker splits text into ordered chunks.
type Chunker interface {
	Chunk(ctx context.Context, text string) ([]Chunk, error)
	Strategy() Strategy
}

// Config configures a chunker. Size and Overlap are in tokens.
type Config struct {
	Strategy Strategy
	Size     int
	Overlap  int
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Strategy == "" {
		c.Strategy = StrategySentence
	}
	if c.Size <= 0 {
		c.Size = 512
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Strategy {
	case StrategySentence, StrategyToken, StrategySemantic:
	default:
		return fmt.Errorf("invalid chunking strategy: %q", c.Strategy)
	}
	if c.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Size)
	}
	if c.Overlap >= c.Size {
		return fmt.Errorf("overlap (%d) must be less than size (%d)", c.Overlap, c.Size)
	}
	return nil
}

// Embedder is the slice of the embedding provider the semantic
// strategy needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// New creates a chunker from configuration. The embedder is only used
// by the semantic strategy and may be nil for the others; a nil
// embedder downgrades semantic to sentence-aware.
func New(cfg Config, embedder Embedder) (Chunker, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chunking config: %w", err)
	}

	counter, err := NewTokenCounter("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to init token counter: %w", err)
	}

	switch cfg.Strategy {
	case StrategyToken:
		return &tokenChunker{cfg: cfg, counter: counter}, nil
	case StrategySemantic:
		if embedder == nil {
			slog.Warn("Semantic chunking requested without an embedder, using sentence-aware")
			return &sentenceChunker{cfg: cfg, counter: counter}, nil
		}
		return &semanticChunker{
			cfg:      cfg,
			counter:  counter,
			embedder: embedder,
			fallback: &sentenceChunker{cfg: cfg, counter: counter},
		}, nil
	default:
		return &sentenceChunker{cfg: cfg, counter: counter}, nil
	}
}

// ChunkDocument runs the chunker and guards ingestion against chunker
// faults: panics and errors degrade to a deterministic
// character-window split. Empty input yields zero chunks.
func ChunkDocument(ctx context.Context, chunker Chunker, text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	chunks, err := func() (chunks []Chunk, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("chunker panic: %v", r)
			}
		}()
		return chunker.Chunk(ctx, text)
	}()

	if err != nil {
		slog.Warn("Chunker failed, falling back to character windows",
			"strategy", chunker.Strategy(), "error", err)
		return characterSplit(text, 2048, 256)
	}

	return finalize(chunks, chunker.Strategy())
}

// finalize assigns dense indices, totals, and derived counts.
func finalize(chunks []Chunk, strategy Strategy) []Chunk {
	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		out = append(out, c)
	}
	for i := range out {
		out[i].Index = i
		out[i].Total = len(out)
		out[i].CharCount = utf8.RuneCountInString(out[i].Text)
		out[i].WordCount = len(strings.Fields(out[i].Text))
		if out[i].Strategy == "" {
			out[i].Strategy = strategy
		}
	}
	return out
}

// characterSplit is the deterministic fault fallback: fixed rune
// windows with overlap.
func characterSplit(text string, size, overlap int) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := size - overlap
	if step < 1 {
		step = size
	}

	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{Text: string(runes[start:end])})
		if end == len(runes) {
			break
		}
	}
	return finalize(chunks, strategyCharacter)
}
