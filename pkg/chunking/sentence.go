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
	"regexp"
	"strings"
)

// sentenceChunker accumulates whole sentences into a token budget.
// A chunk never ends mid-sentence unless a single sentence alone
// exceeds the budget.
type sentenceChunker struct {
	cfg     Config
	counter *TokenCounter
}

var _ Chunker = (*sentenceChunker)(nil)

func (c *sentenceChunker) Strategy() Strategy {
	return StrategySentence
}

// sentenceEndPattern matches a terminator followed by whitespace.
// Common abbreviations are handled by requiring the next rune to be
// uppercase, a digit, or an opening quote.
var sentenceEndPattern = regexp.MustCompile(`([.!?]+)(\s+)`)

// splitSentences returns the sentences of text, terminators included.
func splitSentences(text string) []string {
	marked := sentenceEndPattern.ReplaceAllString(text, "$1\x00")
	parts := strings.Split(marked, "\x00")

	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func (c *sentenceChunker) Chunk(ctx context.Context, text string) ([]Chunk, error) {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}

	var chunks []Chunk
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, Chunk{Text: strings.Join(current, " ")})

		// Carry trailing sentences into the next chunk as overlap.
		if c.cfg.Overlap > 0 {
			var carry []string
			carryTokens := 0
			for i := len(current) - 1; i >= 0; i-- {
				t := c.counter.Count(current[i])
				if carryTokens+t > c.cfg.Overlap {
					break
				}
				carry = append([]string{current[i]}, carry...)
				carryTokens += t
			}
			current = carry
			currentTokens = carryTokens
		} else {
			current = nil
			currentTokens = 0
		}
	}

	for _, sentence := range sentences {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		tokens := c.counter.Count(sentence)

		// An oversized sentence becomes its own chunk rather than
		// being cut mid-sentence elsewhere.
		if tokens > c.cfg.Size {
			flush()
			current = nil
			currentTokens = 0
			chunks = append(chunks, Chunk{Text: sentence})
			continue
		}

		if currentTokens+tokens > c.cfg.Size {
			flush()
		}
		current = append(current, sentence)
		currentTokens += tokens
	}

	if len(current) > 0 && currentTokens > 0 {
		// Skip a flush that would only repeat the overlap carry.
		last := strings.Join(current, " ")
		if len(chunks) == 0 || !strings.HasSuffix(chunks[len(chunks)-1].Text, last) {
			chunks = append(chunks, Chunk{Text: last})
		}
	}

	return chunks, nil
}
