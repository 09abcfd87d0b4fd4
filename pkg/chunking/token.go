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

import "context"

// tokenChunker slices fixed token windows with overlap.
type tokenChunker struct {
	cfg     Config
	counter *TokenCounter
}

var _ Chunker = (*tokenChunker)(nil)

func (c *tokenChunker) Strategy() Strategy {
	return StrategyToken
}

func (c *tokenChunker) Chunk(ctx context.Context, text string) ([]Chunk, error) {
	tokens := c.counter.Encode(text)
	if len(tokens) == 0 {
		return nil, nil
	}

	step := c.cfg.Size - c.cfg.Overlap
	if step < 1 {
		step = c.cfg.Size
	}

	var chunks []Chunk
	for start := 0; start < len(tokens); start += step {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := start + c.cfg.Size
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, Chunk{Text: c.counter.Decode(tokens[start:end])})
		if end == len(tokens) {
			break
		}
	}
	return chunks, nil
}
