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
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts and slices tokens for one encoding.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	name     string
}

var (
	// Encodings are expensive to build; cache per name.
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// NewTokenCounter creates a counter for the named encoding, falling
// back to cl100k_base for unknown names.
func NewTokenCounter(name string) (*TokenCounter, error) {
	cacheMu.RLock()
	cached, exists := encodingCache[name]
	cacheMu.RUnlock()

	if exists {
		return &TokenCounter{encoding: cached, name: name}, nil
	}

	encoding, err := tiktoken.GetEncoding(name)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding: %w", err)
		}
	}

	cacheMu.Lock()
	encodingCache[name] = encoding
	cacheMu.Unlock()

	return &TokenCounter{encoding: encoding, name: name}, nil
}

// Count returns the token count for text.
func (tc *TokenCounter) Count(text string) int {
	return len(tc.encoding.Encode(text, nil, nil))
}

// Encode returns the token ids for text.
func (tc *TokenCounter) Encode(text string) []int {
	return tc.encoding.Encode(text, nil, nil)
}

// Decode converts token ids back to text.
func (tc *TokenCounter) Decode(tokens []int) string {
	return tc.encoding.Decode(tokens)
}
