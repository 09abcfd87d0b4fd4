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

package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
)

// DefaultCacheSize bounds the embedding LRU when the configuration
// leaves it unset.
const DefaultCacheSize = 4096

// Cached wraps an Embedder with a per-text LRU so repeated queries and
// re-ingested chunks skip the provider round trip.
type Cached struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

var _ Embedder = (*Cached)(nil)

// NewCached wraps inner with an LRU of the given size.
func NewCached(inner Embedder, size int) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &Cached{inner: inner, cache: cache}
}

// cacheKey hashes text and model so a model change never serves stale
// vectors.
func (c *Cached) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + c.inner.Model()))
	return hex.EncodeToString(sum[:])
}

func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

func (c *Cached) Model() string { return c.inner.Model() }

// Embed serves each text from the cache when possible and embeds only
// the misses, in one provider call.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	var missIndices []int
	var missTexts []string
	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			results[i] = vec
			continue
		}
		missIndices = append(missIndices, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	vectors, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, apperr.Newf(apperr.KindTransient,
			"expected %d vectors, got %d", len(missTexts), len(vectors))
	}
	for j, vec := range vectors {
		results[missIndices[j]] = vec
		c.cache.Add(c.cacheKey(missTexts[j]), vec)
	}
	return results, nil
}

// Len reports the number of cached vectors.
func (c *Cached) Len() int {
	return c.cache.Len()
}
