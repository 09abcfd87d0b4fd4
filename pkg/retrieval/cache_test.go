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

package retrieval

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintStability(t *testing.T) {
	base := Fingerprint("education grants", 5, 0.3, Filters{Programs: []string{"Education"}})

	assert.Equal(t, base,
		Fingerprint("  Education   GRANTS ", 5, 0.3, Filters{Programs: []string{"Education"}}),
		"case and whitespace do not change the key")

	assert.NotEqual(t, base, Fingerprint("education grants", 6, 0.3, Filters{Programs: []string{"Education"}}))
	assert.NotEqual(t, base, Fingerprint("education grants", 5, 0.5, Filters{Programs: []string{"Education"}}))
	assert.NotEqual(t, base, Fingerprint("education grants", 5, 0.3, Filters{Programs: []string{"Health"}}))
	assert.NotEqual(t, base, Fingerprint("education grants", 5, 0.3, Filters{}))
}

func TestCacheGetPut(t *testing.T) {
	c := NewCache(10, time.Hour)
	key := Fingerprint("q", 5, 0, Filters{})

	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Put(key, "q", []Candidate{{ChunkID: "d:chunk:0", Score: 0.8}})
	got, ok := c.Get(key)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "d:chunk:0", got[0].ChunkID)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(2), stats.TotalQueries)
}

func TestCacheTTLExpiry(t *testing.T) {
	c := NewCache(10, time.Hour)
	current := time.Now()
	c.now = func() time.Time { return current }

	c.Put("k", "q", nil)
	_, ok := c.Get("k")
	assert.True(t, ok)

	current = current.Add(2 * time.Hour)
	_, ok = c.Get("k")
	assert.False(t, ok, "expired entries are dropped on access")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses, "expiry counts as a miss")
	assert.Zero(t, stats.Evictions, "expiry is not an eviction")
	assert.Zero(t, stats.Entries)
}

func TestCacheEviction(t *testing.T) {
	c := NewCache(2, time.Hour)
	c.Put("a", "a", nil)
	c.Put("b", "b", nil)
	c.Put("c", "c", nil)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, 2, stats.Entries)

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry was displaced")
}

func TestCacheOverwriteIsNotEviction(t *testing.T) {
	c := NewCache(2, time.Hour)
	c.Put("a", "a", []Candidate{{ChunkID: "old"}})
	c.Put("a", "a", []Candidate{{ChunkID: "new"}})

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "new", got[0].ChunkID, "last writer wins")
	assert.Zero(t, c.Stats().Evictions)
}

func TestCacheInvalidateAll(t *testing.T) {
	c := NewCache(10, time.Hour)
	c.Put("a", "a", nil)
	c.Put("b", "b", nil)

	c.InvalidateAll()

	stats := c.Stats()
	assert.Zero(t, stats.Entries)
	assert.Equal(t, int64(1), stats.Invalidations)
	assert.Zero(t, stats.Evictions, "invalidation is not an eviction")
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewCache(100, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("key-%d", j%20)
				if j%3 == 0 {
					c.Put(key, key, []Candidate{{ChunkID: key}})
				} else {
					c.Get(key)
				}
				if worker == 0 && j%50 == 0 {
					c.InvalidateAll()
				}
			}
		}(i)
	}
	wg.Wait()

	stats := c.Stats()
	assert.Equal(t, stats.TotalQueries, stats.Hits+stats.Misses)
}
