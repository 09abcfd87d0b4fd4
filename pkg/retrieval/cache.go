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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheEntry keeps the ranked candidates plus the original query for
// debugging, the insertion time for TTL checks, and an access counter.
type cacheEntry struct {
	query      string
	candidates []Candidate
	insertedAt time.Time
	accesses   atomic.Int64
}

// CacheStats is a read-only snapshot of the cache counters.
// Hits+Misses always equals TotalQueries.
type CacheStats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Evictions     int64 `json:"evictions"`
	Invalidations int64 `json:"invalidations"`
	TotalQueries  int64 `json:"total_queries"`
	Entries       int   `json:"entries"`
}

// Cache is the bounded query cache: LRU with per-entry TTL. Expired
// entries are dropped on access and counted as misses. There is no
// single-flight: concurrent identical misses both compute, last
// writer wins.
type Cache struct {
	mu   sync.Mutex
	lru  *lru.Cache[string, *cacheEntry]
	ttl  time.Duration
	now  func() time.Time
	hits, misses, evictions,
	invalidations atomic.Int64
}

// NewCache creates a cache with the given entry capacity and TTL.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Cache{ttl: ttl, now: time.Now}
	c.lru, _ = lru.NewWithEvict(capacity, func(string, *cacheEntry) {
		c.evictions.Add(1)
	})
	return c
}

// Fingerprint derives the cache key: normalized query text, top_k,
// recency weight, and a sorted JSON rendering of the non-empty filter
// fields.
func Fingerprint(query string, topK int, recencyWeight float64, filters Filters) string {
	normalizedQuery := strings.Join(strings.Fields(strings.ToLower(query)), " ")

	filterFields := make(map[string]any)
	if len(filters.DocTypes) > 0 {
		filterFields["doc_types"] = filters.DocTypes
	}
	if len(filters.Programs) > 0 {
		filterFields["programs"] = filters.Programs
	}
	if len(filters.Outcomes) > 0 {
		filterFields["outcomes"] = filters.Outcomes
	}
	if len(filters.DocIDs) > 0 {
		filterFields["doc_ids"] = filters.DocIDs
	}
	if filters.YearMin != 0 {
		filterFields["year_min"] = filters.YearMin
	}
	if filters.YearMax != 0 {
		filterFields["year_max"] = filters.YearMax
	}
	// Map keys marshal in sorted order, so the rendering is stable.
	filterJSON, _ := json.Marshal(filterFields)

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%g|%s",
		normalizedQuery, topK, recencyWeight, filterJSON)))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached candidates if present and fresh. An expired
// entry is dropped and reported as a miss.
func (c *Cache) Get(key string) ([]Candidate, bool) {
	c.mu.Lock()
	entry, ok := c.lru.Get(key)
	if ok && c.now().Sub(entry.insertedAt) > c.ttl {
		c.lru.Remove(key)
		// Expiry is not an eviction; undo the callback's count.
		c.evictions.Add(-1)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	entry.accesses.Add(1)
	return entry.candidates, true
}

// Put stores a result list. An existing entry for the key is
// overwritten.
func (c *Cache) Put(key, query string, candidates []Candidate) {
	entry := &cacheEntry{
		query:      query,
		candidates: candidates,
		insertedAt: c.now(),
	}
	c.mu.Lock()
	// Add updates an existing key in place; the evict callback fires
	// only when a capacity eviction displaces the oldest entry.
	c.lru.Add(key, entry)
	c.mu.Unlock()
}

// InvalidateAll clears every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	n := c.lru.Len()
	c.lru.Purge()
	c.evictions.Add(int64(-n))
	c.mu.Unlock()
	c.invalidations.Add(1)
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	entries := c.lru.Len()
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	return CacheStats{
		Hits:          hits,
		Misses:        misses,
		Evictions:     c.evictions.Load(),
		Invalidations: c.invalidations.Load(),
		TotalQueries:  hits + misses,
		Entries:       entries,
	}
}
