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
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
	"github.com/inkwell-ai/inkwell/pkg/config"
	"github.com/inkwell-ai/inkwell/pkg/embedder"
	"github.com/inkwell-ai/inkwell/pkg/keyword"
	"github.com/inkwell-ai/inkwell/pkg/observability"
	"github.com/inkwell-ai/inkwell/pkg/vector"
)

// ageMultiplier steps down with document age in years. Missing years
// score like the oldest bucket; future years like the current one.
func ageMultiplier(age int, hasYear bool) float64 {
	switch {
	case !hasYear:
		return 0.85
	case age < 0:
		return 1.00
	case age == 0:
		return 1.00
	case age == 1:
		return 0.95
	case age == 2:
		return 0.90
	case age <= 4:
		return 0.88
	default:
		return 0.85
	}
}

// rrfConstant is the k in 1/(k+rank), the usual reciprocal-rank-fusion
// damping constant.
const rrfConstant = 60.0

// Engine runs the retrieval pipeline. Dense and sparse searches run
// concurrently; everything after the join is deterministic.
type Engine struct {
	embedder embedder.Embedder
	dense    vector.Index
	sparse   *keyword.Index
	reranker Reranker
	cache    *Cache
	cfg      config.RetrievalConfig
	metrics  *observability.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithReranker attaches the optional rerank stage.
func WithReranker(r Reranker) Option {
	return func(e *Engine) { e.reranker = r }
}

// WithCache attaches the query cache.
func WithCache(c *Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithMetrics attaches the metrics recorder.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine.
func New(cfg config.RetrievalConfig, emb embedder.Embedder, dense vector.Index, sparse *keyword.Index, opts ...Option) *Engine {
	cfg.SetDefaults()
	e := &Engine{
		embedder: emb,
		dense:    dense,
		sparse:   sparse,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InvalidateCache clears the query cache. Called after every
// successful document insert or delete.
func (e *Engine) InvalidateCache() {
	if e.cache != nil {
		e.cache.InvalidateAll()
	}
}

// CacheStats exposes the cache counters; zero stats when no cache is
// attached.
func (e *Engine) CacheStats() CacheStats {
	if e.cache == nil {
		return CacheStats{}
	}
	return e.cache.Stats()
}

// Retrieve runs the full pipeline for one request.
func (e *Engine) Retrieve(ctx context.Context, req Request) ([]Candidate, error) {
	start := time.Now()

	normalized := NormalizeQuery(req.Query)
	if normalized == "" {
		return nil, nil
	}

	topK := req.TopK
	if topK <= 0 {
		topK = e.cfg.TopK
	}
	recencyWeight := e.cfg.RecencyWeight
	if req.RecencyWeight != nil {
		recencyWeight = *req.RecencyWeight
	}

	key := ""
	if e.cache != nil {
		key = Fingerprint(req.Query, topK, recencyWeight, req.Filters)
		if cached, ok := e.cache.Get(key); ok {
			e.metrics.RecordCacheEvent(ctx, "hit", 1)
			return cached, nil
		}
		e.metrics.RecordCacheEvent(ctx, "miss", 1)
	}

	candidates, err := e.search(ctx, normalized, topK, recencyWeight, req.Filters)
	if err != nil {
		e.metrics.RecordRetrieval(ctx, err, string(apperr.KindOf(err)))
		return nil, err
	}

	// A cancelled request must not populate the cache.
	if e.cache != nil && ctx.Err() == nil {
		e.cache.Put(key, req.Query, candidates)
	}
	e.metrics.RecordRetrieval(ctx, nil, "")
	e.metrics.RecordStage(ctx, "total", time.Since(start))
	return candidates, nil
}

func (e *Engine) search(ctx context.Context, normalized string, topK int, recencyWeight float64, filters Filters) ([]Candidate, error) {
	fetchK := topK * e.cfg.OverFetch
	filter := filters.toVector()

	var denseResults, sparseResults []vector.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stageStart := time.Now()
		vectors, err := e.embedder.Embed(gctx, []string{normalized})
		if err != nil {
			return apperr.Wrap(apperr.KindTransient, "query embedding failed", err)
		}
		e.metrics.RecordStage(gctx, "embed", time.Since(stageStart))

		stageStart = time.Now()
		denseResults, err = e.dense.Search(gctx, vectors[0], fetchK, filter)
		if err != nil {
			return err
		}
		e.metrics.RecordStage(gctx, "dense", time.Since(stageStart))
		return nil
	})
	g.Go(func() error {
		stageStart := time.Now()
		sparseResults = e.sparse.Search(normalized, fetchK, filter)
		e.metrics.RecordStage(gctx, "sparse", time.Since(stageStart))
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var fused []Candidate
	if e.cfg.FusionMode == "rrf" {
		fused = e.fuseRRF(denseResults, sparseResults)
	} else {
		fused = e.fuseWeighted(denseResults, sparseResults)
	}

	applyRecencyDecay(fused, recencyWeight)
	sortCandidates(fused)
	fused = diversify(fused, e.cfg.MaxPerDoc)
	if len(fused) > topK {
		fused = fused[:topK]
	}

	return e.maybeRerank(ctx, normalized, fused), nil
}

// fuseWeighted min-max normalizes each list independently and merges
// by chunk id with the configured weights. A chunk missing from one
// list contributes 0 for that sub-score.
func (e *Engine) fuseWeighted(dense, sparse []vector.Result) []Candidate {
	vectorWeight, keywordWeight := e.weights()

	denseScores := minMaxNormalize(dense)
	sparseScores := minMaxNormalize(sparse)

	merged := make(map[string]*Candidate, len(dense)+len(sparse))
	for _, r := range dense {
		c := newCandidate(r)
		c.Metadata["_vector_score"] = float64(r.Score)
		c.Score = vectorWeight * denseScores[r.ChunkID]
		merged[r.ChunkID] = c
	}
	for _, r := range sparse {
		norm := keywordWeight * sparseScores[r.ChunkID]
		if c, ok := merged[r.ChunkID]; ok {
			c.Metadata["_keyword_score"] = float64(r.Score)
			c.Score += norm
			continue
		}
		c := newCandidate(r)
		c.Metadata["_keyword_score"] = float64(r.Score)
		c.Score = norm
		merged[r.ChunkID] = c
	}

	return collect(merged)
}

// fuseRRF merges by reciprocal rank instead of score magnitude, then
// rescales into [0,1] by the best attainable sum.
func (e *Engine) fuseRRF(dense, sparse []vector.Result) []Candidate {
	vectorWeight, keywordWeight := e.weights()

	merged := make(map[string]*Candidate, len(dense)+len(sparse))
	for rank, r := range dense {
		c := newCandidate(r)
		c.Metadata["_vector_score"] = float64(r.Score)
		c.Score = vectorWeight / (rrfConstant + float64(rank+1))
		merged[r.ChunkID] = c
	}
	for rank, r := range sparse {
		contribution := keywordWeight / (rrfConstant + float64(rank+1))
		if c, ok := merged[r.ChunkID]; ok {
			c.Metadata["_keyword_score"] = float64(r.Score)
			c.Score += contribution
			continue
		}
		c := newCandidate(r)
		c.Metadata["_keyword_score"] = float64(r.Score)
		c.Score = contribution
		merged[r.ChunkID] = c
	}

	best := 1.0 / (rrfConstant + 1)
	for _, c := range merged {
		c.Score /= best
	}
	return collect(merged)
}

func (e *Engine) weights() (float64, float64) {
	v, k := e.cfg.VectorWeight, e.cfg.KeywordWeight
	sum := v + k
	if sum <= 0 {
		return 0.7, 0.3
	}
	return v / sum, k / sum
}

func (e *Engine) maybeRerank(ctx context.Context, query string, candidates []Candidate) []Candidate {
	if e.reranker == nil || len(candidates) == 0 {
		return candidates
	}

	stageStart := time.Now()
	scores, err := e.reranker.Rerank(ctx, query, candidates)
	if err != nil || len(scores) != len(candidates) {
		// Degraded, never fatal.
		slog.Warn("Reranker unavailable, keeping fused order", "error", err)
		return candidates
	}
	e.metrics.RecordStage(ctx, "rerank", time.Since(stageStart))

	for i := range candidates {
		candidates[i].Score = scores[i]
		candidates[i].Metadata["_reranked"] = true
		candidates[i].Metadata["_rerank_model"] = e.reranker.Model()
	}
	sortCandidates(candidates)
	return candidates
}

func newCandidate(r vector.Result) *Candidate {
	c := &Candidate{
		ChunkID:  r.ChunkID,
		Text:     r.Text,
		Metadata: make(map[string]any, 6),
	}
	if docID, ok := r.Payload["doc_id"].(string); ok {
		c.DocID = docID
	}
	switch idx := r.Payload["chunk_index"].(type) {
	case int64:
		c.ChunkIndex = int(idx)
	case int:
		c.ChunkIndex = idx
	case float64:
		c.ChunkIndex = int(idx)
	}
	for _, key := range []string{"doc_type", "year", "programs", "outcome", "filename"} {
		if v, ok := r.Payload[key]; ok {
			c.Metadata[key] = v
		}
	}
	return c
}

// minMaxNormalize rescales a result list so max maps to 1 and min to
// 0; a degenerate list (max==min) maps everything to 1.
func minMaxNormalize(results []vector.Result) map[string]float64 {
	out := make(map[string]float64, len(results))
	if len(results) == 0 {
		return out
	}

	min, max := float64(results[0].Score), float64(results[0].Score)
	for _, r := range results[1:] {
		s := float64(r.Score)
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}

	for _, r := range results {
		if max == min {
			out[r.ChunkID] = 1.0
			continue
		}
		out[r.ChunkID] = (float64(r.Score) - min) / (max - min)
	}
	return out
}

func applyRecencyDecay(candidates []Candidate, recencyWeight float64) {
	if recencyWeight <= 0 {
		return
	}
	currentYear := time.Now().Year()

	for i := range candidates {
		c := &candidates[i]
		year, hasYear := yearOf(c.Metadata["year"])
		multiplier := ageMultiplier(currentYear-year, hasYear)

		c.Metadata["_original_score"] = c.Score
		c.Metadata["_age_multiplier"] = multiplier
		c.Score *= 1 + recencyWeight*(multiplier-1)
	}
}

func yearOf(v any) (int, bool) {
	switch y := v.(type) {
	case int64:
		return int(y), y != 0
	case int:
		return y, y != 0
	case float64:
		return int(y), y != 0
	default:
		return 0, false
	}
}

// diversify caps candidates per document, keeping the best-scored
// ones. Input must already be sorted.
func diversify(candidates []Candidate, maxPerDoc int) []Candidate {
	if maxPerDoc <= 0 {
		return candidates
	}
	perDoc := make(map[string]int, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		if perDoc[c.DocID] >= maxPerDoc {
			continue
		}
		perDoc[c.DocID]++
		out = append(out, c)
	}
	return out
}

// sortCandidates orders by score desc, then doc id asc, then chunk
// index asc, so equal scores rank deterministically.
func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].DocID != candidates[j].DocID {
			return candidates[i].DocID < candidates[j].DocID
		}
		return candidates[i].ChunkIndex < candidates[j].ChunkIndex
	})
}

func collect(merged map[string]*Candidate) []Candidate {
	out := make([]Candidate, 0, len(merged))
	for _, c := range merged {
		out = append(out, *c)
	}
	return out
}
