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

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/inkwell-ai/inkwell/pkg/chat"
	"github.com/inkwell-ai/inkwell/pkg/chunking"
	"github.com/inkwell-ai/inkwell/pkg/config"
	"github.com/inkwell-ai/inkwell/pkg/embedder"
	"github.com/inkwell-ai/inkwell/pkg/extract"
	"github.com/inkwell-ai/inkwell/pkg/generation"
	"github.com/inkwell-ai/inkwell/pkg/ingest"
	"github.com/inkwell-ai/inkwell/pkg/keyword"
	"github.com/inkwell-ai/inkwell/pkg/llms"
	"github.com/inkwell-ai/inkwell/pkg/observability"
	"github.com/inkwell-ai/inkwell/pkg/retrieval"
	"github.com/inkwell-ai/inkwell/pkg/store"
	"github.com/inkwell-ai/inkwell/pkg/vector"
)

// app holds the wired components. Commands build only what they need:
// the LLM provider is attached for serve, not for batch commands.
type app struct {
	cfg       *config.Config
	store     *store.Store
	index     vector.Index
	keywords  *keyword.Index
	embedder  embedder.Embedder
	cache     *retrieval.Cache
	metrics   *observability.Metrics
	processor *ingest.Processor
	retriever *retrieval.Engine
	provider  llms.Provider
	chat      *chat.Service
}

func newApp(ctx context.Context, cfg *config.Config, withLLM bool) (*app, error) {
	cfg.SetDefaults()

	metrics, err := observability.InitMetrics(ctx, cfg.Metrics.Enabled)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	index, err := newIndex(cfg.Vector)
	if err != nil {
		st.Close()
		return nil, err
	}

	emb, err := embedder.New(cfg.Embedder)
	if err != nil {
		st.Close()
		index.Close()
		return nil, err
	}

	if err := index.EnsureCollection(ctx, emb.Dimensions()); err != nil {
		st.Close()
		index.Close()
		return nil, err
	}

	chunker, err := chunking.New(chunking.Config{
		Strategy: chunking.Strategy(cfg.Chunking.Strategy),
		Size:     cfg.Chunking.Size,
		Overlap:  cfg.Chunking.Overlap,
	}, emb)
	if err != nil {
		st.Close()
		index.Close()
		return nil, err
	}

	keywords := keyword.New()

	var cache *retrieval.Cache
	if cfg.Cache.Enabled == nil || *cfg.Cache.Enabled {
		cache = retrieval.NewCache(cfg.Cache.Capacity, cfg.Cache.TTL)
	}

	retrieverOpts := []retrieval.Option{retrieval.WithMetrics(metrics)}
	if cache != nil {
		retrieverOpts = append(retrieverOpts, retrieval.WithCache(cache))
	}
	if reranker := retrieval.NewHTTPReranker(cfg.Retrieval.Rerank); reranker != nil {
		retrieverOpts = append(retrieverOpts, retrieval.WithReranker(reranker))
	}
	retriever := retrieval.New(cfg.Retrieval, emb, index, keywords, retrieverOpts...)

	processorOpts := []ingest.Option{ingest.WithMetrics(metrics)}
	if cache != nil {
		processorOpts = append(processorOpts, ingest.WithCache(cache))
	}
	processor := ingest.NewProcessor(cfg.Ingest, extract.NewRegistry(), chunker,
		emb, index, keywords, st, processorOpts...)

	a := &app{
		cfg:       cfg,
		store:     st,
		index:     index,
		keywords:  keywords,
		embedder:  emb,
		cache:     cache,
		metrics:   metrics,
		processor: processor,
		retriever: retriever,
	}

	if withLLM {
		provider, err := llms.New(cfg.LLM)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.provider = provider
		generator := generation.New(provider, cfg.LLM, generation.WithMetrics(metrics))
		a.chat = chat.NewService(st, retriever, generator)
	}
	return a, nil
}

func newIndex(cfg config.VectorConfig) (vector.Index, error) {
	switch cfg.Type {
	case "memory":
		return vector.NewMemoryIndex(), nil
	case "qdrant", "":
		return vector.NewQdrantIndex(vector.QdrantConfig{
			Host:       cfg.Host,
			Port:       cfg.Port,
			APIKey:     cfg.APIKey,
			UseTLS:     cfg.EnableTLS,
			Collection: cfg.Collection,
		})
	default:
		return nil, fmt.Errorf("unsupported vector index type: %s", cfg.Type)
	}
}

// rebuildKeywords restores the sparse index from the vector store.
// Called at startup so keyword search works from the first request.
func (a *app) rebuildKeywords(ctx context.Context) error {
	if err := a.processor.RebuildKeywords(ctx); err != nil {
		return err
	}
	slog.Info("Keyword index rebuilt")
	return nil
}

func (a *app) Close() {
	a.processor.Wait()
	if a.provider != nil {
		if err := a.provider.Close(); err != nil {
			slog.Warn("Failed to close LLM provider", "error", err)
		}
	}
	if err := a.index.Close(); err != nil {
		slog.Warn("Failed to close vector index", "error", err)
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("Failed to close metadata store", "error", err)
	}
}
