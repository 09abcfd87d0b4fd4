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

// Package embedder produces dense vectors for chunks and queries.
package embedder

import (
	"context"
	"fmt"

	"github.com/inkwell-ai/inkwell/pkg/config"
)

// Embedder turns texts into fixed-dimension vectors.
type Embedder interface {
	// Embed returns one vector per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions of the produced vectors.
	Dimensions() int
	// Model identifies the embedding model, for cache keys and logs.
	Model() string
}

// New builds the configured embedder, wrapped in the LRU cache unless
// caching is disabled.
func New(cfg config.EmbedderConfig) (Embedder, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedder configuration: %w", err)
	}

	var inner Embedder
	switch cfg.Provider {
	case "openai":
		var err error
		inner, err = NewOpenAI(cfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s", cfg.Provider)
	}

	if cfg.CacheSize < 0 {
		return inner, nil
	}
	return NewCached(inner, cfg.CacheSize), nil
}
