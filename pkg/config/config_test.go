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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "qdrant", cfg.Vector.Type)
	assert.Equal(t, 6334, cfg.Vector.Port)
	assert.Equal(t, "inkwell_chunks", cfg.Vector.Collection)
	assert.Equal(t, 1536, cfg.Embedder.Dimensions)
	assert.Equal(t, "sentence", cfg.Chunking.Strategy)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.7, cfg.Retrieval.VectorWeight, 1e-9)
	assert.InDelta(t, 0.3, cfg.Retrieval.KeywordWeight, 1e-9)
	assert.Equal(t, 4, cfg.Retrieval.OverFetch)
	assert.Equal(t, 3, cfg.Retrieval.MaxPerDoc)
	assert.Equal(t, "weighted", cfg.Retrieval.FusionMode)
	assert.True(t, cfg.Cache.IsEnabled())
	assert.Equal(t, 1000, cfg.Cache.Capacity)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)

	require.NoError(t, cfg.Validate())
}

func TestParseExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_QDRANT_KEY", "secret-key")

	cfg, err := Parse([]byte(`
vector:
  type: qdrant
  host: qdrant.internal
  api_key: ${TEST_QDRANT_KEY}
database:
  driver: postgres
  dsn: ${TEST_PG_DSN:-postgres://localhost/inkwell}
`))
	require.NoError(t, err)

	assert.Equal(t, "secret-key", cfg.Vector.APIKey)
	assert.Equal(t, "postgres://localhost/inkwell", cfg.Database.DSN)
	assert.Equal(t, "qdrant.internal", cfg.Vector.Host)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			"bad chunk strategy",
			func(c *Config) { c.Chunking.Strategy = "magic" },
			"invalid chunking strategy",
		},
		{
			"overlap >= size",
			func(c *Config) { c.Chunking.Size = 100; c.Chunking.Overlap = 100 },
			"overlap must be in [0, size)",
		},
		{
			"bad fusion mode",
			func(c *Config) { c.Retrieval.FusionMode = "borda" },
			"invalid fusion_mode",
		},
		{
			"recency weight out of range",
			func(c *Config) { c.Retrieval.RecencyWeight = 1.5 },
			"recency_weight must be in [0,1]",
		},
		{
			"rerank enabled without url",
			func(c *Config) { c.Retrieval.Rerank.Enabled = true },
			"rerank.url is required",
		},
		{
			"bad driver",
			func(c *Config) { c.Database.Driver = "oracle" },
			"invalid driver",
		},
		{
			"postgres without dsn",
			func(c *Config) { c.Database.Driver = "postgres"; c.Database.DSN = "" },
			"dsn is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseDurations(t *testing.T) {
	cfg, err := Parse([]byte(`
cache:
  ttl: 30m
  capacity: 50
retrieval:
  rerank:
    timeout: 2s
`))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 50, cfg.Cache.Capacity)
	assert.Equal(t, 2*time.Second, cfg.Retrieval.Rerank.Timeout)
}

func TestCacheCanBeDisabled(t *testing.T) {
	cfg, err := Parse([]byte(`
cache:
  enabled: false
`))
	require.NoError(t, err)
	assert.False(t, cfg.Cache.IsEnabled())
}
