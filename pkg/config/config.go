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

// Package config holds the YAML configuration for the service.
//
// Every section follows the same contract: SetDefaults fills zero
// values, Validate rejects impossible combinations. Load runs both.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Database  DatabaseConfig  `yaml:"database"`
	Vector    VectorConfig    `yaml:"vector"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	LLM       LLMConfig       `yaml:"llm"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Cache     CacheConfig     `yaml:"cache"`
	Ingest    IngestConfig    `yaml:"ingest"`
}

// SetDefaults applies default values to all sections.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Logging.SetDefaults()
	c.Metrics.SetDefaults()
	c.Database.SetDefaults()
	c.Vector.SetDefaults()
	c.Embedder.SetDefaults()
	c.LLM.SetDefaults()
	c.Chunking.SetDefaults()
	c.Retrieval.SetDefaults()
	c.Cache.SetDefaults()
	c.Ingest.SetDefaults()
}

// Validate checks all sections for errors.
func (c *Config) Validate() error {
	validators := []struct {
		name string
		fn   func() error
	}{
		{"server", c.Server.Validate},
		{"logging", c.Logging.Validate},
		{"database", c.Database.Validate},
		{"vector", c.Vector.Validate},
		{"embedder", c.Embedder.Validate},
		{"llm", c.LLM.Validate},
		{"chunking", c.Chunking.Validate},
		{"retrieval", c.Retrieval.Validate},
		{"cache", c.Cache.Validate},
		{"ingest", c.Ingest.Validate},
	}
	for _, v := range validators {
		if err := v.fn(); err != nil {
			return fmt.Errorf("%s: %w", v.name, err)
		}
	}
	return nil
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host,omitempty"`
	Port            int           `yaml:"port,omitempty"`
	ReadTimeout     time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout    time.Duration `yaml:"write_timeout,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		// Streaming responses can run long.
		c.WriteTimeout = 5 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// Address returns the host:port listen address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level,omitempty"`
	// Format is "text" or "json".
	Format string `yaml:"format,omitempty"`
	// File redirects log output when set; stderr otherwise.
	File string `yaml:"file,omitempty"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
}

func (c *LoggingConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", c.Level)
	}
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (valid: text, json)", c.Format)
	}
	return nil
}

// MetricsConfig configures the prometheus exporter.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

func (c *MetricsConfig) SetDefaults() {}

// DatabaseConfig configures the relational metadata store.
type DatabaseConfig struct {
	// Driver is "sqlite3" or "postgres".
	Driver string `yaml:"driver,omitempty"`
	// DSN is the driver-specific connection string. Supports ${VAR}.
	DSN string `yaml:"dsn,omitempty"`
	// MaxOpenConns caps the connection pool.
	MaxOpenConns int `yaml:"max_open_conns,omitempty"`
}

func (c *DatabaseConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlite3"
	}
	if c.DSN == "" && c.Driver == "sqlite3" {
		c.DSN = "inkwell.db"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
}

func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("invalid driver %q (valid: sqlite3, postgres)", c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("dsn is required for %s", c.Driver)
	}
	return nil
}

// VectorConfig configures the vector index.
type VectorConfig struct {
	// Type is "qdrant" or "memory".
	Type string `yaml:"type,omitempty"`
	// Host for qdrant.
	Host string `yaml:"host,omitempty"`
	// Port for qdrant gRPC.
	Port int `yaml:"port,omitempty"`
	// APIKey for authenticated qdrant access.
	APIKey string `yaml:"api_key,omitempty"`
	// EnableTLS enables TLS connections.
	EnableTLS bool `yaml:"enable_tls,omitempty"`
	// Collection is the collection name.
	Collection string `yaml:"collection,omitempty"`
}

func (c *VectorConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "qdrant"
	}
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "inkwell_chunks"
	}
}

func (c *VectorConfig) Validate() error {
	switch c.Type {
	case "qdrant", "memory":
	default:
		return fmt.Errorf("invalid vector store type %q (valid: qdrant, memory)", c.Type)
	}
	if c.Type == "qdrant" && c.Host == "" {
		return fmt.Errorf("host is required for qdrant")
	}
	return nil
}

// EmbedderConfig configures the embedding provider.
type EmbedderConfig struct {
	// Provider is "openai".
	Provider string `yaml:"provider,omitempty"`
	// Model is the embedding model name.
	Model string `yaml:"model,omitempty"`
	// Dimensions of the produced vectors.
	Dimensions int `yaml:"dimensions,omitempty"`
	// APIKey for the provider. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty"`
	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url,omitempty"`
	// BatchSize caps texts per request.
	BatchSize int `yaml:"batch_size,omitempty"`
	// CacheSize bounds the embedding LRU; negative disables caching.
	CacheSize int `yaml:"cache_size,omitempty"`
	// Timeout per request.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

func (c *EmbedderConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.Dimensions == 0 {
		c.Dimensions = 1536
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.BatchSize == 0 {
		c.BatchSize = 64
	}
	if c.CacheSize == 0 {
		c.CacheSize = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

func (c *EmbedderConfig) Validate() error {
	if c.Provider != "openai" {
		return fmt.Errorf("invalid embedder provider %q (valid: openai)", c.Provider)
	}
	if c.Dimensions < 1 {
		return fmt.Errorf("dimensions must be positive")
	}
	return nil
}

// LLMConfig configures the generation provider.
type LLMConfig struct {
	// Provider is "openai" or "anthropic".
	Provider string `yaml:"provider,omitempty"`
	// Model is the chat model name.
	Model string `yaml:"model,omitempty"`
	// APIKey for the provider. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty"`
	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url,omitempty"`
	// MaxTokens caps the completion length.
	MaxTokens int `yaml:"max_tokens,omitempty"`
	// Temperature for sampling.
	Temperature float64 `yaml:"temperature,omitempty"`
	// Timeout per request.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "anthropic"
	}
	if c.Model == "" {
		switch c.Provider {
		case "openai":
			c.Model = "gpt-4o"
		default:
			c.Model = "claude-sonnet-4-20250514"
		}
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 2048
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
}

func (c *LLMConfig) Validate() error {
	switch c.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("invalid llm provider %q (valid: openai, anthropic)", c.Provider)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be positive")
	}
	return nil
}

// ChunkingConfig configures document chunking.
type ChunkingConfig struct {
	// Strategy is "sentence", "token", or "semantic".
	Strategy string `yaml:"strategy,omitempty"`
	// Size is the target chunk size in tokens.
	Size int `yaml:"size,omitempty"`
	// Overlap is the token overlap between adjacent chunks.
	Overlap int `yaml:"overlap,omitempty"`
}

func (c *ChunkingConfig) SetDefaults() {
	if c.Strategy == "" {
		c.Strategy = "sentence"
	}
	if c.Size == 0 {
		c.Size = 512
	}
	if c.Overlap == 0 {
		c.Overlap = 64
	}
}

func (c *ChunkingConfig) Validate() error {
	switch c.Strategy {
	case "sentence", "token", "semantic":
	default:
		return fmt.Errorf("invalid chunking strategy %q (valid: sentence, token, semantic)", c.Strategy)
	}
	if c.Size < 1 {
		return fmt.Errorf("size must be positive")
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("overlap must be in [0, size)")
	}
	return nil
}

// RetrievalConfig configures the hybrid retrieval engine.
type RetrievalConfig struct {
	// TopK is the default result count.
	TopK int `yaml:"top_k,omitempty"`
	// VectorWeight and KeywordWeight control fusion. Renormalized if
	// their sum is not 1.
	VectorWeight  float64 `yaml:"vector_weight,omitempty"`
	KeywordWeight float64 `yaml:"keyword_weight,omitempty"`
	// RecencyWeight in [0,1] scales the age decay.
	RecencyWeight float64 `yaml:"recency_weight,omitempty"`
	// OverFetch multiplies top_k for the candidate pools.
	OverFetch int `yaml:"over_fetch,omitempty"`
	// MaxPerDoc caps chunks per document after fusion.
	MaxPerDoc int `yaml:"max_per_doc,omitempty"`
	// FusionMode is "weighted" (min-max normalize then weighted sum)
	// or "rrf" (reciprocal rank fusion).
	FusionMode string `yaml:"fusion_mode,omitempty"`
	// Rerank configures the optional reranking stage.
	Rerank RerankConfig `yaml:"rerank,omitempty"`
}

// RerankConfig configures the optional cross-encoder rerank stage.
type RerankConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url,omitempty"`
	Model   string        `yaml:"model,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

func (c *RetrievalConfig) SetDefaults() {
	if c.TopK == 0 {
		c.TopK = 8
	}
	if c.VectorWeight == 0 && c.KeywordWeight == 0 {
		c.VectorWeight = 0.7
		c.KeywordWeight = 0.3
	}
	if c.RecencyWeight == 0 {
		c.RecencyWeight = 0.3
	}
	if c.OverFetch == 0 {
		c.OverFetch = 4
	}
	if c.MaxPerDoc == 0 {
		c.MaxPerDoc = 3
	}
	if c.FusionMode == "" {
		c.FusionMode = "weighted"
	}
	if c.Rerank.Timeout == 0 {
		c.Rerank.Timeout = 5 * time.Second
	}
}

func (c *RetrievalConfig) Validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be positive")
	}
	if c.VectorWeight < 0 || c.KeywordWeight < 0 {
		return fmt.Errorf("fusion weights must be non-negative")
	}
	if c.VectorWeight+c.KeywordWeight == 0 {
		return fmt.Errorf("at least one fusion weight must be positive")
	}
	if c.RecencyWeight < 0 || c.RecencyWeight > 1 {
		return fmt.Errorf("recency_weight must be in [0,1]")
	}
	switch c.FusionMode {
	case "weighted", "rrf":
	default:
		return fmt.Errorf("invalid fusion_mode %q (valid: weighted, rrf)", c.FusionMode)
	}
	if c.Rerank.Enabled && c.Rerank.URL == "" {
		return fmt.Errorf("rerank.url is required when rerank is enabled")
	}
	return nil
}

// CacheConfig configures the query result cache.
type CacheConfig struct {
	// Enabled toggles the cache. Defaults to true.
	Enabled *bool `yaml:"enabled,omitempty"`
	// Capacity is the LRU entry bound.
	Capacity int `yaml:"capacity,omitempty"`
	// TTL is the per-entry lifetime.
	TTL time.Duration `yaml:"ttl,omitempty"`
}

func (c *CacheConfig) SetDefaults() {
	if c.Enabled == nil {
		enabled := true
		c.Enabled = &enabled
	}
	if c.Capacity == 0 {
		c.Capacity = 1000
	}
	if c.TTL == 0 {
		c.TTL = time.Hour
	}
}

func (c *CacheConfig) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("capacity must be positive")
	}
	if c.TTL <= 0 {
		return fmt.Errorf("ttl must be positive")
	}
	return nil
}

// IsEnabled reports whether the cache is on.
func (c *CacheConfig) IsEnabled() bool {
	return c.Enabled != nil && *c.Enabled
}

// IngestConfig configures document processing.
type IngestConfig struct {
	// MaxConcurrent bounds parallel document processing in batch mode.
	MaxConcurrent int `yaml:"max_concurrent,omitempty"`
	// MaxFileSize in bytes; larger uploads are rejected.
	MaxFileSize int64 `yaml:"max_file_size,omitempty"`
}

func (c *IngestConfig) SetDefaults() {
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 4
	}
	if c.MaxFileSize == 0 {
		c.MaxFileSize = 50 << 20
	}
}

func (c *IngestConfig) Validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be positive")
	}
	return nil
}
