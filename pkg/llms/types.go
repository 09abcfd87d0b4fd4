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

// Package llms holds the LLM provider interface and its OpenAI and
// Anthropic implementations.
package llms

import (
	"context"
	"fmt"

	"github.com/inkwell-ai/inkwell/pkg/config"
)

// Message is one chat turn. Role is "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// Request is a single generation call.
type Request struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Response is a completed non-streaming generation.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// StreamChunk is one event on a streaming generation channel. Type is
// "text" for deltas, "done" for completion (with usage), "error" when
// the stream failed mid-flight.
type StreamChunk struct {
	Type         string
	Text         string
	InputTokens  int
	OutputTokens int
	Error        error
}

// Provider generates text from chat messages.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	// GenerateStreaming emits text deltas followed by exactly one
	// "done" or "error" chunk, then closes the channel.
	GenerateStreaming(ctx context.Context, req Request) (<-chan StreamChunk, error)
	Model() string
	Close() error
}

// New builds the configured provider.
func New(cfg config.LLMConfig) (Provider, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid llm configuration: %w", err)
	}

	switch cfg.Provider {
	case "anthropic":
		return NewAnthropic(cfg)
	case "openai":
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
