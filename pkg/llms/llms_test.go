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

package llms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/pkg/config"
)

func anthropicTestConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		Provider:  "anthropic",
		Model:     "claude-sonnet-4-20250514",
		APIKey:    "test-key",
		BaseURL:   baseURL,
		MaxTokens: 256,
		Timeout:   5 * time.Second,
	}
}

func openAITestConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		Provider:  "openai",
		Model:     "gpt-4o",
		APIKey:    "test-key",
		BaseURL:   baseURL,
		MaxTokens: 256,
		Timeout:   5 * time.Second,
	}
}

func collectStream(t *testing.T, ch <-chan StreamChunk) (string, StreamChunk) {
	t.Helper()
	var text string
	var last StreamChunk
	for chunk := range ch {
		last = chunk
		if chunk.Type == "text" {
			text += chunk.Text
		}
	}
	return text, last
}

func TestAnthropicGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, "You write grant prose.", req.System)

		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "Our programs reached "},
				{"type": "text", "text": "1,200 students [1]."},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 42, "output_tokens": 11},
		})
	}))
	defer server.Close()

	p, err := NewAnthropic(anthropicTestConfig(server.URL))
	require.NoError(t, err)

	resp, err := p.Generate(context.Background(), Request{
		System:   "You write grant prose.",
		Messages: []Message{{Role: "user", Content: "Summarize outcomes."}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Our programs reached 1,200 students [1].", resp.Text)
	assert.Equal(t, 42, resp.InputTokens)
	assert.Equal(t, 11, resp.OutputTokens)
}

func TestAnthropicGenerateStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`data: {"type":"message_start","message":{"usage":{"input_tokens":30}}}`,
			`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hello "}}`,
			`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"world"}}`,
			`data: {"type":"message_delta","usage":{"output_tokens":7}}`,
			`data: {"type":"message_stop"}`,
		}
		for _, event := range events {
			fmt.Fprintf(w, "%s\n\n", event)
		}
	}))
	defer server.Close()

	p, err := NewAnthropic(anthropicTestConfig(server.URL))
	require.NoError(t, err)

	ch, err := p.GenerateStreaming(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)

	text, last := collectStream(t, ch)
	assert.Equal(t, "Hello world", text)
	require.Equal(t, "done", last.Type)
	assert.Equal(t, 30, last.InputTokens)
	assert.Equal(t, 7, last.OutputTokens)
}

func TestAnthropicStreamWithoutStopIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"partial\"}}\n\n")
	}))
	defer server.Close()

	p, err := NewAnthropic(anthropicTestConfig(server.URL))
	require.NoError(t, err)

	ch, err := p.GenerateStreaming(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)

	text, last := collectStream(t, ch)
	assert.Equal(t, "partial", text)
	require.Equal(t, "error", last.Type)
	assert.Error(t, last.Error)
}

func TestOpenAIGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Messages)
		assert.Equal(t, "system", req.Messages[0].Role)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "Draft text [1]."}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"prompt_tokens": 20, "completion_tokens": 5},
		})
	}))
	defer server.Close()

	p, err := NewOpenAI(openAITestConfig(server.URL))
	require.NoError(t, err)

	resp, err := p.Generate(context.Background(), Request{
		System:   "You write grant prose.",
		Messages: []Message{{Role: "user", Content: "Draft an intro."}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Draft text [1].", resp.Text)
	assert.Equal(t, 20, resp.InputTokens)
	assert.Equal(t, 5, resp.OutputTokens)
}

func TestOpenAIGenerateStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`data: {"choices":[{"delta":{"content":"Hello "}}]}`,
			`data: {"choices":[{"delta":{"content":"again"}}]}`,
			`data: {"choices":[],"usage":{"prompt_tokens":12,"completion_tokens":4}}`,
			`data: [DONE]`,
		}
		for _, event := range events {
			fmt.Fprintf(w, "%s\n\n", event)
		}
	}))
	defer server.Close()

	p, err := NewOpenAI(openAITestConfig(server.URL))
	require.NoError(t, err)

	ch, err := p.GenerateStreaming(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)

	text, last := collectStream(t, ch)
	assert.Equal(t, "Hello again", text)
	require.Equal(t, "done", last.Type)
	assert.Equal(t, 12, last.InputTokens)
	assert.Equal(t, 4, last.OutputTokens)
}

func TestOpenAIGenerateAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "model not found", "type": "invalid_request_error"},
		})
	}))
	defer server.Close()

	p, err := NewOpenAI(openAITestConfig(server.URL))
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestNewProviderDispatch(t *testing.T) {
	p, err := New(config.LLMConfig{Provider: "anthropic", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicProvider{}, p)

	p, err = New(config.LLMConfig{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIProvider{}, p)

	_, err = New(config.LLMConfig{Provider: "gemini", APIKey: "k"})
	assert.Error(t, err)
}
