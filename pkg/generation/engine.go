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

// Package generation turns retrieved sources into cited draft text:
// prompt assembly, the LLM call (streaming or not), and citation
// extraction and validation over the final text.
package generation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
	"github.com/inkwell-ai/inkwell/pkg/config"
	"github.com/inkwell-ai/inkwell/pkg/llms"
	"github.com/inkwell-ai/inkwell/pkg/observability"
	"github.com/inkwell-ai/inkwell/pkg/retrieval"
)

// Request is one generation call. Sources arrive in retrieval order;
// their 1-based positions become the citation ids.
type Request struct {
	Query   string
	Sources []retrieval.Candidate
	History []llms.Message
	Options Options
}

// Result is a completed generation with its citation report.
type Result struct {
	Text         string         `json:"text"`
	Model        string         `json:"model"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
	Duration     time.Duration  `json:"duration"`
	Citations    CitationReport `json:"citations"`
}

// Event is one item on a streaming generation channel. Type is "delta"
// for incremental text, "done" for the completion event (Result set),
// "error" when generation failed mid-stream.
type Event struct {
	Type   string
	Text   string
	Result *Result
	Err    error
}

// Engine drives the configured LLM provider.
type Engine struct {
	provider llms.Provider
	cfg      config.LLMConfig
	metrics  *observability.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics attaches the metrics recorder.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates a generation engine over the provider.
func New(provider llms.Provider, cfg config.LLMConfig, opts ...Option) *Engine {
	cfg.SetDefaults()
	e := &Engine{provider: provider, cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) validate(req Request) error {
	if strings.TrimSpace(req.Query) == "" {
		return apperr.New(apperr.KindValidation, "query is empty").WithField("field", "query")
	}
	if len(req.Sources) == 0 {
		return apperr.New(apperr.KindValidation, "no sources to generate from").
			WithAction("broaden the query or filters so retrieval returns sources")
	}
	return nil
}

func (e *Engine) llmRequest(req Request) llms.Request {
	messages := append([]llms.Message(nil), req.History...)
	messages = append(messages, llms.Message{
		Role:    "user",
		Content: buildUserPrompt(req.Query, req.Sources, req.Options),
	})
	return llms.Request{
		System:      buildSystemPrompt(req.Options),
		Messages:    messages,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	}
}

// Generate runs a non-streaming generation.
func (e *Engine) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := e.provider.Generate(ctx, e.llmRequest(req))
	if err != nil {
		return nil, err
	}
	duration := time.Since(start)
	e.metrics.RecordLLMCall(ctx, e.provider.Model(), duration, resp.InputTokens, resp.OutputTokens)

	result := &Result{
		Text:         resp.Text,
		Model:        e.provider.Model(),
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		Duration:     duration,
		Citations:    ValidateCitations(resp.Text, len(req.Sources)),
	}
	if !result.Citations.Valid {
		slog.Warn("Generated text cites unknown sources",
			"invalid", result.Citations.InvalidCitations, "sources", len(req.Sources))
	}
	return result, nil
}

// GenerateStream runs a streaming generation. The returned channel
// yields text deltas followed by exactly one "done" event (carrying
// the full Result) or one "error" event, then closes.
func (e *Engine) GenerateStream(ctx context.Context, req Request) (<-chan Event, error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}

	start := time.Now()
	chunks, err := e.provider.GenerateStreaming(ctx, e.llmRequest(req))
	if err != nil {
		return nil, err
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		var text strings.Builder
		for chunk := range chunks {
			switch chunk.Type {
			case "text":
				text.WriteString(chunk.Text)
				events <- Event{Type: "delta", Text: chunk.Text}
			case "error":
				events <- Event{Type: "error", Err: chunk.Error}
				return
			case "done":
				duration := time.Since(start)
				full := text.String()
				e.metrics.RecordLLMCall(ctx, e.provider.Model(), duration,
					chunk.InputTokens, chunk.OutputTokens)
				events <- Event{Type: "done", Result: &Result{
					Text:         full,
					Model:        e.provider.Model(),
					InputTokens:  chunk.InputTokens,
					OutputTokens: chunk.OutputTokens,
					Duration:     duration,
					Citations:    ValidateCitations(full, len(req.Sources)),
				}}
				return
			}
		}
		// Provider closed without a terminal chunk.
		events <- Event{Type: "error",
			Err: apperr.New(apperr.KindTransient, "generation stream ended unexpectedly")}
	}()
	return events, nil
}
