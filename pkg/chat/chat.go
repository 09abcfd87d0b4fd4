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

// Package chat binds a conversation turn to retrieval and generation:
// load the stored context, merge request overrides, retrieve, generate,
// persist the message pair.
package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
	"github.com/inkwell-ai/inkwell/pkg/generation"
	"github.com/inkwell-ai/inkwell/pkg/llms"
	"github.com/inkwell-ai/inkwell/pkg/retrieval"
	"github.com/inkwell-ai/inkwell/pkg/store"
)

// Context is the conversation's persistent writing context. It seeds
// retrieval filters and generation options on every turn; request-level
// overrides shadow individual fields without rewriting the stored blob.
type Context struct {
	Audience           string            `json:"audience,omitempty"`
	Section            string            `json:"section,omitempty"`
	Tone               string            `json:"tone,omitempty"`
	CustomInstructions string            `json:"custom_instructions,omitempty"`
	Filters            retrieval.Filters `json:"filters,omitempty"`
	TopK               int               `json:"top_k,omitempty"`
	RecencyWeight      *float64          `json:"recency_weight,omitempty"`
}

// merge returns the stored context with any non-zero override applied.
func (c Context) merge(override *Context) Context {
	if override == nil {
		return c
	}
	out := c
	if override.Audience != "" {
		out.Audience = override.Audience
	}
	if override.Section != "" {
		out.Section = override.Section
	}
	if override.Tone != "" {
		out.Tone = override.Tone
	}
	if override.CustomInstructions != "" {
		out.CustomInstructions = override.CustomInstructions
	}
	if !override.Filters.IsZero() {
		out.Filters = override.Filters
	}
	if override.TopK > 0 {
		out.TopK = override.TopK
	}
	if override.RecencyWeight != nil {
		out.RecencyWeight = override.RecencyWeight
	}
	return out
}

// TurnRequest is one user message in a conversation.
type TurnRequest struct {
	ConversationID string
	Principal      string
	Message        string
	// Override shadows the stored context for this turn only.
	Override *Context
}

// TurnResult is a completed turn: the persisted message pair, the
// sources that grounded the answer, and the generation result.
type TurnResult struct {
	UserMessage      store.Message         `json:"user_message"`
	AssistantMessage store.Message         `json:"assistant_message"`
	Sources          []retrieval.Candidate `json:"sources"`
	Generation       *generation.Result    `json:"generation"`
}

// Event is one item on a streaming turn channel. Type is "sources"
// (Sources set, sent before any text), "delta", "done" (Result set),
// or "error".
type Event struct {
	Type    string
	Text    string
	Sources []retrieval.Candidate
	Result  *TurnResult
	Err     error
}

// historyLimit caps how many prior messages are replayed to the model.
const historyLimit = 10

// Service orchestrates conversation turns.
type Service struct {
	store     *store.Store
	retriever *retrieval.Engine
	generator *generation.Engine
}

// NewService creates the chat surface.
func NewService(st *store.Store, retriever *retrieval.Engine, generator *generation.Engine) *Service {
	return &Service{store: st, retriever: retriever, generator: generator}
}

// StartConversation creates a conversation with an initial context.
func (s *Service) StartConversation(ctx context.Context, principal, title string, convCtx Context) (*store.Conversation, error) {
	blob, err := json.Marshal(convCtx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to encode conversation context", err)
	}
	return s.store.CreateConversation(ctx, principal, title, blob)
}

// UpdateContext replaces the conversation's stored context blob.
func (s *Service) UpdateContext(ctx context.Context, conversationID string, convCtx Context) error {
	blob, err := json.Marshal(convCtx)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to encode conversation context", err)
	}
	return s.store.UpdateConversationContext(ctx, conversationID, blob)
}

// prepare loads the conversation, merges contexts, and retrieves the
// turn's sources. A turn with no sources fails before generation.
func (s *Service) prepare(ctx context.Context, req TurnRequest) ([]retrieval.Candidate, generation.Request, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, generation.Request{},
			apperr.New(apperr.KindValidation, "message is empty").WithField("field", "message")
	}

	conv, err := s.store.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return nil, generation.Request{}, err
	}

	var stored Context
	if len(conv.Context) > 0 {
		if err := json.Unmarshal(conv.Context, &stored); err != nil {
			slog.Warn("Ignoring malformed conversation context",
				"conversation_id", conv.ID, "error", err)
			stored = Context{}
		}
	}
	merged := stored.merge(req.Override)

	sources, err := s.retriever.Retrieve(ctx, retrieval.Request{
		Query:         req.Message,
		TopK:          merged.TopK,
		Filters:       merged.Filters,
		RecencyWeight: merged.RecencyWeight,
	})
	if err != nil {
		return nil, generation.Request{}, err
	}
	if len(sources) == 0 {
		return nil, generation.Request{}, apperr.New(apperr.KindNotFound,
			"no sources matched the request").
			WithField("conversation_id", req.ConversationID).
			WithAction("ingest relevant documents or relax the conversation's filters")
	}

	genReq := generation.Request{
		Query:   req.Message,
		Sources: sources,
		History: s.history(ctx, req.ConversationID),
		Options: generation.Options{
			Audience:           merged.Audience,
			Section:            merged.Section,
			Tone:               merged.Tone,
			CustomInstructions: merged.CustomInstructions,
		},
	}
	return sources, genReq, nil
}

// Turn runs one non-streaming conversation turn.
func (s *Service) Turn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	start := time.Now()

	sources, genReq, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := s.generator.Generate(ctx, genReq)
	if err != nil {
		return nil, err
	}

	turn, err := s.persistTurn(ctx, req, sources, result)
	if err != nil {
		return nil, err
	}

	slog.Info("Completed chat turn",
		"conversation_id", req.ConversationID,
		"sources", len(sources),
		"duration", time.Since(start))
	return turn, nil
}

// TurnStream runs one streaming turn. The channel yields a "sources"
// event, then text deltas, then "done" or "error", and closes. The
// message pair is persisted only after a successful completion.
func (s *Service) TurnStream(ctx context.Context, req TurnRequest) (<-chan Event, error) {
	sources, genReq, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	genEvents, err := s.generator.GenerateStream(ctx, genReq)
	if err != nil {
		return nil, err
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		events <- Event{Type: "sources", Sources: sources}

		for ev := range genEvents {
			switch ev.Type {
			case "delta":
				events <- Event{Type: "delta", Text: ev.Text}
			case "error":
				events <- Event{Type: "error", Err: ev.Err}
				return
			case "done":
				turn, err := s.persistTurn(ctx, req, sources, ev.Result)
				if err != nil {
					events <- Event{Type: "error", Err: err}
					return
				}
				events <- Event{Type: "done", Result: turn}
				return
			}
		}
	}()
	return events, nil
}

// persistTurn writes the user and assistant messages as one pair. The
// assistant message carries the citation report and the chunk ids that
// grounded it.
func (s *Service) persistTurn(ctx context.Context, req TurnRequest, sources []retrieval.Candidate, result *generation.Result) (*TurnResult, error) {
	chunkIDs := make([]string, len(sources))
	for i, src := range sources {
		chunkIDs[i] = src.ChunkID
	}
	citations, err := json.Marshal(map[string]any{
		"chunk_ids": chunkIDs,
		"report":    result.Citations,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to encode citations", err)
	}

	saved, err := s.store.AppendMessages(ctx, req.ConversationID, []store.Message{
		{Role: "user", Content: req.Message},
		{Role: "assistant", Content: result.Text, Citations: citations},
	})
	if err != nil {
		return nil, err
	}

	return &TurnResult{
		UserMessage:      saved[0],
		AssistantMessage: saved[1],
		Sources:          sources,
		Generation:       result,
	}, nil
}

// history replays the tail of the conversation as chat messages. A
// history load failure degrades to a fresh conversation.
func (s *Service) history(ctx context.Context, conversationID string) []llms.Message {
	messages, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		slog.Warn("Failed to load conversation history",
			"conversation_id", conversationID, "error", err)
		return nil
	}
	if len(messages) > historyLimit {
		messages = messages[len(messages)-historyLimit:]
	}
	out := make([]llms.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, llms.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
