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

package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
	"github.com/inkwell-ai/inkwell/pkg/chat"
)

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title   string       `json:"title"`
		Context chat.Context `json:"context"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	conv, err := s.deps.Chat.StartConversation(r.Context(), principal(r), body.Title, body.Context)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.deps.Store.ListConversations(r.Context(), principal(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.deps.Store.GetConversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteConversation(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleUpdateConversationContext(w http.ResponseWriter, r *http.Request) {
	var body chat.Context
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Chat.UpdateContext(r.Context(), chi.URLParam(r, "id"), body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.deps.Store.ListMessages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// handleChatTurn runs one conversation turn. With "stream": true the
// response is an SSE stream of sources, delta, done, and error events;
// otherwise a single JSON body.
func (s *Server) handleChatTurn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message  string        `json:"message"`
		Stream   bool          `json:"stream"`
		Override *chat.Context `json:"override"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	req := chat.TurnRequest{
		ConversationID: chi.URLParam(r, "id"),
		Principal:      principal(r),
		Message:        body.Message,
		Override:       body.Override,
	}

	if !body.Stream {
		result, err := s.deps.Chat.Turn(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	events, err := s.deps.Chat.TurnStream(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	streamEvents(w, events)
}

// streamEvents writes chat events as server-sent events, flushing after
// each one so deltas reach the client as they arrive.
func streamEvents(w http.ResponseWriter, events <-chan chat.Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperr.New(apperr.KindInternal, "response writer does not support streaming"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for ev := range events {
		var payload any
		switch ev.Type {
		case "sources":
			payload = map[string]any{"sources": ev.Sources}
		case "delta":
			payload = map[string]any{"text": ev.Text}
		case "done":
			payload = ev.Result
		case "error":
			payload = map[string]any{
				"kind":    string(apperr.KindOf(ev.Err)),
				"message": ev.Err.Error(),
			}
		}
		data, err := json.Marshal(payload)
		if err != nil {
			data = []byte(`{}`)
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		flusher.Flush()
	}
}
