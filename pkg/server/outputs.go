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
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-ai/inkwell/pkg/store"
)

func (s *Server) handleCreateOutput(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ConversationID string     `json:"conversation_id"`
		Title          string     `json:"title"`
		Content        string     `json:"content"`
		Funder         string     `json:"funder"`
		Amount         float64    `json:"amount"`
		SubmittedAt    *time.Time `json:"submitted_at"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	output := &store.Output{
		ConversationID: body.ConversationID,
		Title:          body.Title,
		Content:        body.Content,
		Funder:         body.Funder,
		Amount:         body.Amount,
		SubmittedAt:    body.SubmittedAt,
		CreatedBy:      principal(r),
	}
	if err := s.deps.Store.CreateOutput(r.Context(), output); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, output)
}

func (s *Server) handleListOutputs(w http.ResponseWriter, r *http.Request) {
	outputs, err := s.deps.Store.ListOutputs(r.Context(), r.URL.Query().Get("created_by"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outputs": outputs})
}

func (s *Server) handleGetOutput(w http.ResponseWriter, r *http.Request) {
	output, err := s.deps.Store.GetOutput(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, output)
}
