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

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
)

func (s *Server) handleCreateProgram(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name         string `json:"name"`
		DisplayOrder int    `json:"display_order"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Name == "" {
		writeError(w, apperr.Validation("name", "program name is required"))
		return
	}

	program, err := s.deps.Store.CreateProgram(r.Context(), body.Name, body.DisplayOrder)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, program)
}

func (s *Server) handleListPrograms(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	programs, err := s.deps.Store.ListPrograms(r.Context(), activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"programs": programs})
}

func (s *Server) handleUpdateProgram(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Active       *bool `json:"active"`
		DisplayOrder *int  `json:"display_order"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	program, err := s.deps.Store.UpdateProgram(r.Context(), chi.URLParam(r, "id"), body.Active, body.DisplayOrder)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, program)
}

func (s *Server) handleDeleteProgram(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	if err := s.deps.Store.DeleteProgram(r.Context(), chi.URLParam(r, "id"), force); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
