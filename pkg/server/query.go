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

	"github.com/inkwell-ai/inkwell/pkg/apperr"
	"github.com/inkwell-ai/inkwell/pkg/retrieval"
)

// handleQuery runs retrieval only, without generation. Useful for
// inspecting what would ground a draft.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req retrieval.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Query == "" {
		writeError(w, apperr.Validation("query", "query is required"))
		return
	}

	candidates, err := s.deps.Retriever.Retrieve(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	if candidates == nil {
		candidates = []retrieval.Candidate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": candidates})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Retriever.CacheStats())
}

func (s *Server) handleCacheFlush(w http.ResponseWriter, r *http.Request) {
	s.deps.Retriever.InvalidateCache()
	writeJSON(w, http.StatusOK, map[string]any{"flushed": true})
}
