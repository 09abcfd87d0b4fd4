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
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds each dependency probe.
const healthCheckTimeout = 5 * time.Second

type healthReport struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	// KeywordIndexAge is the time since the last BM25 snapshot swap.
	KeywordIndexAge string `json:"keyword_index_age,omitempty"`
}

// handleHealth aggregates the vector index, the metadata store, and the
// keyword index snapshot age. Degraded dependencies flip the overall
// status and the HTTP code to 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	report := healthReport{Status: "ok", Components: map[string]string{}}

	if err := s.deps.Index.Health(ctx); err != nil {
		report.Status = "degraded"
		report.Components["vector_index"] = err.Error()
	} else {
		report.Components["vector_index"] = "ok"
	}

	if err := s.deps.Store.Ping(ctx); err != nil {
		report.Status = "degraded"
		report.Components["metadata_store"] = err.Error()
	} else {
		report.Components["metadata_store"] = "ok"
	}

	if builtAt := s.deps.Keywords.BuiltAt(); builtAt.IsZero() {
		report.Components["keyword_index"] = "not built"
	} else {
		report.Components["keyword_index"] = "ok"
		report.KeywordIndexAge = time.Since(builtAt).Round(time.Second).String()
	}

	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
