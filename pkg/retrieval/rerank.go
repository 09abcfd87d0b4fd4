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

package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
	"github.com/inkwell-ai/inkwell/pkg/config"
)

// Reranker rescores the truncated candidate list against the raw
// query. Failures degrade to the fused order, they never fail the
// request.
type Reranker interface {
	// Rerank returns one score per candidate, same order as the input.
	Rerank(ctx context.Context, query string, candidates []Candidate) ([]float64, error)
	Model() string
}

// HTTPReranker posts to a cross-encoder scoring endpoint.
type HTTPReranker struct {
	client *http.Client
	url    string
	model  string
}

var _ Reranker = (*HTTPReranker)(nil)

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// NewHTTPReranker creates the reranker from configuration; nil when
// reranking is disabled.
func NewHTTPReranker(cfg config.RerankConfig) *HTTPReranker {
	if !cfg.Enabled {
		return nil
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &HTTPReranker{
		client: &http.Client{Timeout: timeout},
		url:    cfg.URL,
		model:  cfg.Model,
	}
}

func (r *HTTPReranker) Model() string { return r.model }

func (r *HTTPReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]float64, error) {
	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = c.Text
	}
	body, err := json.Marshal(rerankRequest{Model: r.model, Query: query, Documents: documents})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to marshal rerank request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to create rerank request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "rerank request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, apperr.Newf(apperr.KindUnavailable,
			"reranker returned status %d: %s", resp.StatusCode, data)
	}

	var response rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to decode rerank response", err)
	}
	if len(response.Scores) != len(candidates) {
		return nil, apperr.Newf(apperr.KindInternal,
			"reranker returned %d scores for %d candidates", len(response.Scores), len(candidates))
	}
	return response.Scores, nil
}
