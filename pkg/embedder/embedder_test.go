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

package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
	"github.com/inkwell-ai/inkwell/pkg/config"
)

type fakeEmbedder struct {
	calls     int
	lastBatch []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.lastBatch = texts
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 2 }
func (f *fakeEmbedder) Model() string   { return "fake-model" }

func TestCachedEmbedderServesRepeats(t *testing.T) {
	inner := &fakeEmbedder{}
	cached := NewCached(inner, 10)
	ctx := context.Background()

	first, err := cached.Embed(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 1, inner.calls)

	second, err := cached.Embed(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls, "fully cached batch must not hit the provider")
	assert.Equal(t, 2, cached.Len())
}

func TestCachedEmbedderEmbedsOnlyMisses(t *testing.T) {
	inner := &fakeEmbedder{}
	cached := NewCached(inner, 10)
	ctx := context.Background()

	_, err := cached.Embed(ctx, []string{"alpha"})
	require.NoError(t, err)

	out, err := cached.Embed(ctx, []string{"alpha", "gamma"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, []string{"gamma"}, inner.lastBatch)
}

type shortEmbedder struct {
	fakeEmbedder
}

func (s *shortEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := s.fakeEmbedder.Embed(ctx, texts)
	if err != nil || len(out) == 0 {
		return out, err
	}
	return out[:len(out)-1], nil
}

func TestCachedEmbedderRejectsShortProviderBatch(t *testing.T) {
	cached := NewCached(&shortEmbedder{}, 10)

	_, err := cached.Embed(context.Background(), []string{"alpha", "beta"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindTransient, apperr.KindOf(err))
	assert.Equal(t, 0, cached.Len(), "a short batch must not populate the cache")
}

func newOpenAITestServer(t *testing.T, batchSizes *[]int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if batchSizes != nil {
			*batchSizes = append(*batchSizes, len(req.Input))
		}

		var resp openAIEmbedResponse
		// Reverse order on purpose; the index field drives placement.
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: []float32{float32(i), 0, 1}, Index: i})
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func openAIConfig(baseURL string) config.EmbedderConfig {
	return config.EmbedderConfig{
		Provider:   "openai",
		Model:      "text-embedding-3-small",
		Dimensions: 3,
		APIKey:     "test-key",
		BaseURL:    baseURL,
		BatchSize:  2,
		Timeout:    5 * time.Second,
	}
}

func TestOpenAIEmbedBatchesAndOrders(t *testing.T) {
	var batchSizes []int
	server := newOpenAITestServer(t, &batchSizes)
	defer server.Close()

	e, err := NewOpenAI(openAIConfig(server.URL))
	require.NoError(t, err)

	vectors, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []int{2, 1}, batchSizes)
	assert.Equal(t, []float32{0, 0, 1}, vectors[0])
	assert.Equal(t, []float32{0, 0, 1}, vectors[2], "second batch restarts indices")
}

func TestOpenAIEmbedEmptyInput(t *testing.T) {
	e, err := NewOpenAI(openAIConfig("http://localhost:0"))
	require.NoError(t, err)

	vectors, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestOpenAIEmbedSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "bad key", "type": "auth", "code": "invalid_api_key"},
		})
	}))
	defer server.Close()

	e, err := NewOpenAI(openAIConfig(server.URL))
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAI(config.EmbedderConfig{Model: "text-embedding-3-small"})
	assert.Error(t, err)
}
