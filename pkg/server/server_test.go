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
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/pkg/chat"
	"github.com/inkwell-ai/inkwell/pkg/chunking"
	"github.com/inkwell-ai/inkwell/pkg/config"
	"github.com/inkwell-ai/inkwell/pkg/extract"
	"github.com/inkwell-ai/inkwell/pkg/generation"
	"github.com/inkwell-ai/inkwell/pkg/ingest"
	"github.com/inkwell-ai/inkwell/pkg/keyword"
	"github.com/inkwell-ai/inkwell/pkg/llms"
	"github.com/inkwell-ai/inkwell/pkg/retrieval"
	"github.com/inkwell-ai/inkwell/pkg/store"
	"github.com/inkwell-ai/inkwell/pkg/vector"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (stubEmbedder) Dimensions() int { return 2 }
func (stubEmbedder) Model() string   { return "stub" }

type stubProvider struct{}

func (stubProvider) Generate(ctx context.Context, req llms.Request) (*llms.Response, error) {
	return &llms.Response{Text: "Drafted from the record [1].", InputTokens: 20, OutputTokens: 6}, nil
}

func (stubProvider) GenerateStreaming(ctx context.Context, req llms.Request) (<-chan llms.StreamChunk, error) {
	out := make(chan llms.StreamChunk, 3)
	out <- llms.StreamChunk{Type: "text", Text: "Drafted from "}
	out <- llms.StreamChunk{Type: "text", Text: "the record [1]."}
	out <- llms.StreamChunk{Type: "done", InputTokens: 20, OutputTokens: 6}
	close(out)
	return out, nil
}

func (stubProvider) Model() string { return "stub-model" }
func (stubProvider) Close() error  { return nil }

type testServer struct {
	router    http.Handler
	store     *store.Store
	processor *ingest.Processor
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	st, err := store.New(db, "sqlite3")
	require.NoError(t, err)
	_, err = st.CreateProgram(context.Background(), "Education", 1)
	require.NoError(t, err)

	index := vector.NewMemoryIndex()
	require.NoError(t, index.EnsureCollection(context.Background(), 2))
	keywords := keyword.New()

	chunker, err := chunking.New(chunking.Config{Strategy: chunking.StrategySentence, Size: 64}, nil)
	require.NoError(t, err)

	cache := retrieval.NewCache(100, 0)
	retriever := retrieval.New(config.RetrievalConfig{TopK: 5}, stubEmbedder{}, index, keywords,
		retrieval.WithCache(cache))
	processor := ingest.NewProcessor(config.IngestConfig{}, extract.NewRegistry(), chunker,
		stubEmbedder{}, index, keywords, st, ingest.WithCache(cache))
	generator := generation.New(stubProvider{}, config.LLMConfig{})
	chatSvc := chat.NewService(st, retriever, generator)

	srv := New(config.ServerConfig{}, Deps{
		Store:     st,
		Processor: processor,
		Retriever: retriever,
		Chat:      chatSvc,
		Index:     index,
		Keywords:  keywords,
	})
	return &testServer{router: srv.Router(), store: st, processor: processor}
}

func multipartUpload(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Principal", "writer")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) uploadDocument(t *testing.T, filename string) string {
	t.Helper()
	body, contentType := multipartUpload(t, map[string]string{
		"programs":              "Education",
		"sensitivity_confirmed": "true",
	}, filename, "The literacy program served twelve hundred students across four districts.")

	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Principal", "writer")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Document store.Document `json:"document"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	ts.processor.Wait()
	return resp.Document.ID
}

func TestDocumentLifecycle(t *testing.T) {
	ts := newTestServer(t)

	docID := ts.uploadDocument(t, "grant_2023_funded.txt")

	rec := ts.do(t, http.MethodGet, "/api/documents/"+docID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var doc store.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "grant_2023_funded.txt", doc.Filename)
	assert.Equal(t, 2023, doc.Year)
	assert.Equal(t, "writer", doc.CreatedBy)

	rec = ts.do(t, http.MethodGet, "/api/documents/?year=2023", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Documents []store.Document `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Documents, 1)

	rec = ts.do(t, http.MethodPatch, "/api/documents/"+docID, map[string]any{"funder": "Acme Foundation"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodDelete, "/api/documents/"+docID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	ts.processor.Wait()

	rec = ts.do(t, http.MethodGet, "/api/documents/"+docID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocumentUpdateRefreshesFilters(t *testing.T) {
	ts := newTestServer(t)
	docID := ts.uploadDocument(t, "grant_2019.txt")

	rec := ts.do(t, http.MethodPatch, "/api/documents/"+docID, map[string]any{"year": 2024})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ts.processor.Wait()

	rec = ts.do(t, http.MethodPost, "/api/query", map[string]any{
		"query":   "literacy students",
		"filters": map[string]any{"year_min": 2024, "year_max": 2024},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Candidates []retrieval.Candidate `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Candidates, "updated year matches the new filter")
	assert.Equal(t, docID, resp.Candidates[0].DocID)

	rec = ts.do(t, http.MethodPost, "/api/query", map[string]any{
		"query":   "literacy students",
		"filters": map[string]any{"year_min": 2019, "year_max": 2019},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Candidates, "the old year no longer matches")
}

func TestUploadUnknownProgramReturnsStructuredError(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartUpload(t, map[string]string{
		"programs":              "Nonexistent",
		"sensitivity_confirmed": "true",
	}, "doc.txt", "some text about programs")

	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp struct {
		Error struct {
			Kind   string         `json:"kind"`
			Fields map[string]any `json:"fields"`
			Action string         `json:"action"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation", resp.Error.Kind)
	assert.Equal(t, []any{"Nonexistent"}, resp.Error.Fields["invalid_programs"])
	assert.Equal(t, []any{"Education"}, resp.Error.Fields["valid_programs"])
	assert.NotEmpty(t, resp.Error.Action)
}

func TestUploadWithoutSensitivityConfirmation(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartUpload(t, map[string]string{
		"programs": "Education",
	}, "doc.txt", "some text")

	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestProgramEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/programs/", map[string]any{"name": "Health", "display_order": 2})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created store.Program
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = ts.do(t, http.MethodPost, "/api/programs/", map[string]any{"name": "health"})
	assert.Equal(t, http.StatusConflict, rec.Code, "duplicate names conflict case-insensitively")

	rec = ts.do(t, http.MethodGet, "/api/programs/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Programs []store.Program `json:"programs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Programs, 2)

	rec = ts.do(t, http.MethodPatch, "/api/programs/"+created.ID, map[string]any{"active": false})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated store.Program
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.False(t, updated.Active)

	rec = ts.do(t, http.MethodDelete, "/api/programs/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestProgramDeleteConflictWithoutForce(t *testing.T) {
	ts := newTestServer(t)
	ts.uploadDocument(t, "grant_2023.txt")

	rec := ts.do(t, http.MethodGet, "/api/programs/", nil)
	var list struct {
		Programs []store.Program `json:"programs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.NotEmpty(t, list.Programs)
	id := list.Programs[0].ID

	rec = ts.do(t, http.MethodDelete, "/api/programs/"+id, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/programs/"+id+"?force=true", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestQueryEndpoint(t *testing.T) {
	ts := newTestServer(t)
	docID := ts.uploadDocument(t, "grant_2023.txt")

	rec := ts.do(t, http.MethodPost, "/api/query", map[string]any{
		"query": "literacy students", "top_k": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Candidates []retrieval.Candidate `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Candidates)
	assert.Equal(t, docID, resp.Candidates[0].DocID)

	rec = ts.do(t, http.MethodPost, "/api/query", map[string]any{"top_k": 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing query is rejected")
}

func TestCacheEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.uploadDocument(t, "grant_2023.txt")

	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodPost, "/api/query", map[string]any{"query": "literacy students"})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := ts.do(t, http.MethodGet, "/api/cache/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats retrieval.CacheStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)

	rec = ts.do(t, http.MethodPost, "/api/cache/flush", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/cache/stats", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Zero(t, stats.Entries)
}

func TestChatTurnEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.uploadDocument(t, "grant_2023.txt")

	rec := ts.do(t, http.MethodPost, "/api/conversations/", map[string]any{
		"title":   "Draft",
		"context": map[string]any{"audience": "funder"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var conv store.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%s/messages", conv.ID),
		map[string]any{"message": "How many students did the program serve?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var turn chat.TurnResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turn))
	assert.Equal(t, "assistant", turn.AssistantMessage.Role)
	assert.Contains(t, turn.Generation.Text, "[1]")

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%s/messages", conv.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var messages struct {
		Messages []store.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
	assert.Len(t, messages.Messages, 2)
}

func TestChatTurnStreaming(t *testing.T) {
	ts := newTestServer(t)
	ts.uploadDocument(t, "grant_2023.txt")

	rec := ts.do(t, http.MethodPost, "/api/conversations/", map[string]any{"title": "Draft"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var conv store.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%s/messages", conv.ID),
		map[string]any{"message": "students served", "stream": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: sources")
	assert.Contains(t, body, "event: delta")
	assert.Contains(t, body, "event: done")
	assert.True(t, strings.Index(body, "event: sources") < strings.Index(body, "event: delta"),
		"sources precede deltas")
}

func TestChatTurnNoSources(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/conversations/", map[string]any{"title": "Empty"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var conv store.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%s/messages", conv.ID),
		map[string]any{"message": "anything"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no sources")
}

func TestOutputEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/outputs/", map[string]any{
		"title": "LOI to Acme", "content": "draft text", "funder": "Acme", "amount": 50000.0,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created store.Output
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "writer", created.CreatedBy)

	rec = ts.do(t, http.MethodGet, "/api/outputs/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/outputs/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Outputs []store.Output `json:"outputs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Outputs, 1)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, "ok", report.Components["vector_index"])
	assert.Equal(t, "ok", report.Components["metadata_store"])
}

func TestUnknownDocumentReturns404(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/documents/no-such-id", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"not_found"`)
}
