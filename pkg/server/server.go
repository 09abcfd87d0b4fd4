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

// Package server exposes the REST and SSE surface: documents, programs,
// conversations, retrieval, outputs, plus /healthz and /metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inkwell-ai/inkwell/pkg/chat"
	"github.com/inkwell-ai/inkwell/pkg/config"
	"github.com/inkwell-ai/inkwell/pkg/ingest"
	"github.com/inkwell-ai/inkwell/pkg/keyword"
	"github.com/inkwell-ai/inkwell/pkg/retrieval"
	"github.com/inkwell-ai/inkwell/pkg/store"
	"github.com/inkwell-ai/inkwell/pkg/vector"
)

// Deps are the wired components the server serves.
type Deps struct {
	Store     *store.Store
	Processor *ingest.Processor
	Retriever *retrieval.Engine
	Chat      *chat.Service
	Index     vector.Index
	Keywords  *keyword.Index
}

// Server is the HTTP front end.
type Server struct {
	cfg  config.ServerConfig
	deps Deps
	http *http.Server
}

// New creates the server and its router.
func New(cfg config.ServerConfig, deps Deps) *Server {
	cfg.SetDefaults()
	s := &Server{cfg: cfg, deps: deps}
	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Router builds the route tree. Exposed so tests can drive handlers
// without binding a port.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", s.handleUploadDocument)
			r.Get("/", s.handleListDocuments)
			r.Get("/{id}", s.handleGetDocument)
			r.Patch("/{id}", s.handleUpdateDocument)
			r.Delete("/{id}", s.handleDeleteDocument)
		})

		r.Route("/programs", func(r chi.Router) {
			r.Post("/", s.handleCreateProgram)
			r.Get("/", s.handleListPrograms)
			r.Patch("/{id}", s.handleUpdateProgram)
			r.Delete("/{id}", s.handleDeleteProgram)
		})

		r.Post("/query", s.handleQuery)
		r.Get("/cache/stats", s.handleCacheStats)
		r.Post("/cache/flush", s.handleCacheFlush)

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", s.handleCreateConversation)
			r.Get("/", s.handleListConversations)
			r.Get("/{id}", s.handleGetConversation)
			r.Delete("/{id}", s.handleDeleteConversation)
			r.Put("/{id}/context", s.handleUpdateConversationContext)
			r.Get("/{id}/messages", s.handleListMessages)
			r.Post("/{id}/messages", s.handleChatTurn)
		})

		r.Route("/outputs", func(r chi.Router) {
			r.Post("/", s.handleCreateOutput)
			r.Get("/", s.handleListOutputs)
			r.Get("/{id}", s.handleGetOutput)
		})
	})

	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully and
// waits for pending background work.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if s.deps.Processor != nil {
		s.deps.Processor.Wait()
	}
	return nil
}

// requestLogger logs one line per request through slog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
