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

// Package ingest orchestrates document processing: extract, merge
// metadata, chunk, embed, upsert vectors, persist the record, then
// schedule the keyword rebuild and cache invalidation.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
	"github.com/inkwell-ai/inkwell/pkg/chunking"
	"github.com/inkwell-ai/inkwell/pkg/config"
	"github.com/inkwell-ai/inkwell/pkg/docmeta"
	"github.com/inkwell-ai/inkwell/pkg/embedder"
	"github.com/inkwell-ai/inkwell/pkg/extract"
	"github.com/inkwell-ai/inkwell/pkg/keyword"
	"github.com/inkwell-ai/inkwell/pkg/observability"
	"github.com/inkwell-ai/inkwell/pkg/store"
	"github.com/inkwell-ai/inkwell/pkg/vector"
)

// keywordRebuildBatch is the scroll batch size for index rebuilds.
const keywordRebuildBatch = 256

// Invalidator clears derived read paths after a successful write.
type Invalidator interface {
	InvalidateAll()
}

// Request is one document upload.
type Request struct {
	Data     []byte
	Filename string
	User     docmeta.UserInput
	// IsSensitive marks the document; SensitivityConfirmedAt must be
	// set, confirming the sensitivity review happened.
	IsSensitive            bool
	SensitivityConfirmedAt time.Time
	Principal              string
}

// Result is a processed document plus the non-blocking metadata
// warnings collected along the way.
type Result struct {
	Document *store.Document
	Warnings []string
}

// Processor wires the ingest pipeline dependencies.
type Processor struct {
	registry *extract.Registry
	chunker  chunking.Chunker
	embedder embedder.Embedder
	index    vector.Index
	keywords *keyword.Index
	store    *store.Store
	cache    Invalidator
	metrics  *observability.Metrics
	cfg      config.IngestConfig

	// pending tracks scheduled rebuilds so shutdown (and tests) can
	// wait for them.
	pending sync.WaitGroup
}

// Option configures a Processor.
type Option func(*Processor)

// WithCache attaches the query cache to invalidate after writes.
func WithCache(c Invalidator) Option {
	return func(p *Processor) { p.cache = c }
}

// WithMetrics attaches the metrics recorder.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// NewProcessor creates the ingest pipeline.
func NewProcessor(cfg config.IngestConfig, registry *extract.Registry, chunker chunking.Chunker,
	emb embedder.Embedder, index vector.Index, keywords *keyword.Index, st *store.Store,
	opts ...Option) *Processor {
	cfg.SetDefaults()
	p := &Processor{
		registry: registry,
		chunker:  chunker,
		embedder: emb,
		index:    index,
		keywords: keywords,
		store:    st,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process ingests one document. From a reader's perspective the
// operation is effectively atomic: the document appears in the vector
// index and the metadata store together, or in neither.
func (p *Processor) Process(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if len(req.Data) == 0 {
		return nil, apperr.New(apperr.KindValidation, "upload is empty").
			WithField("field", "data")
	}
	if p.cfg.MaxFileSize > 0 && int64(len(req.Data)) > p.cfg.MaxFileSize {
		return nil, apperr.Newf(apperr.KindValidation,
			"file size %d exceeds limit %d", len(req.Data), p.cfg.MaxFileSize).
			WithField("max_file_size", p.cfg.MaxFileSize)
	}

	extractor, err := p.registry.Lookup(req.Filename)
	if err != nil {
		return nil, err
	}
	if err := extractor.Validate(req.Data); err != nil {
		return nil, err
	}
	text, err := extractor.Extract(ctx, req.Data, req.Filename)
	if err != nil {
		return nil, err
	}
	format, err := extractor.Metadata(req.Data)
	if err != nil {
		slog.Warn("Format metadata extraction failed", "filename", req.Filename, "error", err)
		format = nil
	}

	record, warnings := docmeta.Extract(req.User, req.Filename, text, int64(len(req.Data)), format)

	programs, err := p.store.ValidatePrograms(ctx, record.Programs)
	if err != nil {
		return nil, err
	}
	record.Programs = programs

	chunks := chunking.ChunkDocument(ctx, p.chunker, text)
	if len(chunks) == 0 {
		return nil, apperr.New(apperr.KindValidation, "document contains no extractable text").
			WithField("filename", req.Filename).
			WithAction("check that the file is not empty or image-only")
	}

	docID := uuid.NewString()

	points, err := p.buildPoints(ctx, docID, record, chunks)
	if err != nil {
		return nil, err
	}

	if err := p.index.Upsert(ctx, points); err != nil {
		// Best-effort cleanup of whatever landed before the failure.
		if cleanupErr := p.index.DeleteByDocID(context.WithoutCancel(ctx), docID); cleanupErr != nil {
			slog.Error("Failed to clean up after partial upsert",
				"doc_id", docID, "error", cleanupErr)
		}
		return nil, err
	}

	doc := &store.Document{
		ID:                     docID,
		Filename:               record.Filename,
		DocType:                record.DocType,
		Year:                   record.Year,
		Programs:               record.Programs,
		Tags:                   record.Tags,
		Outcome:                record.Outcome,
		Funder:                 record.Funder,
		IsSensitive:            req.IsSensitive,
		SensitivityConfirmedAt: req.SensitivityConfirmedAt,
		CreatedBy:              req.Principal,
		ChunkCount:             len(chunks),
		WordCount:              record.WordCount,
	}
	if err := p.store.InsertDocument(ctx, doc); err != nil {
		// Vectors landed but the record did not; roll the vectors back
		// so readers never see a half-ingested document.
		if cleanupErr := p.index.DeleteByDocID(context.WithoutCancel(ctx), docID); cleanupErr != nil {
			slog.Error("Failed to roll back vectors after store failure",
				"doc_id", docID, "error", cleanupErr)
		}
		return nil, err
	}

	p.store.RecordAudit(ctx, store.AuditEvent{
		Principal: req.Principal,
		Action:    "document.ingest",
		Entity:    "document",
		EntityID:  docID,
		Details:   map[string]any{"filename": record.Filename, "chunks": len(chunks)},
	})
	p.metrics.RecordIngest(ctx, time.Since(start), len(chunks))

	p.scheduleRefresh()

	slog.Info("Ingested document",
		"doc_id", docID,
		"filename", record.Filename,
		"chunks", len(chunks),
		"duration", time.Since(start))
	return &Result{Document: doc, Warnings: warnings}, nil
}

// buildPoints embeds all chunk texts in one batch and assembles the
// index points. On embedding failure the vectors stay nil and the
// index upsert rejects them, surfacing the failure to the caller.
func (p *Processor) buildPoints(ctx context.Context, docID string, record docmeta.Record, chunks []chunking.Chunk) ([]vector.Point, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	embedStart := time.Now()
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "chunk embedding failed", err)
	}
	if len(vectors) != len(chunks) {
		return nil, apperr.Newf(apperr.KindInternal,
			"expected %d vectors, got %d", len(chunks), len(vectors))
	}
	p.metrics.RecordEmbed(ctx, time.Since(embedStart))

	programs := make([]any, len(record.Programs))
	for i, name := range record.Programs {
		programs[i] = name
	}

	points := make([]vector.Point, len(chunks))
	for i, chunk := range chunks {
		payload := map[string]any{
			"doc_id":            docID,
			"chunk_index":       int64(chunk.Index),
			"text":              chunk.Text,
			"char_count":        int64(chunk.CharCount),
			"word_count":        int64(chunk.WordCount),
			"chunking_strategy": string(chunk.Strategy),
			"filename":          record.Filename,
			"doc_type":          string(record.DocType),
			"programs":          programs,
		}
		if record.Year != 0 {
			payload["year"] = int64(record.Year)
		}
		if record.Outcome != "" {
			payload["outcome"] = string(record.Outcome)
		}
		points[i] = vector.Point{
			ChunkID: fmt.Sprintf("%s:chunk:%d", docID, chunk.Index),
			Vector:  vectors[i],
			Payload: payload,
		}
	}
	return points, nil
}

// Update applies a metadata update to the record and mirrors the
// filterable fields onto the document's chunk payloads, so filters
// and recency decay see the new values on the next query.
func (p *Processor) Update(ctx context.Context, docID string, upd store.DocumentUpdate, principal string) (*store.Document, error) {
	doc, err := p.store.UpdateDocument(ctx, docID, upd)
	if err != nil {
		return nil, err
	}

	programs := make([]any, len(doc.Programs))
	for i, name := range doc.Programs {
		programs[i] = name
	}
	fields := map[string]any{
		"filename": doc.Filename,
		"doc_type": string(doc.DocType),
		"programs": programs,
	}
	if doc.Year != 0 {
		fields["year"] = int64(doc.Year)
	} else {
		fields["year"] = nil
	}
	if doc.Outcome != "" {
		fields["outcome"] = string(doc.Outcome)
	} else {
		fields["outcome"] = nil
	}
	if err := p.index.SetPayloadByDocID(ctx, docID, fields); err != nil {
		// The record is committed; surface the failure so the caller
		// retries rather than trusting stale chunk payloads.
		slog.Error("Failed to propagate metadata update to chunks",
			"doc_id", docID, "error", err)
		return nil, err
	}

	p.store.RecordAudit(ctx, store.AuditEvent{
		Principal: principal,
		Action:    "document.update",
		Entity:    "document",
		EntityID:  docID,
	})

	p.scheduleRefresh()
	return doc, nil
}

// Delete removes a document everywhere: metadata record first, then
// vectors, then the derived read paths.
func (p *Processor) Delete(ctx context.Context, docID, principal string) error {
	if err := p.store.DeleteDocument(ctx, docID); err != nil {
		return err
	}
	if err := p.index.DeleteByDocID(ctx, docID); err != nil {
		// The record is gone; orphaned vectors are invisible to the
		// metadata reader and get dropped on the next rebuild pass.
		slog.Error("Failed to delete vectors", "doc_id", docID, "error", err)
		return err
	}

	p.store.RecordAudit(ctx, store.AuditEvent{
		Principal: principal,
		Action:    "document.delete",
		Entity:    "document",
		EntityID:  docID,
	})
	p.metrics.RecordDelete(ctx)

	p.scheduleRefresh()
	return nil
}

// RebuildKeywords rebuilds the BM25 index from the vector store and
// clears the query cache. Used by the reindex command and at startup.
func (p *Processor) RebuildKeywords(ctx context.Context) error {
	if err := p.keywords.Rebuild(ctx, p.index, keywordRebuildBatch); err != nil {
		return err
	}
	if p.cache != nil {
		p.cache.InvalidateAll()
	}
	return nil
}

// scheduleRefresh runs the keyword rebuild and cache invalidation off
// the request path.
func (p *Processor) scheduleRefresh() {
	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := p.RebuildKeywords(ctx); err != nil {
			slog.Error("Background keyword rebuild failed", "error", err)
		}
	}()
}

// Wait blocks until all scheduled background refreshes finish.
func (p *Processor) Wait() {
	p.pending.Wait()
}
