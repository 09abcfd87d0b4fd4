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

package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records pipeline instruments. The zero value is a no-op.
type Metrics struct {
	retrievalDuration  metric.Float64Histogram
	retrievalsTotal    metric.Int64Counter
	retrievalErrors    metric.Int64Counter
	cacheEvents        metric.Int64Counter
	documentsProcessed metric.Int64Counter
	documentsDeleted   metric.Int64Counter
	ingestDuration     metric.Float64Histogram
	embedDuration      metric.Float64Histogram
	llmDuration        metric.Float64Histogram
	llmInputTokens     metric.Int64Counter
	llmOutputTokens    metric.Int64Counter
}

// RecordRetrieval records a completed retrieval request.
func (m *Metrics) RecordRetrieval(ctx context.Context, err error, kind string) {
	if m == nil || m.retrievalsTotal == nil {
		return
	}
	m.retrievalsTotal.Add(ctx, 1)
	if err != nil {
		m.retrievalErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", kind),
		))
	}
}

// RecordStage records the duration of one retrieval stage
// (dense, sparse, fuse, rerank).
func (m *Metrics) RecordStage(ctx context.Context, stage string, duration time.Duration) {
	if m == nil || m.retrievalDuration == nil {
		return
	}
	m.retrievalDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
	))
}

// RecordCacheEvent records a query cache event:
// hit, miss, eviction, or invalidation.
func (m *Metrics) RecordCacheEvent(ctx context.Context, event string, n int64) {
	if m == nil || m.cacheEvents == nil {
		return
	}
	m.cacheEvents.Add(ctx, n, metric.WithAttributes(
		attribute.String("event", event),
	))
}

// RecordIngest records a processed document.
func (m *Metrics) RecordIngest(ctx context.Context, duration time.Duration, chunks int) {
	if m == nil || m.documentsProcessed == nil {
		return
	}
	m.documentsProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("chunks", chunks),
	))
	m.ingestDuration.Record(ctx, duration.Seconds())
}

// RecordDelete records a deleted document.
func (m *Metrics) RecordDelete(ctx context.Context) {
	if m == nil || m.documentsDeleted == nil {
		return
	}
	m.documentsDeleted.Add(ctx, 1)
}

// RecordEmbed records an embedding provider round trip.
func (m *Metrics) RecordEmbed(ctx context.Context, duration time.Duration) {
	if m == nil || m.embedDuration == nil {
		return
	}
	m.embedDuration.Record(ctx, duration.Seconds())
}

// RecordLLMCall records a generation round trip with token usage.
func (m *Metrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int) {
	if m == nil || m.llmDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	if inputTokens > 0 {
		m.llmInputTokens.Add(ctx, int64(inputTokens), attrs)
	}
	if outputTokens > 0 {
		m.llmOutputTokens.Add(ctx, int64(outputTokens), attrs)
	}
}
