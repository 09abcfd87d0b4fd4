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

// Package observability exposes pipeline metrics through an otel meter
// backed by the prometheus exporter. All recording methods are nil-safe
// so disabled metrics cost a single pointer check.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics creates the meter and all pipeline instruments. When
// disabled, the returned Metrics records nothing.
func InitMetrics(ctx context.Context, enabled bool) (*Metrics, error) {
	if !enabled {
		return &Metrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)

	meter := meterProvider.Meter("inkwell")

	retrievalDuration, err := meter.Float64Histogram(
		"inkwell_retrieval_stage_duration_seconds",
		metric.WithDescription("Retrieval stage duration in seconds, by stage"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retrieval duration histogram: %w", err)
	}

	retrievals, err := meter.Int64Counter(
		"inkwell_retrievals_total",
		metric.WithDescription("Total retrieval requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retrievals counter: %w", err)
	}

	retrievalErrors, err := meter.Int64Counter(
		"inkwell_retrieval_errors_total",
		metric.WithDescription("Total retrieval errors, by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retrieval errors counter: %w", err)
	}

	cacheEvents, err := meter.Int64Counter(
		"inkwell_query_cache_events_total",
		metric.WithDescription("Query cache events: hit, miss, eviction, invalidation"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache events counter: %w", err)
	}

	documentsProcessed, err := meter.Int64Counter(
		"inkwell_documents_processed_total",
		metric.WithDescription("Total documents ingested"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create documents processed counter: %w", err)
	}

	documentsDeleted, err := meter.Int64Counter(
		"inkwell_documents_deleted_total",
		metric.WithDescription("Total documents deleted"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create documents deleted counter: %w", err)
	}

	ingestDuration, err := meter.Float64Histogram(
		"inkwell_ingest_duration_seconds",
		metric.WithDescription("Document processing duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest duration histogram: %w", err)
	}

	embedDuration, err := meter.Float64Histogram(
		"inkwell_embed_duration_seconds",
		metric.WithDescription("Embedding request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embed duration histogram: %w", err)
	}

	llmDuration, err := meter.Float64Histogram(
		"inkwell_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}

	llmInputTokens, err := meter.Int64Counter(
		"inkwell_llm_tokens_input_total",
		metric.WithDescription("Total input tokens sent to the LLM"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm input tokens counter: %w", err)
	}

	llmOutputTokens, err := meter.Int64Counter(
		"inkwell_llm_tokens_output_total",
		metric.WithDescription("Total output tokens from the LLM"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm output tokens counter: %w", err)
	}

	return &Metrics{
		retrievalDuration:  retrievalDuration,
		retrievalsTotal:    retrievals,
		retrievalErrors:    retrievalErrors,
		cacheEvents:        cacheEvents,
		documentsProcessed: documentsProcessed,
		documentsDeleted:   documentsDeleted,
		ingestDuration:     ingestDuration,
		embedDuration:      embedDuration,
		llmDuration:        llmDuration,
		llmInputTokens:     llmInputTokens,
		llmOutputTokens:    llmOutputTokens,
	}, nil
}
