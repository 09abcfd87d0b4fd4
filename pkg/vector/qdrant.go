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

package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
)

// QdrantConfig configures the Qdrant adapter.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// QdrantIndex implements Index over a Qdrant server via gRPC.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
}

var _ Index = (*QdrantIndex)(nil)

// NewQdrantIndex creates the adapter and its gRPC client.
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client for %s:%d: %w\n"+
			"  TIP: Troubleshooting:\n"+
			"     - Ensure Qdrant is running\n"+
			"     - Verify host and port configuration\n"+
			"     - For Docker: start Qdrant container (docker run -p 6333:6333 -p 6334:6334 qdrant/qdrant)",
			cfg.Host, cfg.Port, err)
	}

	return &QdrantIndex{client: client, collection: cfg.Collection}, nil
}

func (q *QdrantIndex) EnsureCollection(ctx context.Context, dim int) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to check collection", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return apperr.Wrap(apperr.KindUnavailable, "failed to create collection", err)
	}
	return nil
}

// pointID derives a stable Qdrant UUID from a chunk id. Qdrant point
// ids must be UUIDs or integers; the logical id stays in the payload.
func pointID(chunkID string) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String())
}

func (q *QdrantIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		if len(p.Vector) == 0 {
			return apperr.Newf(apperr.KindValidation, "chunk %s has no vector", p.ChunkID)
		}

		payload := make(map[string]*qdrant.Value, len(p.Payload)+1)
		for key, value := range p.Payload {
			val, err := qdrant.NewValue(value)
			if err != nil {
				return apperr.Wrap(apperr.KindInternal,
					fmt.Sprintf("failed to convert payload value for key %s", key), err)
			}
			payload[key] = val
		}
		chunkIDVal, err := qdrant.NewValue(p.ChunkID)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "failed to convert chunk id", err)
		}
		payload["chunk_id"] = chunkIDVal

		qdrantPoints = append(qdrantPoints, &qdrant.PointStruct{
			Id:      pointID(p.ChunkID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         qdrantPoints,
	})
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to upsert points", err)
	}
	return nil
}

func (q *QdrantIndex) Search(ctx context.Context, vector []float32, k int, filter *Filter) ([]Result, error) {
	searchRequest := &qdrant.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if qf := buildQdrantFilter(filter); qf != nil {
		searchRequest.Filter = qf
	}

	searchResult, err := q.client.GetPointsClient().Search(ctx, searchRequest)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to search points", err)
	}

	results := make([]Result, 0, len(searchResult.Result))
	for _, point := range searchResult.Result {
		payload := convertPayload(point.Payload)
		results = append(results, Result{
			ChunkID: stringField(payload, "chunk_id"),
			Text:    stringField(payload, "text"),
			Score:   point.Score,
			Payload: payload,
		})
	}
	return results, nil
}

func (q *QdrantIndex) SetPayloadByDocID(ctx context.Context, docID string, fields map[string]any) error {
	selector := &qdrant.PointsSelector{
		PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
			Filter: buildQdrantFilter(And(Eq("doc_id", docID))),
		},
	}

	payload := make(map[string]*qdrant.Value, len(fields))
	var removed []string
	for key, value := range fields {
		if value == nil {
			removed = append(removed, key)
			continue
		}
		val, err := qdrant.NewValue(value)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal,
				fmt.Sprintf("failed to convert payload value for key %s", key), err)
		}
		payload[key] = val
	}

	if len(payload) > 0 {
		_, err := q.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
			CollectionName: q.collection,
			Payload:        payload,
			PointsSelector: selector,
		})
		if err != nil {
			return apperr.Wrap(apperr.KindUnavailable,
				fmt.Sprintf("failed to update payload of document %s", docID), err)
		}
	}
	if len(removed) > 0 {
		_, err := q.client.DeletePayload(ctx, &qdrant.DeletePayloadPoints{
			CollectionName: q.collection,
			Keys:           removed,
			PointsSelector: selector,
		})
		if err != nil {
			return apperr.Wrap(apperr.KindUnavailable,
				fmt.Sprintf("failed to drop payload keys of document %s", docID), err)
		}
	}
	return nil
}

func (q *QdrantIndex) DeleteByDocID(ctx context.Context, docID string) error {
	filter := buildQdrantFilter(And(Eq("doc_id", docID)))

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
		},
	})
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable,
			fmt.Sprintf("failed to delete chunks of document %s", docID), err)
	}
	return nil
}

func (q *QdrantIndex) Scroll(ctx context.Context, batchSize int, fn func(Result) error) error {
	if batchSize <= 0 {
		batchSize = 256
	}

	var offset *qdrant.PointId
	for {
		resp, err := q.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: q.collection,
			Limit:          qdrant.PtrOf(uint32(batchSize)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return apperr.Wrap(apperr.KindUnavailable, "failed to scroll points", err)
		}

		for _, point := range resp.Result {
			payload := convertPayload(point.Payload)
			result := Result{
				ChunkID: stringField(payload, "chunk_id"),
				Text:    stringField(payload, "text"),
				Payload: payload,
			}
			if err := fn(result); err != nil {
				return err
			}
		}

		if resp.NextPageOffset == nil || len(resp.Result) == 0 {
			return nil
		}
		offset = resp.NextPageOffset
	}
}

func (q *QdrantIndex) Health(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "qdrant health check failed", err)
	}
	return nil
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// buildQdrantFilter translates the neutral algebra to Qdrant's filter
// language. Returns nil for an empty filter.
func buildQdrantFilter(filter *Filter) *qdrant.Filter {
	if filter == nil || len(filter.Must) == 0 {
		return nil
	}

	out := &qdrant.Filter{}
	for _, c := range filter.Must {
		switch c.Op {
		case OpEquals:
			if cond := matchCondition(c.Field, c.Value); cond != nil {
				out.Must = append(out.Must, cond)
			}
		case OpIn:
			if cond := matchAnyCondition(c.Field, c.Values); cond != nil {
				out.Must = append(out.Must, cond)
			}
		case OpNotIn:
			if cond := matchAnyCondition(c.Field, c.Values); cond != nil {
				out.MustNot = append(out.MustNot, cond)
			}
		case OpBetween:
			rng := &qdrant.Range{}
			if c.Min != nil {
				rng.Gte = c.Min
			}
			if c.Max != nil {
				rng.Lte = c.Max
			}
			out.Must = append(out.Must, &qdrant.Condition{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{Key: c.Field, Range: rng},
				},
			})
		}
	}
	if len(out.Must) == 0 && len(out.MustNot) == 0 {
		return nil
	}
	return out
}

func matchCondition(field string, value any) *qdrant.Condition {
	var match *qdrant.Match
	switch v := value.(type) {
	case string:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}}
	case bool:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}}
	case int:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}
	case int64:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: v}}
	default:
		return nil
	}
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{Key: field, Match: match},
		},
	}
}

func matchAnyCondition(field string, values []any) *qdrant.Condition {
	var keywords []string
	var integers []int64
	for _, v := range values {
		switch val := v.(type) {
		case string:
			keywords = append(keywords, val)
		case int:
			integers = append(integers, int64(val))
		case int64:
			integers = append(integers, val)
		}
	}

	var match *qdrant.Match
	switch {
	case len(keywords) > 0:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Keywords{
			Keywords: &qdrant.RepeatedStrings{Strings: keywords},
		}}
	case len(integers) > 0:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Integers{
			Integers: &qdrant.RepeatedIntegers{Integers: integers},
		}}
	default:
		return nil
	}
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{Key: field, Match: match},
		},
	}
}

// convertPayload maps Qdrant values back to plain Go values.
func convertPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		out[key] = convertValue(value)
	}
	return out
}

func convertValue(value *qdrant.Value) any {
	switch v := value.Kind.(type) {
	case *qdrant.Value_StringValue:
		return v.StringValue
	case *qdrant.Value_IntegerValue:
		return v.IntegerValue
	case *qdrant.Value_DoubleValue:
		return v.DoubleValue
	case *qdrant.Value_BoolValue:
		return v.BoolValue
	case *qdrant.Value_ListValue:
		if v.ListValue == nil {
			return nil
		}
		list := make([]any, len(v.ListValue.Values))
		for i, item := range v.ListValue.Values {
			list[i] = convertValue(item)
		}
		return list
	default:
		return value
	}
}

func stringField(payload map[string]any, key string) string {
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}
