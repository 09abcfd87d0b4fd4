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

// Package retrieval fuses dense and sparse search into one ranked
// candidate list: normalize, search both indexes in parallel, min-max
// normalize, fuse, decay by age, diversify, truncate, optionally
// rerank.
package retrieval

import (
	"github.com/inkwell-ai/inkwell/pkg/vector"
)

// Candidate is one ranked retrieval result. Metadata carries the
// debug sub-scores (_vector_score, _keyword_score, _original_score,
// _age_multiplier, _reranked).
type Candidate struct {
	ChunkID    string         `json:"chunk_id"`
	DocID      string         `json:"doc_id"`
	ChunkIndex int            `json:"chunk_index"`
	Text       string         `json:"text"`
	Score      float64        `json:"score"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Filters narrows retrieval to matching chunks. Zero-value fields are
// ignored.
type Filters struct {
	DocTypes []string `json:"doc_types,omitempty"`
	Programs []string `json:"programs,omitempty"`
	Outcomes []string `json:"outcomes,omitempty"`
	DocIDs   []string `json:"doc_ids,omitempty"`
	YearMin  int      `json:"year_min,omitempty"`
	YearMax  int      `json:"year_max,omitempty"`
}

// IsZero reports whether no filter field is set.
func (f Filters) IsZero() bool {
	return len(f.DocTypes) == 0 && len(f.Programs) == 0 && len(f.Outcomes) == 0 &&
		len(f.DocIDs) == 0 && f.YearMin == 0 && f.YearMax == 0
}

// toVector translates to the index filter algebra.
func (f Filters) toVector() *vector.Filter {
	var conditions []vector.Condition
	if len(f.DocTypes) > 0 {
		conditions = append(conditions, vector.In("doc_type", toAny(f.DocTypes)...))
	}
	if len(f.Programs) > 0 {
		conditions = append(conditions, vector.In("programs", toAny(f.Programs)...))
	}
	if len(f.Outcomes) > 0 {
		conditions = append(conditions, vector.In("outcome", toAny(f.Outcomes)...))
	}
	if len(f.DocIDs) > 0 {
		conditions = append(conditions, vector.In("doc_id", toAny(f.DocIDs)...))
	}
	if f.YearMin != 0 || f.YearMax != 0 {
		var min, max *float64
		if f.YearMin != 0 {
			min = vector.Float64(float64(f.YearMin))
		}
		if f.YearMax != 0 {
			max = vector.Float64(float64(f.YearMax))
		}
		conditions = append(conditions, vector.Between("year", min, max))
	}
	return vector.And(conditions...)
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// Request is one retrieval call. TopK and RecencyWeight fall back to
// the configured defaults when unset (RecencyWeight nil).
type Request struct {
	Query         string   `json:"query"`
	TopK          int      `json:"top_k,omitempty"`
	Filters       Filters  `json:"filters,omitempty"`
	RecencyWeight *float64 `json:"recency_weight,omitempty"`
}
