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

// Package vector wraps the external approximate-nearest-neighbor
// store behind a typed adapter with a neutral filter algebra.
package vector

import "context"

// Point is one chunk vector plus its payload, keyed by chunk id.
type Point struct {
	// ChunkID is the logical id ("<doc_id>:chunk:<index>"). Adapters
	// may map it to a backend-specific point id.
	ChunkID string
	Vector  []float32
	Payload map[string]any
}

// Result is one scored point from a search.
type Result struct {
	ChunkID string
	Text    string
	Score   float32
	Payload map[string]any
}

// Index is the vector store contract.
type Index interface {
	// EnsureCollection creates the collection if missing.
	EnsureCollection(ctx context.Context, dim int) error
	// Upsert writes points. Points with nil vectors are rejected.
	Upsert(ctx context.Context, points []Point) error
	// Search returns up to k scored points matching the filter,
	// ordered by similarity desc.
	Search(ctx context.Context, vector []float32, k int, filter *Filter) ([]Result, error)
	// SetPayloadByDocID merges fields into the payload of every chunk
	// of a document. A nil field value removes the key.
	SetPayloadByDocID(ctx context.Context, docID string, fields map[string]any) error
	// DeleteByDocID removes all chunks of a document.
	DeleteByDocID(ctx context.Context, docID string) error
	// Scroll streams every payload in the collection in batches.
	Scroll(ctx context.Context, batchSize int, fn func(Result) error) error
	// Health pings the backend.
	Health(ctx context.Context) error
	// Close releases the connection.
	Close() error
}

// Op is a filter condition operator.
type Op int

const (
	OpEquals Op = iota
	OpIn
	OpNotIn
	OpBetween
)

// Condition is one field predicate.
type Condition struct {
	Field  string
	Op     Op
	Value  any   // OpEquals
	Values []any // OpIn, OpNotIn
	// OpBetween bounds; nil means unbounded on that side.
	Min *float64
	Max *float64
}

// Filter is a conjunction of conditions. A nil or empty filter
// matches everything.
type Filter struct {
	Must []Condition
}

// Eq builds a field-equals-value condition.
func Eq(field string, value any) Condition {
	return Condition{Field: field, Op: OpEquals, Value: value}
}

// In builds a field-in-set condition.
func In(field string, values ...any) Condition {
	return Condition{Field: field, Op: OpIn, Values: values}
}

// NotIn builds a field-not-in-set condition.
func NotIn(field string, values ...any) Condition {
	return Condition{Field: field, Op: OpNotIn, Values: values}
}

// Between builds a numeric range condition; nil bounds are open.
func Between(field string, min, max *float64) Condition {
	return Condition{Field: field, Op: OpBetween, Min: min, Max: max}
}

// And combines conditions into a filter, dropping zero-value ones.
func And(conditions ...Condition) *Filter {
	f := &Filter{}
	for _, c := range conditions {
		if c.Field == "" {
			continue
		}
		f.Must = append(f.Must, c)
	}
	if len(f.Must) == 0 {
		return nil
	}
	return f
}

// Matches evaluates the filter against a payload. Used by the
// in-memory provider and the keyword index; external backends
// translate the algebra to their own filter language instead.
func (f *Filter) Matches(payload map[string]any) bool {
	if f == nil {
		return true
	}
	for _, c := range f.Must {
		if !c.matches(payload) {
			return false
		}
	}
	return true
}

func (c Condition) matches(payload map[string]any) bool {
	value, ok := payload[c.Field]

	switch c.Op {
	case OpEquals:
		return ok && valueEquals(value, c.Value)
	case OpIn:
		if !ok {
			return false
		}
		for _, want := range c.Values {
			if valueEquals(value, want) {
				return true
			}
		}
		return false
	case OpNotIn:
		if !ok {
			return true
		}
		for _, want := range c.Values {
			if valueEquals(value, want) {
				return false
			}
		}
		return true
	case OpBetween:
		num, isNum := toFloat(value)
		if !ok || !isNum {
			return false
		}
		if c.Min != nil && num < *c.Min {
			return false
		}
		if c.Max != nil && num > *c.Max {
			return false
		}
		return true
	default:
		return false
	}
}

// valueEquals compares a payload value against a filter value.
// Payload sets (slices) match when any element equals the filter
// value, so programs=["Education"] matches Eq("programs","Education").
func valueEquals(payloadValue, filterValue any) bool {
	if list, ok := payloadValue.([]any); ok {
		for _, item := range list {
			if scalarEquals(item, filterValue) {
				return true
			}
		}
		return false
	}
	if list, ok := payloadValue.([]string); ok {
		for _, item := range list {
			if scalarEquals(item, filterValue) {
				return true
			}
		}
		return false
	}
	return scalarEquals(payloadValue, filterValue)
}

func scalarEquals(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Float64 returns a pointer, for Between bounds.
func Float64(v float64) *float64 {
	return &v
}
