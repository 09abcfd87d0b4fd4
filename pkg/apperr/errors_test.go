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

package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := New(KindValidation, "query must not be empty")
	assert.Equal(t, `[validation] query must not be empty`, err.Error())

	wrapped := Wrap(KindUnavailable, "qdrant upsert failed", errors.New("connection refused"))
	assert.Equal(t, `[unavailable] qdrant upsert failed: connection refused`, wrapped.Error())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"direct", New(KindConflict, "duplicate content hash"), KindConflict},
		{"wrapped with fmt", fmt.Errorf("processing: %w", New(KindTransient, "rate limited")), KindTransient},
		{"plain error", errors.New("boom"), KindInternal},
		{"deeply wrapped", fmt.Errorf("a: %w", fmt.Errorf("b: %w", NotFound("document", "d1"))), KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(KindUnavailable, "vector store down"))
	assert.True(t, errors.Is(err, &Error{Kind: KindUnavailable}))
	assert.False(t, errors.Is(err, &Error{Kind: KindTransient}))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindInternal, "write failed", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestWrapNilCause(t *testing.T) {
	err := Wrap(KindInternal, "nothing happened", nil)
	assert.Nil(t, err)
}

func TestFields(t *testing.T) {
	err := New(KindValidation, "unknown programs").
		WithField("invalid_programs", []string{"Arts"}).
		WithAction("create the program first or fix the name")

	require.NotNil(t, err.Fields)
	assert.Equal(t, []string{"Arts"}, err.Fields["invalid_programs"])
	assert.Equal(t, "create the program first or fix the name", err.Action)

	wrapped := fmt.Errorf("ingest: %w", err)
	fields := FieldsOf(wrapped)
	require.NotNil(t, fields)
	assert.Equal(t, []string{"Arts"}, fields["invalid_programs"])

	assert.Nil(t, FieldsOf(errors.New("plain")))
}

func TestNotFoundHelper(t *testing.T) {
	err := NotFound("document", "abc-123")
	assert.Equal(t, KindNotFound, err.Kind)
	assert.Contains(t, err.Error(), `document "abc-123" not found`)
	assert.Equal(t, "document", err.Fields["entity"])
	assert.Equal(t, "abc-123", err.Fields["id"])
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(KindTransient, "timeout")))
	assert.False(t, IsRetryable(New(KindUnavailable, "down")))
	assert.False(t, IsRetryable(errors.New("plain")))
}
