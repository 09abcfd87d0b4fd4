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

// Package apperr defines the error taxonomy shared across the service.
//
// Components return their own kinds; orchestrators translate to the
// surface taxonomy at the boundary. Kinds are a closed set.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and surfacing decisions.
type Kind string

const (
	// KindValidation is malformed input at the boundary. Never retried.
	KindValidation Kind = "validation"
	// KindNotFound is a lookup of a known id that returned nothing.
	KindNotFound Kind = "not_found"
	// KindConflict is a uniqueness or state-machine violation.
	KindConflict Kind = "conflict"
	// KindUnavailable is a dependency that is down. Retries at this
	// layer will not help.
	KindUnavailable Kind = "unavailable"
	// KindTransient is a timeout, rate limit, or temporary provider
	// error. The caller may retry.
	KindTransient Kind = "transient"
	// KindInternal is an invariant violation, surfaced as opaque.
	KindInternal Kind = "internal"
)

// Error is the structured error carried across component boundaries.
type Error struct {
	Kind    Kind           // classification
	Message string         // human-readable message
	Fields  map[string]any // structured context (e.g. invalid_programs)
	Action  string         // actionable hint for the caller
	Err     error          // wrapped cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches by kind so errors.Is works across wrapped chains.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithField attaches a structured field. Returns the error for chaining.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// WithAction attaches an actionable hint for the caller.
func (e *Error) WithAction(action string) *Error {
	e.Action = action
	return e
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err under the given kind. Returns nil for a nil cause.
func Wrap(kind Kind, message string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation creates a validation error for the named field.
func Validation(field, message string) *Error {
	return New(KindValidation, message).WithField("field", field)
}

// NotFound creates a not-found error for the given entity and id.
func NotFound(entity, id string) *Error {
	return Newf(KindNotFound, "%s %q not found", entity, id).
		WithField("entity", entity).
		WithField("id", id)
}

// KindOf returns the kind of err, or KindInternal when err carries no
// taxonomy information.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether the caller may retry the operation.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// FieldsOf returns the structured fields of err, or nil.
func FieldsOf(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
