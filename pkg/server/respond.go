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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
)

// errorBody is the wire shape of every error response. No stack traces
// leave the process.
type errorBody struct {
	Error struct {
		Kind    string         `json:"kind"`
		Message string         `json:"message"`
		Fields  map[string]any `json:"fields,omitempty"`
		Action  string         `json:"action,omitempty"`
	} `json:"error"`
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUnavailable, apperr.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			slog.Error("Failed to encode response", "error", err)
		}
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)

	var body errorBody
	body.Error.Kind = string(kind)
	body.Error.Fields = apperr.FieldsOf(err)

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		body.Error.Message = appErr.Message
		body.Error.Action = appErr.Action
	} else {
		body.Error.Message = err.Error()
	}
	if kind == apperr.KindInternal {
		// Internal details stay in the log.
		slog.Error("Internal error", "error", err)
		body.Error.Message = "internal error"
		body.Error.Fields = nil
	}

	writeJSON(w, statusOf(kind), body)
}

// decodeJSON decodes a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Wrap(apperr.KindValidation, "malformed request body", err)
	}
	return nil
}

// principal identifies the caller. Authentication happens upstream;
// the proxy forwards the identity in a header.
func principal(r *http.Request) string {
	if p := r.Header.Get("X-Principal"); p != "" {
		return p
	}
	return "anonymous"
}
