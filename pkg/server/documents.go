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
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
	"github.com/inkwell-ai/inkwell/pkg/docmeta"
	"github.com/inkwell-ai/inkwell/pkg/ingest"
	"github.com/inkwell-ai/inkwell/pkg/store"
)

// maxUploadMemory bounds the in-memory part of multipart parsing;
// larger files spill to disk.
const maxUploadMemory = 16 << 20

// handleUploadDocument ingests one uploaded file. Metadata arrives as
// multipart form fields alongside the file.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, "malformed multipart upload", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "missing file part").
			WithField("field", "file"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindInternal, "failed to read upload", err))
		return
	}

	year := 0
	if v := r.FormValue("year"); v != "" {
		year, err = strconv.Atoi(v)
		if err != nil {
			writeError(w, apperr.Validation("year", "year must be an integer"))
			return
		}
	}

	req := ingest.Request{
		Data:     data,
		Filename: header.Filename,
		User: docmeta.UserInput{
			DocType:  r.FormValue("doc_type"),
			Year:     year,
			Programs: splitList(r.FormValue("programs")),
			Tags:     splitList(r.FormValue("tags")),
			Outcome:  r.FormValue("outcome"),
			Funder:   r.FormValue("funder"),
		},
		IsSensitive: r.FormValue("is_sensitive") == "true",
		Principal:   principal(r),
	}
	if r.FormValue("sensitivity_confirmed") == "true" {
		req.SensitivityConfirmedAt = time.Now().UTC()
	}

	result, err := s.deps.Processor.Process(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"document": result.Document,
		"warnings": result.Warnings,
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.DocumentFilter{
		DocType: q.Get("doc_type"),
		Program: q.Get("program"),
	}
	if v := q.Get("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, apperr.Validation("year", "year must be an integer"))
			return
		}
		filter.Year = year
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	docs, err := s.deps.Store.ListDocuments(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deps.Store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var update store.DocumentUpdate
	if err := decodeJSON(r, &update); err != nil {
		writeError(w, err)
		return
	}

	doc, err := s.deps.Processor.Update(r.Context(), chi.URLParam(r, "id"), update, principal(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Processor.Delete(r.Context(), chi.URLParam(r, "id"), principal(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
