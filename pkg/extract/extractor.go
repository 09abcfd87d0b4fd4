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

// Package extract turns uploaded bytes into plain text.
//
// One extractor per file format. Extractors are pure functions over
// bytes: no network, no mutation of inputs.
package extract

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
)

// Extractor converts one file format to plain text.
type Extractor interface {
	// Validate checks the bytes look like this format.
	Validate(data []byte) error
	// Extract returns the plain text content.
	Extract(ctx context.Context, data []byte, filename string) (string, error)
	// Metadata returns format-specific attributes (page counts etc).
	Metadata(data []byte) (map[string]string, error)
}

// Registry maps lowercase file extensions to extractors.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry creates a registry with the built-in extractors.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}
	r.Register(".pdf", &PDFExtractor{})
	r.Register(".docx", &DocxExtractor{})
	r.Register(".xlsx", &XlsxExtractor{})
	textExtractor := &TextExtractor{}
	r.Register(".txt", textExtractor)
	r.Register(".md", textExtractor)
	return r
}

// Register binds an extension (with leading dot) to an extractor.
func (r *Registry) Register(ext string, e Extractor) {
	r.extractors[strings.ToLower(ext)] = e
}

// Lookup returns the extractor for a filename. Unknown types fail
// fast before any I/O.
func (r *Registry) Lookup(filename string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	e, ok := r.extractors[ext]
	if !ok {
		return nil, apperr.Newf(apperr.KindValidation, "unsupported file type %q", ext).
			WithField("filename", filename).
			WithField("supported", r.SupportedExtensions()).
			WithAction("upload one of the supported file types")
	}
	return e, nil
}

// SupportedExtensions returns the registered extensions, sorted.
func (r *Registry) SupportedExtensions() []string {
	exts := make([]string, 0, len(r.extractors))
	for ext := range r.extractors {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
