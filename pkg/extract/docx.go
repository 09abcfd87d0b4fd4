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

package extract

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
)

// DocxExtractor extracts paragraph and table text from Word documents.
type DocxExtractor struct{}

var _ Extractor = (*DocxExtractor)(nil)

var zipMagic = []byte("PK\x03\x04")

func (e *DocxExtractor) Validate(data []byte) error {
	if len(data) == 0 {
		return apperr.New(apperr.KindValidation, "empty upload")
	}
	if !bytes.HasPrefix(data, zipMagic) {
		return apperr.New(apperr.KindValidation, "not a DOCX file (missing ZIP header)")
	}
	return nil
}

func (e *DocxExtractor) Extract(ctx context.Context, data []byte, filename string) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, "failed to parse DOCX", err)
	}
	defer doc.Close()

	// GetContent returns the raw document XML. Paragraphs and table
	// cells appear in reading order, so flattening tags preserves it.
	return wordXMLToText(doc.Editable().GetContent()), nil
}

func (e *DocxExtractor) Metadata(data []byte) (map[string]string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "failed to parse DOCX", err)
	}
	defer doc.Close()

	text := wordXMLToText(doc.Editable().GetContent())
	paragraphs := 0
	for _, p := range strings.Split(text, "\n") {
		if strings.TrimSpace(p) != "" {
			paragraphs++
		}
	}
	return map[string]string{
		"format":     "docx",
		"paragraphs": fmt.Sprintf("%d", paragraphs),
	}, nil
}

var (
	paragraphEndPattern = regexp.MustCompile(`</w:p>|</w:tr>`)
	xmlTagPattern       = regexp.MustCompile(`<[^>]+>`)
	xmlEntityReplacer   = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
	)
)

// wordXMLToText flattens WordprocessingML to plain text, one line per
// paragraph or table row.
func wordXMLToText(xml string) string {
	text := paragraphEndPattern.ReplaceAllString(xml, "\n")
	text = xmlTagPattern.ReplaceAllString(text, "")
	text = xmlEntityReplacer.Replace(text)

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n")
}
