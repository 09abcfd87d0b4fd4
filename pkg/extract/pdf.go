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
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
)

// PDFExtractor extracts text from PDF files page by page.
type PDFExtractor struct{}

var _ Extractor = (*PDFExtractor)(nil)

var pdfMagic = []byte("%PDF-")

func (e *PDFExtractor) Validate(data []byte) error {
	if len(data) == 0 {
		return apperr.New(apperr.KindValidation, "empty upload")
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return apperr.New(apperr.KindValidation, "not a PDF file (missing %PDF header)")
	}
	return nil
}

func (e *PDFExtractor) Extract(ctx context.Context, data []byte, filename string) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, "failed to parse PDF", err)
	}

	var contentParts []string
	totalPages := reader.NumPage()

	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single broken page does not fail the document.
			contentParts = append(contentParts, fmt.Sprintf("--- Page %d (extraction failed: %v) ---", pageNum, err))
			continue
		}

		if strings.TrimSpace(text) != "" {
			contentParts = append(contentParts, fmt.Sprintf("--- Page %d ---\n%s", pageNum, text))
		}
	}

	return strings.Join(contentParts, "\n\n"), nil
}

func (e *PDFExtractor) Metadata(data []byte) (map[string]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "failed to parse PDF", err)
	}
	return map[string]string{
		"format": "pdf",
		"pages":  fmt.Sprintf("%d", reader.NumPage()),
	}, nil
}
