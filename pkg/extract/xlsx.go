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

	"github.com/xuri/excelize/v2"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
)

// XlsxExtractor extracts cell text from Excel workbooks sheet by sheet.
type XlsxExtractor struct{}

var _ Extractor = (*XlsxExtractor)(nil)

// maxCellsPerSheet bounds output for very large workbooks.
const maxCellsPerSheet = 1000

func (e *XlsxExtractor) Validate(data []byte) error {
	if len(data) == 0 {
		return apperr.New(apperr.KindValidation, "empty upload")
	}
	if !bytes.HasPrefix(data, zipMagic) {
		return apperr.New(apperr.KindValidation, "not an XLSX file (missing ZIP header)")
	}
	return nil
}

func (e *XlsxExtractor) Extract(ctx context.Context, data []byte, filename string) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, "failed to parse XLSX", err)
	}
	defer f.Close()

	var contentParts []string
	for _, sheetName := range f.GetSheetList() {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		var sheetText strings.Builder
		sheetText.WriteString(fmt.Sprintf("--- Sheet: %s ---\n", sheetName))

		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}

		cellCount := 0
		for _, row := range rows {
			if cellCount >= maxCellsPerSheet {
				sheetText.WriteString("... (truncated)\n")
				break
			}
			var cells []string
			for _, cell := range row {
				if text := strings.TrimSpace(cell); text != "" {
					cells = append(cells, text)
					cellCount++
				}
			}
			if len(cells) > 0 {
				sheetText.WriteString(strings.Join(cells, " | "))
				sheetText.WriteString("\n")
			}
		}

		if cellCount > 0 {
			contentParts = append(contentParts, strings.TrimSpace(sheetText.String()))
		}
	}

	return strings.Join(contentParts, "\n\n"), nil
}

func (e *XlsxExtractor) Metadata(data []byte) (map[string]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "failed to parse XLSX", err)
	}
	defer f.Close()

	return map[string]string{
		"format": "xlsx",
		"sheets": fmt.Sprintf("%d", len(f.GetSheetList())),
	}, nil
}
