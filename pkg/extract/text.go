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
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
)

// TextExtractor handles plain text and markdown. Encoding detection
// is UTF-8 first, Latin-1 fallback.
type TextExtractor struct{}

var _ Extractor = (*TextExtractor)(nil)

func (e *TextExtractor) Validate(data []byte) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return apperr.New(apperr.KindValidation, "empty upload")
	}
	return nil
}

func (e *TextExtractor) Extract(ctx context.Context, data []byte, filename string) (string, error) {
	text := decodeText(data)
	if strings.TrimSpace(text) == "" {
		return "", apperr.New(apperr.KindValidation, "file contains no text")
	}
	return text, nil
}

func (e *TextExtractor) Metadata(data []byte) (map[string]string, error) {
	text := decodeText(data)
	return map[string]string{
		"format": "text",
		"lines":  fmt.Sprintf("%d", strings.Count(text, "\n")+1),
	}, nil
}

// decodeText interprets bytes as UTF-8 when valid, Latin-1 otherwise.
// Latin-1 maps every byte to the same-numbered code point, so the
// fallback cannot fail.
func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}
