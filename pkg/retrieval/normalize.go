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

package retrieval

import "strings"

// abbreviations maps common grant-writing shorthand to its expansion.
// The expansion is appended after the abbreviation so both forms hit
// the indexes.
var abbreviations = map[string]string{
	"rfp": "Request for Proposal",
	"loi": "Letter of Intent",
	"fte": "Full-Time Equivalent",
	"kpi": "Key Performance Indicator",
	"roi": "Return on Investment",
	"mou": "Memorandum of Understanding",
}

// NormalizeQuery strips characters outside [A-Za-z0-9 -'], collapses
// whitespace, and appends abbreviation expansions alongside the
// original tokens. Returns "" when nothing survives.
func NormalizeQuery(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	for _, r := range query {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '\'':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	tokens := strings.Fields(b.String())
	if len(tokens) == 0 {
		return ""
	}

	out := make([]string, 0, len(tokens)+2)
	for _, token := range tokens {
		out = append(out, token)
		if expansion, ok := abbreviations[strings.ToLower(token)]; ok {
			out = append(out, expansion)
		}
	}
	return strings.Join(out, " ")
}
