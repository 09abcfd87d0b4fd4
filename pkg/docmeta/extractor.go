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

package docmeta

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// UserInput is the caller-supplied portion of document metadata.
// Zero values mean "not provided".
type UserInput struct {
	DocType  string
	Year     int
	Programs []string
	Tags     []string
	Outcome  string
	Funder   string
}

// Extract merges the four metadata sources with explicit precedence,
// highest first: user-supplied, filename-parsed, format-reported,
// derived-structural. It returns the canonical record and a list of
// non-blocking warnings.
func Extract(user UserInput, filename, text string, fileSize int64, format map[string]string) (Record, []string) {
	var warnings []string

	// Derived-structural (lowest precedence).
	rec := Record{
		Filename:  filename,
		DocType:   TypeOther,
		WordCount: len(strings.Fields(text)),
		CharCount: utf8.RuneCountInString(text),
		Format:    format,
	}

	// Filename-parsed.
	hints := parseFilename(filename)
	if hints.docType != "" {
		rec.DocType = hints.docType
	}
	if hints.year != 0 {
		rec.Year = hints.year
	}
	if hints.funder != "" {
		rec.Funder = hints.funder
	}
	if hints.outcome != "" {
		rec.Outcome = hints.outcome
	}

	// User-supplied (highest precedence).
	if user.DocType != "" {
		docType, ok := ParseDocType(user.DocType)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("unrecognized doc_type %q, stored as %q", user.DocType, TypeOther))
		}
		rec.DocType = docType
	}
	if user.Year != 0 {
		rec.Year = user.Year
	}
	if len(user.Programs) > 0 {
		rec.Programs = append([]string(nil), user.Programs...)
	}
	if len(user.Tags) > 0 {
		rec.Tags = append([]string(nil), user.Tags...)
	}
	if user.Funder != "" {
		rec.Funder = user.Funder
	}
	// A filename outcome token only applies when the user left
	// outcome empty.
	if user.Outcome != "" {
		outcome, ok := ParseOutcome(user.Outcome)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("unrecognized outcome %q, ignored", user.Outcome))
			outcome = hints.outcome
		}
		rec.Outcome = outcome
	}

	warnings = append(warnings, validate(rec, fileSize)...)
	return rec, warnings
}

// validate returns advisory warnings; none of them block ingestion.
func validate(rec Record, fileSize int64) []string {
	var warnings []string
	if rec.WordCount < 10 {
		warnings = append(warnings, fmt.Sprintf("document has only %d words", rec.WordCount))
	}
	if fileSize > 0 && fileSize < 1024 {
		warnings = append(warnings, fmt.Sprintf("file is only %d bytes", fileSize))
	}
	if rec.Year != 0 && !YearInRange(rec.Year) {
		warnings = append(warnings, fmt.Sprintf("year %d outside expected range [%d, %d]", rec.Year, MinYear, MaxYear()))
	}
	return warnings
}

type filenameHints struct {
	docType DocType
	year    int
	funder  string
	outcome Outcome
}

var yearTokenPattern = regexp.MustCompile(`^(19|20)\d{2}$`)

// parseFilename recognizes two naming conventions:
//
//	TYPE_YEAR_FUNDER[_OUTCOME]   e.g. proposal_2023_FordFoundation_funded.pdf
//	SOMETHING YEAR               e.g. Annual Report 2022.docx
func parseFilename(filename string) filenameHints {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	var hints filenameHints

	if strings.Contains(base, "_") {
		tokens := strings.Split(base, "_")

		yearIdx := -1
		for i, tok := range tokens {
			if yearTokenPattern.MatchString(tok) {
				yearIdx = i
				break
			}
		}
		if yearIdx == -1 {
			return hints
		}
		hints.year, _ = strconv.Atoi(tokens[yearIdx])

		if yearIdx > 0 {
			if docType, ok := ParseDocType(strings.Join(tokens[:yearIdx], "_")); ok {
				hints.docType = docType
			}
		}

		rest := tokens[yearIdx+1:]
		if len(rest) > 0 {
			if outcome, ok := ParseOutcome(rest[len(rest)-1]); ok {
				hints.outcome = outcome
				rest = rest[:len(rest)-1]
			}
		}
		if len(rest) > 0 {
			hints.funder = strings.Join(rest, " ")
		}
		return hints
	}

	// SOMETHING YEAR: a trailing standalone year token.
	fields := strings.Fields(base)
	if len(fields) >= 2 {
		last := fields[len(fields)-1]
		if yearTokenPattern.MatchString(last) {
			hints.year, _ = strconv.Atoi(last)
			if docType, ok := ParseDocType(strings.Join(fields[:len(fields)-1], " ")); ok {
				hints.docType = docType
			}
		}
	}
	return hints
}
