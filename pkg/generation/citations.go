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

package generation

import (
	"regexp"
	"sort"
	"strconv"
)

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// CitationReport is the advisory validation of the generated text's
// citations against the supplied sources. It never rewrites the text.
type CitationReport struct {
	// CitedSources are source numbers referenced in the text that
	// exist in the source list, sorted ascending.
	CitedSources []int `json:"cited_sources"`
	// UncitedSources are provided sources the text never referenced.
	UncitedSources []int `json:"uncited_sources"`
	// InvalidCitations are referenced numbers with no matching source.
	InvalidCitations []int `json:"invalid_citations"`
	// TotalCitations counts marker occurrences, repeats included.
	TotalCitations int `json:"total_citations"`
	// Valid is true iff InvalidCitations is empty.
	Valid bool `json:"valid"`
}

// ExtractCitations returns the sorted unique set of citation numbers
// found in text. Out-of-range numbers (including 0) are kept so the
// report can flag them as invalid.
func ExtractCitations(text string) []int {
	seen := make(map[int]bool)
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		seen[n] = true
	}
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// ValidateCitations compares the citations in text against a source
// list of the given length, where valid ids are 1..sourceCount.
func ValidateCitations(text string, sourceCount int) CitationReport {
	report := CitationReport{
		CitedSources:     []int{},
		UncitedSources:   []int{},
		InvalidCitations: []int{},
		TotalCitations:   len(citationPattern.FindAllString(text, -1)),
	}

	cited := make(map[int]bool)
	for _, n := range ExtractCitations(text) {
		cited[n] = true
		if n >= 1 && n <= sourceCount {
			report.CitedSources = append(report.CitedSources, n)
		} else {
			report.InvalidCitations = append(report.InvalidCitations, n)
		}
	}
	for i := 1; i <= sourceCount; i++ {
		if !cited[i] {
			report.UncitedSources = append(report.UncitedSources, i)
		}
	}

	report.Valid = len(report.InvalidCitations) == 0
	return report
}
