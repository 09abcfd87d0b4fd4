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

// Package docmeta builds the canonical document record from user
// input, filename hints, extractor-reported attributes, and derived
// structure counts.
package docmeta

import (
	"strings"
	"time"
)

// DocType is the closed document-type enumeration.
type DocType string

const (
	TypeGrantProposal      DocType = "grant_proposal"
	TypeAnnualReport       DocType = "annual_report"
	TypeProgramDescription DocType = "program_description"
	TypeImpactReport       DocType = "impact_report"
	TypeStrategicPlan      DocType = "strategic_plan"
	TypeOther              DocType = "other"
)

// DocTypes lists all valid document types.
func DocTypes() []DocType {
	return []DocType{
		TypeGrantProposal,
		TypeAnnualReport,
		TypeProgramDescription,
		TypeImpactReport,
		TypeStrategicPlan,
		TypeOther,
	}
}

// ParseDocType normalizes a free-form type string to the canonical
// set. Unrecognized values map to TypeOther with ok=false.
func ParseDocType(s string) (DocType, bool) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)

	switch normalized {
	case "grant_proposal", "grantproposal", "proposal", "grant":
		return TypeGrantProposal, true
	case "annual_report", "annualreport":
		return TypeAnnualReport, true
	case "program_description", "program":
		return TypeProgramDescription, true
	case "impact_report", "impact":
		return TypeImpactReport, true
	case "strategic_plan", "strategy", "strategicplan":
		return TypeStrategicPlan, true
	case "other":
		return TypeOther, true
	default:
		return TypeOther, false
	}
}

// Outcome is the closed grant-outcome enumeration. Empty means absent.
type Outcome string

const (
	OutcomeFunded      Outcome = "funded"
	OutcomeNotFunded   Outcome = "not_funded"
	OutcomePending     Outcome = "pending"
	OutcomeFinalReport Outcome = "final_report"
)

// Outcomes lists all valid outcomes.
func Outcomes() []Outcome {
	return []Outcome{OutcomeFunded, OutcomeNotFunded, OutcomePending, OutcomeFinalReport}
}

// ParseOutcome normalizes a free-form outcome token.
func ParseOutcome(s string) (Outcome, bool) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)

	switch normalized {
	case "funded", "awarded", "won":
		return OutcomeFunded, true
	case "not_funded", "notfunded", "declined", "rejected":
		return OutcomeNotFunded, true
	case "pending", "submitted":
		return OutcomePending, true
	case "final_report", "finalreport", "final":
		return OutcomeFinalReport, true
	default:
		return "", false
	}
}

// MinYear is the lower bound for document years.
const MinYear = 2000

// MaxYear is the inclusive upper bound: next calendar year.
func MaxYear() int {
	return time.Now().Year() + 1
}

// YearInRange reports whether year is within [MinYear, MaxYear].
func YearInRange(year int) bool {
	return year >= MinYear && year <= MaxYear()
}

// Record is the canonical document metadata produced by the merge.
type Record struct {
	Filename  string
	DocType   DocType
	Year      int // 0 when unknown
	Programs  []string
	Tags      []string
	Outcome   Outcome // empty when absent
	Funder    string
	WordCount int
	CharCount int
	// Format holds extractor-reported attributes (pages, sheets, ...).
	Format map[string]string
}
