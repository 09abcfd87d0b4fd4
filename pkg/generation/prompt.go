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
	"fmt"
	"strings"

	"github.com/inkwell-ai/inkwell/pkg/retrieval"
)

// audienceGuidance maps audience names to writing direction for the
// system prompt. Unknown audiences get generic guidance.
var audienceGuidance = map[string]string{
	"funder": "Write for a grant program officer reviewing many applications. " +
		"Lead with impact, tie every claim to evidence, and mirror the funder's own terminology.",
	"board": "Write for a nonprofit board. Emphasize strategy, financial stewardship, " +
		"and organizational outcomes over operational detail.",
	"community": "Write for community members and partners. Use plain language, " +
		"avoid jargon, and center the people served.",
	"technical": "Write for a technical reviewer. Be precise about methodology, " +
		"data sources, and measurable outcomes.",
}

// sectionGuidance maps proposal sections to structural requirements.
var sectionGuidance = map[string]string{
	"needs_statement": "Structure: the problem, who it affects, supporting data, " +
		"and why this organization is positioned to address it.",
	"project_narrative": "Structure: goals, activities, timeline, and staffing. " +
		"Connect each activity to a stated goal.",
	"budget_justification": "Structure: walk through cost categories and justify " +
		"each against project activities. Flag any cost-share or matching funds.",
	"evaluation_plan": "Structure: outcomes, indicators, data collection methods, " +
		"and reporting cadence.",
	"executive_summary": "Structure: one tight page covering need, approach, " +
		"outcomes, and the ask. No new material beyond what the full proposal supports.",
}

// Options carry the per-request writing controls.
type Options struct {
	Audience           string
	Section            string
	Tone               string
	CustomInstructions string
}

// buildSystemPrompt assembles the role, audience, section, and tone
// direction plus the citation contract.
func buildSystemPrompt(opts Options) string {
	var b strings.Builder
	b.WriteString("You are an experienced grant writer for a nonprofit organization. ")
	b.WriteString("You draft and revise proposal text grounded in the organization's own documents.\n\n")

	if g, ok := audienceGuidance[opts.Audience]; ok {
		b.WriteString("Audience: " + g + "\n\n")
	} else if opts.Audience != "" {
		b.WriteString("Audience: " + opts.Audience + ".\n\n")
	}
	if g, ok := sectionGuidance[opts.Section]; ok {
		b.WriteString("Section: " + g + "\n\n")
	} else if opts.Section != "" {
		b.WriteString("Section: " + opts.Section + ".\n\n")
	}
	if opts.Tone != "" {
		b.WriteString("Tone: " + opts.Tone + ".\n\n")
	}

	b.WriteString("Every factual claim must cite its source using the bracketed source id, " +
		"for example [1] or [3]. Only cite sources that are provided. " +
		"If the sources do not support a claim, say so rather than inventing one.")
	return b.String()
}

// buildUserPrompt concatenates the query, the numbered source blocks,
// the citation instructions, and any custom instructions.
func buildUserPrompt(query string, sources []retrieval.Candidate, opts Options) string {
	var b strings.Builder
	b.WriteString(query)
	b.WriteString("\n\nSources:\n\n")

	for i, src := range sources {
		filename, _ := src.Metadata["filename"].(string)
		docType, _ := src.Metadata["doc_type"].(string)
		year := yearLabel(src.Metadata["year"])
		fmt.Fprintf(&b, "[%d] %s (%s, %s)\n%s\n\n", i+1, filename, docType, year, src.Text)
	}

	b.WriteString("Cite sources inline by their bracketed number. " +
		"Do not cite numbers outside the list above.")
	if opts.CustomInstructions != "" {
		b.WriteString("\n\nAdditional instructions: " + opts.CustomInstructions)
	}
	return b.String()
}

func yearLabel(v any) string {
	switch y := v.(type) {
	case int:
		return fmt.Sprintf("%d", y)
	case int64:
		return fmt.Sprintf("%d", y)
	case float64:
		return fmt.Sprintf("%d", int(y))
	default:
		return "year unknown"
	}
}
