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

package store

import (
	"encoding/json"
	"time"

	"github.com/inkwell-ai/inkwell/pkg/docmeta"
)

// Document is the persisted metadata record of one ingested file.
type Document struct {
	ID                     string          `json:"id"`
	Filename               string          `json:"filename"`
	DocType                docmeta.DocType `json:"doc_type"`
	Year                   int             `json:"year,omitempty"`
	Programs               []string        `json:"programs,omitempty"`
	Tags                   []string        `json:"tags,omitempty"`
	Outcome                docmeta.Outcome `json:"outcome,omitempty"`
	Funder                 string          `json:"funder,omitempty"`
	IsSensitive            bool            `json:"is_sensitive"`
	SensitivityConfirmedAt time.Time       `json:"sensitivity_confirmed_at"`
	CreatedBy              string          `json:"created_by"`
	ChunkCount             int             `json:"chunk_count"`
	WordCount              int             `json:"word_count"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// DocumentUpdate carries the mutable fields of a document. Nil fields
// are left unchanged.
type DocumentUpdate struct {
	Filename *string          `json:"filename,omitempty"`
	DocType  *docmeta.DocType `json:"doc_type,omitempty"`
	Year     *int             `json:"year,omitempty"`
	Programs *[]string        `json:"programs,omitempty"`
	Tags     *[]string        `json:"tags,omitempty"`
	Outcome  *docmeta.Outcome `json:"outcome,omitempty"`
	Funder   *string          `json:"funder,omitempty"`
}

// DocumentFilter narrows ListDocuments.
type DocumentFilter struct {
	DocType string
	Year    int
	Program string
	Limit   int
	Offset  int
}

// Program is one entry of the admin-maintained program enumeration.
type Program struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Active       bool      `json:"active"`
	DisplayOrder int       `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
}

// Conversation groups the messages of one principal and carries the
// context blob that seeds retrieval on every turn.
type Conversation struct {
	ID        string          `json:"id"`
	Principal string          `json:"principal"`
	Title     string          `json:"title"`
	Context   json.RawMessage `json:"context,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Message is one turn of a conversation. Assistant messages carry the
// citation set that was validated at generation time.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Role           string          `json:"role"`
	Content        string          `json:"content"`
	Citations      json.RawMessage `json:"citations,omitempty"`
	SequenceNum    int64           `json:"sequence_num"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Output is a persisted writing artifact with the fields downstream
// success tracking needs. Not on the retrieval path.
type Output struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id,omitempty"`
	Title          string     `json:"title"`
	Content        string     `json:"content"`
	Funder         string     `json:"funder,omitempty"`
	Amount         float64    `json:"amount,omitempty"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	CreatedBy      string     `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
}

// AuditEvent is one row of the append-only audit sink.
type AuditEvent struct {
	ID        string         `json:"id"`
	Principal string         `json:"principal"`
	Action    string         `json:"action"`
	Entity    string         `json:"entity"`
	EntityID  string         `json:"entity_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalStrings(data string) []string {
	if data == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil
	}
	return out
}
