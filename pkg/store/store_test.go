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
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
	"github.com/inkwell-ai/inkwell/pkg/docmeta"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// A pooled :memory: DSN opens one database per connection.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := New(db, "sqlite3")
	require.NoError(t, err)
	return s
}

func seedPrograms(t *testing.T, s *Store) {
	t.Helper()
	_, err := s.CreateProgram(context.Background(), "Education", 1)
	require.NoError(t, err)
	_, err = s.CreateProgram(context.Background(), "Health", 2)
	require.NoError(t, err)
}

func testDocument() *Document {
	return &Document{
		ID:                     uuid.NewString(),
		Filename:               "education_2023_proposal.pdf",
		DocType:                docmeta.TypeGrantProposal,
		Year:                   2023,
		Programs:               []string{"Education"},
		Tags:                   []string{"rural", "stem"},
		Outcome:                docmeta.OutcomeFunded,
		SensitivityConfirmedAt: time.Now().UTC(),
		CreatedBy:              "user-1",
		ChunkCount:             4,
		WordCount:              900,
	}
}

func TestRebind(t *testing.T) {
	s := &Store{dialect: "postgres"}
	assert.Equal(t, `SELECT 1 WHERE a = $1 AND b = $2`, s.rebind(`SELECT 1 WHERE a = ? AND b = ?`))

	s.dialect = "sqlite3"
	assert.Equal(t, `SELECT 1 WHERE a = ?`, s.rebind(`SELECT 1 WHERE a = ?`))
}

func TestProgramLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProgram(ctx, "Education", 1)
	require.NoError(t, err)
	assert.True(t, p.Active)

	// Duplicate names are rejected case-insensitively.
	_, err = s.CreateProgram(ctx, "education", 2)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	inactive := false
	order := 5
	updated, err := s.UpdateProgram(ctx, p.ID, &inactive, &order)
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, 5, updated.DisplayOrder)

	all, err := s.ListPrograms(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Active)

	active, err := s.ListPrograms(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, s.DeleteProgram(ctx, p.ID, false))
	err = s.DeleteProgram(ctx, p.ID, false)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestValidateProgramsCanonicalizes(t *testing.T) {
	s := newTestStore(t)
	seedPrograms(t, s)
	ctx := context.Background()

	canonical, err := s.ValidatePrograms(ctx, []string{"education", "HEALTH"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Education", "Health"}, canonical)
}

func TestValidateProgramsRejectsUnknown(t *testing.T) {
	s := newTestStore(t)
	seedPrograms(t, s)
	ctx := context.Background()

	_, err := s.ValidatePrograms(ctx, []string{"Education", "Arts"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	fields := apperr.FieldsOf(err)
	assert.Equal(t, []string{"Arts"}, fields["invalid_programs"])
	assert.ElementsMatch(t, []string{"Education", "Health"}, fields["valid_programs"])
}

func TestValidateProgramsRejectsInactive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProgram(ctx, "Legacy", 1)
	require.NoError(t, err)
	inactive := false
	_, err = s.UpdateProgram(ctx, p.ID, &inactive, nil)
	require.NoError(t, err)

	_, err = s.ValidatePrograms(ctx, []string{"Legacy"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestDocumentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	seedPrograms(t, s)
	ctx := context.Background()

	doc := testDocument()
	require.NoError(t, s.InsertDocument(ctx, doc))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Filename, got.Filename)
	assert.Equal(t, docmeta.TypeGrantProposal, got.DocType)
	assert.Equal(t, 2023, got.Year)
	assert.Equal(t, []string{"Education"}, got.Programs)
	assert.Equal(t, []string{"rural", "stem"}, got.Tags)
	assert.Equal(t, docmeta.OutcomeFunded, got.Outcome)
	assert.False(t, got.IsSensitive)
	assert.Equal(t, 4, got.ChunkCount)
}

func TestInsertDocumentValidation(t *testing.T) {
	s := newTestStore(t)
	seedPrograms(t, s)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*Document)
	}{
		{"missing sensitivity confirmation", func(d *Document) { d.SensitivityConfirmedAt = time.Time{} }},
		{"year below range", func(d *Document) { d.Year = 1999 }},
		{"year above range", func(d *Document) { d.Year = time.Now().Year() + 2 }},
		{"unknown doc type", func(d *Document) { d.DocType = "memo" }},
		{"unknown outcome", func(d *Document) { d.Outcome = "maybe" }},
		{"empty filename", func(d *Document) { d.Filename = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := testDocument()
			tt.mutate(doc)
			err := s.InsertDocument(ctx, doc)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestUpdateDocumentPartial(t *testing.T) {
	s := newTestStore(t)
	seedPrograms(t, s)
	ctx := context.Background()

	doc := testDocument()
	require.NoError(t, s.InsertDocument(ctx, doc))

	year := 2024
	programs := []string{"Education", "Health"}
	got, err := s.UpdateDocument(ctx, doc.ID, DocumentUpdate{
		Year:     &year,
		Programs: &programs,
	})
	require.NoError(t, err)
	assert.Equal(t, 2024, got.Year)
	assert.Equal(t, []string{"Education", "Health"}, got.Programs)
	// Untouched fields survive.
	assert.Equal(t, doc.Filename, got.Filename)
}

func TestListDocumentsFiltered(t *testing.T) {
	s := newTestStore(t)
	seedPrograms(t, s)
	ctx := context.Background()

	a := testDocument()
	require.NoError(t, s.InsertDocument(ctx, a))

	b := testDocument()
	b.ID = uuid.NewString()
	b.Year = 2021
	b.Programs = []string{"Health"}
	require.NoError(t, s.InsertDocument(ctx, b))

	byYear, err := s.ListDocuments(ctx, DocumentFilter{Year: 2021})
	require.NoError(t, err)
	require.Len(t, byYear, 1)
	assert.Equal(t, b.ID, byYear[0].ID)

	byProgram, err := s.ListDocuments(ctx, DocumentFilter{Program: "Education"})
	require.NoError(t, err)
	require.Len(t, byProgram, 1)
	assert.Equal(t, a.ID, byProgram[0].ID)

	all, err := s.ListDocuments(ctx, DocumentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDeleteProgramReferencedNeedsForce(t *testing.T) {
	s := newTestStore(t)
	seedPrograms(t, s)
	ctx := context.Background()

	require.NoError(t, s.InsertDocument(ctx, testDocument()))

	programs, err := s.ListPrograms(ctx, true)
	require.NoError(t, err)
	var educationID string
	for _, p := range programs {
		if p.Name == "Education" {
			educationID = p.ID
		}
	}
	require.NotEmpty(t, educationID)

	err = s.DeleteProgram(ctx, educationID, false)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	require.NoError(t, s.DeleteProgram(ctx, educationID, true))
}

func TestDeleteDocumentStripsConversationRefs(t *testing.T) {
	s := newTestStore(t)
	seedPrograms(t, s)
	ctx := context.Background()

	doc := testDocument()
	require.NoError(t, s.InsertDocument(ctx, doc))

	blob, _ := json.Marshal(map[string]any{
		"audience": "board",
		"doc_ids":  []string{doc.ID, "other-doc"},
	})
	conv, err := s.CreateConversation(ctx, "user-1", "draft", blob)
	require.NoError(t, err)

	require.NoError(t, s.DeleteDocument(ctx, doc.ID))

	_, err = s.GetDocument(ctx, doc.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	var contextMap map[string]any
	require.NoError(t, json.Unmarshal(got.Context, &contextMap))
	assert.Equal(t, []any{"other-doc"}, contextMap["doc_ids"])
	assert.Equal(t, "board", contextMap["audience"])
}

func TestAppendMessagesSequencing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "user-1", "", nil)
	require.NoError(t, err)

	citations, _ := json.Marshal([]map[string]any{{"chunk_id": "d1:chunk:0", "marker": 1}})
	first, err := s.AppendMessages(ctx, conv.ID, []Message{
		{Role: "user", Content: "summarize our education outcomes"},
		{Role: "assistant", Content: "Outcomes improved [1].", Citations: citations},
	})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, int64(1), first[0].SequenceNum)
	assert.Equal(t, int64(2), first[1].SequenceNum)

	second, err := s.AppendMessages(ctx, conv.ID, []Message{{Role: "user", Content: "more detail"}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), second[0].SequenceNum)

	messages, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "assistant", messages[1].Role)
	assert.JSONEq(t, string(citations), string(messages[1].Citations))
}

func TestAppendMessagesUnknownConversation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendMessages(context.Background(), "nope", []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestOutputRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	submitted := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	out := &Output{
		Title:       "Q1 education proposal",
		Content:     "Final draft text",
		Funder:      "Acme Foundation",
		Amount:      50000,
		SubmittedAt: &submitted,
		CreatedBy:   "user-1",
	}
	require.NoError(t, s.CreateOutput(ctx, out))

	got, err := s.GetOutput(ctx, out.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Foundation", got.Funder)
	assert.Equal(t, float64(50000), got.Amount)
	require.NotNil(t, got.SubmittedAt)
	assert.True(t, got.SubmittedAt.Equal(submitted))

	list, err := s.ListOutputs(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAuditSink(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.RecordAudit(ctx, AuditEvent{
		Principal: "user-1",
		Action:    "document.delete",
		Entity:    "document",
		EntityID:  "d1",
		Details:   map[string]any{"chunks": float64(4)},
	})

	events, err := s.ListAuditEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "document.delete", events[0].Action)
	assert.Equal(t, "d1", events[0].EntityID)
	assert.Equal(t, float64(4), events[0].Details["chunks"])
}
