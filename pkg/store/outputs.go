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
	"errors"

	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
)

// CreateOutput persists a writing artifact.
func (s *Store) CreateOutput(ctx context.Context, out *Output) error {
	if out.Title == "" {
		return apperr.New(apperr.KindValidation, "output title is required").
			WithField("field", "title")
	}
	if out.CreatedBy == "" {
		return apperr.New(apperr.KindValidation, "created_by is required").
			WithField("field", "created_by")
	}

	out.ID = uuid.NewString()
	out.CreatedAt = nowUTC()

	_, err := s.exec(ctx, `
INSERT INTO outputs (id, conversation_id, title, content, funder, amount,
    submitted_at, created_by, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, nullString(out.ConversationID), out.Title, out.Content,
		nullString(out.Funder), out.Amount, out.SubmittedAt, out.CreatedBy, out.CreatedAt)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to insert output", err)
	}
	return nil
}

// GetOutput loads one output.
func (s *Store) GetOutput(ctx context.Context, id string) (*Output, error) {
	var out Output
	var conversationID, funder sql.NullString
	var submittedAt sql.NullTime
	err := s.queryRow(ctx, `
SELECT id, conversation_id, title, content, funder, amount, submitted_at, created_by, created_at
FROM outputs WHERE id = ?`, id).
		Scan(&out.ID, &conversationID, &out.Title, &out.Content, &funder,
			&out.Amount, &submittedAt, &out.CreatedBy, &out.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "output %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to load output", err)
	}
	out.ConversationID = conversationID.String
	out.Funder = funder.String
	if submittedAt.Valid {
		t := submittedAt.Time
		out.SubmittedAt = &t
	}
	return &out, nil
}

// ListOutputs returns a principal's outputs, newest first.
func (s *Store) ListOutputs(ctx context.Context, createdBy string) ([]Output, error) {
	rows, err := s.query(ctx, `
SELECT id, conversation_id, title, content, funder, amount, submitted_at, created_by, created_at
FROM outputs WHERE created_by = ? ORDER BY created_at DESC, id`, createdBy)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to list outputs", err)
	}
	defer rows.Close()

	var outputs []Output
	for rows.Next() {
		var out Output
		var conversationID, funder sql.NullString
		var submittedAt sql.NullTime
		if err := rows.Scan(&out.ID, &conversationID, &out.Title, &out.Content,
			&funder, &out.Amount, &submittedAt, &out.CreatedBy, &out.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan output", err)
		}
		out.ConversationID = conversationID.String
		out.Funder = funder.String
		if submittedAt.Valid {
			t := submittedAt.Time
			out.SubmittedAt = &t
		}
		outputs = append(outputs, out)
	}
	return outputs, rows.Err()
}
