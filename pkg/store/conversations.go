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
	"errors"

	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
)

// CreateConversation starts a conversation for a principal. The
// context blob seeds retrieval on every later turn.
func (s *Store) CreateConversation(ctx context.Context, principal, title string, contextBlob json.RawMessage) (*Conversation, error) {
	if principal == "" {
		return nil, apperr.New(apperr.KindValidation, "principal is required").
			WithField("field", "principal")
	}

	now := nowUTC()
	conv := &Conversation{
		ID:        uuid.NewString(),
		Principal: principal,
		Title:     title,
		Context:   contextBlob,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.exec(ctx, `
INSERT INTO conversations (id, principal, title, context_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.Principal, nullString(conv.Title),
		nullString(string(conv.Context)), conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to insert conversation", err)
	}
	return conv, nil
}

// GetConversation loads one conversation.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	var title, contextBlob sql.NullString
	err := s.queryRow(ctx, `
SELECT id, principal, title, context_json, created_at, updated_at
FROM conversations WHERE id = ?`, id).
		Scan(&conv.ID, &conv.Principal, &title, &contextBlob, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "conversation %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to load conversation", err)
	}
	conv.Title = title.String
	if contextBlob.Valid {
		conv.Context = json.RawMessage(contextBlob.String)
	}
	return &conv, nil
}

// ListConversations returns a principal's conversations, most recently
// updated first.
func (s *Store) ListConversations(ctx context.Context, principal string) ([]Conversation, error) {
	rows, err := s.query(ctx, `
SELECT id, principal, title, context_json, created_at, updated_at
FROM conversations WHERE principal = ? ORDER BY updated_at DESC, id`, principal)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to list conversations", err)
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var conv Conversation
		var title, contextBlob sql.NullString
		if err := rows.Scan(&conv.ID, &conv.Principal, &title, &contextBlob,
			&conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan conversation", err)
		}
		conv.Title = title.String
		if contextBlob.Valid {
			conv.Context = json.RawMessage(contextBlob.String)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// UpdateConversationContext replaces the context blob.
func (s *Store) UpdateConversationContext(ctx context.Context, id string, contextBlob json.RawMessage) error {
	res, err := s.exec(ctx,
		`UPDATE conversations SET context_json = ?, updated_at = ? WHERE id = ?`,
		nullString(string(contextBlob)), nowUTC(), id)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to update conversation context", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.KindNotFound, "conversation %s not found", id)
	}
	return nil
}

// DeleteConversation removes a conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(
		`DELETE FROM messages WHERE conversation_id = ?`), id); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to delete messages", err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM conversations WHERE id = ?`), id)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to delete conversation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.KindNotFound, "conversation %s not found", id)
	}
	return tx.Commit()
}

// AppendMessages appends messages in order within one transaction,
// assigning dense sequence numbers. A user turn and its assistant
// reply are persisted together so readers never see a half turn.
func (s *Store) AppendMessages(ctx context.Context, conversationID string, messages []Message) ([]Message, error) {
	if conversationID == "" {
		return nil, apperr.New(apperr.KindValidation, "conversation id is required")
	}
	if len(messages) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM conversations WHERE id = ?`), conversationID).Scan(&exists)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to check conversation", err)
	}
	if exists == 0 {
		return nil, apperr.Newf(apperr.KindNotFound, "conversation %s not found", conversationID)
	}

	var startSeq int64
	err = tx.QueryRowContext(ctx, s.rebind(
		`SELECT COALESCE(MAX(sequence_num), 0) FROM messages WHERE conversation_id = ?`),
		conversationID).Scan(&startSeq)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to get sequence number", err)
	}

	now := nowUTC()
	out := make([]Message, len(messages))
	for i, msg := range messages {
		msg.ID = uuid.NewString()
		msg.ConversationID = conversationID
		msg.SequenceNum = startSeq + int64(i) + 1
		msg.CreatedAt = now

		var citations any
		if len(msg.Citations) > 0 {
			citations = string(msg.Citations)
		}
		_, err = tx.ExecContext(ctx, s.rebind(`
INSERT INTO messages (id, conversation_id, role, content, citations_json, sequence_num, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`),
			msg.ID, msg.ConversationID, msg.Role, msg.Content, citations,
			msg.SequenceNum, msg.CreatedAt)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUnavailable, "failed to insert message", err)
		}
		out[i] = msg
	}

	if _, err = tx.ExecContext(ctx, s.rebind(
		`UPDATE conversations SET updated_at = ? WHERE id = ?`), now, conversationID); err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to touch conversation", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to commit messages", err)
	}
	return out, nil
}

// ListMessages returns a conversation's messages in sequence order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.query(ctx, `
SELECT id, conversation_id, role, content, citations_json, sequence_num, created_at
FROM messages WHERE conversation_id = ? ORDER BY sequence_num`, conversationID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to list messages", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var citations sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content,
			&citations, &msg.SequenceNum, &msg.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan message", err)
		}
		if citations.Valid {
			msg.Citations = json.RawMessage(citations.String)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
