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
	"fmt"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
	"github.com/inkwell-ai/inkwell/pkg/docmeta"
)

func validateDocument(doc *Document) error {
	if doc.Filename == "" {
		return apperr.New(apperr.KindValidation, "filename is required").
			WithField("field", "filename")
	}
	if _, ok := docmeta.ParseDocType(string(doc.DocType)); !ok {
		return apperr.Newf(apperr.KindValidation, "unknown doc_type %q", doc.DocType).
			WithField("field", "doc_type")
	}
	if !docmeta.YearInRange(doc.Year) {
		return apperr.Newf(apperr.KindValidation,
			"year %d out of range [%d, %d]", doc.Year, docmeta.MinYear, docmeta.MaxYear()).
			WithField("field", "year")
	}
	if doc.Outcome != "" {
		if _, ok := docmeta.ParseOutcome(string(doc.Outcome)); !ok {
			return apperr.Newf(apperr.KindValidation, "unknown outcome %q", doc.Outcome).
				WithField("field", "outcome")
		}
	}
	if doc.SensitivityConfirmedAt.IsZero() {
		return apperr.New(apperr.KindValidation,
			"sensitivity review must be confirmed before ingest").
			WithField("field", "sensitivity_confirmed_at").
			WithAction("confirm the document contains no unreviewed sensitive content")
	}
	return nil
}

// InsertDocument persists a document and its program links. Program
// names must already be canonical (see ValidatePrograms).
func (s *Store) InsertDocument(ctx context.Context, doc *Document) error {
	if err := validateDocument(doc); err != nil {
		return err
	}

	tags, err := marshalJSON(doc.Tags)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to encode tags", err)
	}

	now := nowUTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.rebind(`
INSERT INTO documents (id, filename, doc_type, year, tags, outcome, funder,
    is_sensitive, sensitivity_confirmed_at, created_by, chunk_count, word_count,
    created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		doc.ID, doc.Filename, string(doc.DocType), doc.Year, tags,
		nullString(string(doc.Outcome)), nullString(doc.Funder),
		doc.IsSensitive, doc.SensitivityConfirmedAt, doc.CreatedBy,
		doc.ChunkCount, doc.WordCount, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to insert document", err)
	}

	for _, program := range doc.Programs {
		_, err = tx.ExecContext(ctx, s.rebind(
			`INSERT INTO document_programs (doc_id, program_name) VALUES (?, ?)`),
			doc.ID, program)
		if err != nil {
			return apperr.Wrap(apperr.KindUnavailable,
				fmt.Sprintf("failed to link program %q", program), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to commit document", err)
	}
	return nil
}

// GetDocument loads one document with its program links.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.queryRow(ctx, `
SELECT id, filename, doc_type, year, tags, outcome, funder, is_sensitive,
    sensitivity_confirmed_at, created_by, chunk_count, word_count, created_at, updated_at
FROM documents WHERE id = ?`, id)

	doc, err := scanDocument(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "document %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to load document", err)
	}

	doc.Programs, err = s.documentPrograms(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns documents newest first, narrowed by the filter.
func (s *Store) ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error) {
	query := `
SELECT d.id, d.filename, d.doc_type, d.year, d.tags, d.outcome, d.funder,
    d.is_sensitive, d.sensitivity_confirmed_at, d.created_by, d.chunk_count,
    d.word_count, d.created_at, d.updated_at
FROM documents d`
	var args []any
	var where []string

	if filter.Program != "" {
		query += ` JOIN document_programs dp ON dp.doc_id = d.id`
		where = append(where, `dp.program_name = ?`)
		args = append(args, filter.Program)
	}
	if filter.DocType != "" {
		where = append(where, `d.doc_type = ?`)
		args = append(args, filter.DocType)
	}
	if filter.Year != 0 {
		where = append(where, `d.year = ?`)
		args = append(args, filter.Year)
	}
	for i, w := range where {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}
	query += ` ORDER BY d.created_at DESC, d.id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to list documents", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan document", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to iterate documents", err)
	}

	for i := range docs {
		docs[i].Programs, err = s.documentPrograms(ctx, docs[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// UpdateDocument applies the non-nil fields of the update. Program
// names in the update must already be canonical.
func (s *Store) UpdateDocument(ctx context.Context, id string, upd DocumentUpdate) (*Document, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Filename != nil {
		doc.Filename = *upd.Filename
	}
	if upd.DocType != nil {
		doc.DocType = *upd.DocType
	}
	if upd.Year != nil {
		doc.Year = *upd.Year
	}
	if upd.Tags != nil {
		doc.Tags = *upd.Tags
	}
	if upd.Outcome != nil {
		doc.Outcome = *upd.Outcome
	}
	if upd.Funder != nil {
		doc.Funder = *upd.Funder
	}
	if upd.Programs != nil {
		doc.Programs = *upd.Programs
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	tags, err := marshalJSON(doc.Tags)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to encode tags", err)
	}
	doc.UpdatedAt = nowUTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.rebind(`
UPDATE documents SET filename = ?, doc_type = ?, year = ?, tags = ?, outcome = ?,
    funder = ?, updated_at = ? WHERE id = ?`),
		doc.Filename, string(doc.DocType), doc.Year, tags,
		nullString(string(doc.Outcome)), nullString(doc.Funder), doc.UpdatedAt, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to update document", err)
	}

	if upd.Programs != nil {
		if _, err := tx.ExecContext(ctx, s.rebind(
			`DELETE FROM document_programs WHERE doc_id = ?`), id); err != nil {
			return nil, apperr.Wrap(apperr.KindUnavailable, "failed to clear program links", err)
		}
		for _, program := range doc.Programs {
			if _, err := tx.ExecContext(ctx, s.rebind(
				`INSERT INTO document_programs (doc_id, program_name) VALUES (?, ?)`),
				id, program); err != nil {
				return nil, apperr.Wrap(apperr.KindUnavailable,
					fmt.Sprintf("failed to link program %q", program), err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to commit update", err)
	}
	return doc, nil
}

// SetChunkCount records the derived chunk count after (re)processing.
func (s *Store) SetChunkCount(ctx context.Context, id string, count int) error {
	res, err := s.exec(ctx,
		`UPDATE documents SET chunk_count = ?, updated_at = ? WHERE id = ?`,
		count, nowUTC(), id)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to set chunk count", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.KindNotFound, "document %s not found", id)
	}
	return nil
}

// DeleteDocument removes the record, its program links, and any
// reference to the document in conversation context blobs. Vector and
// keyword cleanup is the processor's job.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(
		`DELETE FROM document_programs WHERE doc_id = ?`), id); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to delete program links", err)
	}

	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM documents WHERE id = ?`), id)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to delete document", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.KindNotFound, "document %s not found", id)
	}

	if err := s.stripDocumentFromContexts(ctx, tx, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to commit delete", err)
	}
	return nil
}

// stripDocumentFromContexts drops the document id from the doc_ids
// list of any conversation context that names it.
func (s *Store) stripDocumentFromContexts(ctx context.Context, tx *sql.Tx, docID string) error {
	rows, err := tx.QueryContext(ctx, s.rebind(
		`SELECT id, context_json FROM conversations WHERE context_json LIKE ?`),
		"%"+docID+"%")
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to scan conversation contexts", err)
	}
	defer rows.Close()

	type patch struct{ id, blob string }
	var patches []patch
	for rows.Next() {
		var convID string
		var blob sql.NullString
		if err := rows.Scan(&convID, &blob); err != nil {
			return apperr.Wrap(apperr.KindInternal, "failed to scan conversation", err)
		}
		if !blob.Valid || blob.String == "" {
			continue
		}

		var contextMap map[string]any
		if err := json.Unmarshal([]byte(blob.String), &contextMap); err != nil {
			continue
		}
		ids, ok := contextMap["doc_ids"].([]any)
		if !ok {
			continue
		}
		kept := make([]any, 0, len(ids))
		for _, v := range ids {
			if v != docID {
				kept = append(kept, v)
			}
		}
		if len(kept) == len(ids) {
			continue
		}
		contextMap["doc_ids"] = kept
		updated, err := json.Marshal(contextMap)
		if err != nil {
			continue
		}
		patches = append(patches, patch{id: convID, blob: string(updated)})
	}
	if err := rows.Err(); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to iterate conversations", err)
	}

	for _, p := range patches {
		if _, err := tx.ExecContext(ctx, s.rebind(
			`UPDATE conversations SET context_json = ?, updated_at = ? WHERE id = ?`),
			p.blob, nowUTC(), p.id); err != nil {
			return apperr.Wrap(apperr.KindUnavailable, "failed to patch conversation context", err)
		}
	}
	return nil
}

func (s *Store) documentPrograms(ctx context.Context, docID string) ([]string, error) {
	rows, err := s.query(ctx,
		`SELECT program_name FROM document_programs WHERE doc_id = ? ORDER BY program_name`, docID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to load program links", err)
	}
	defer rows.Close()

	var programs []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan program link", err)
		}
		programs = append(programs, name)
	}
	return programs, rows.Err()
}

func scanDocument(scan func(dest ...any) error) (*Document, error) {
	var doc Document
	var tags, outcome, funder sql.NullString
	err := scan(&doc.ID, &doc.Filename, (*string)(&doc.DocType), &doc.Year, &tags,
		&outcome, &funder, &doc.IsSensitive, &doc.SensitivityConfirmedAt,
		&doc.CreatedBy, &doc.ChunkCount, &doc.WordCount, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.Tags = unmarshalStrings(tags.String)
	doc.Outcome = docmeta.Outcome(outcome.String)
	doc.Funder = funder.String
	return &doc, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
