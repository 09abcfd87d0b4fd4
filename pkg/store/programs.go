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
	"strings"

	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
)

// CreateProgram inserts a program. Names are unique case-insensitively;
// the canonical casing of the first insert is what gets stored.
func (s *Store) CreateProgram(ctx context.Context, name string, displayOrder int) (*Program, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.New(apperr.KindValidation, "program name is required").
			WithField("field", "name")
	}

	var existing string
	err := s.queryRow(ctx,
		`SELECT name FROM programs WHERE LOWER(name) = LOWER(?)`, name).Scan(&existing)
	switch {
	case err == nil:
		return nil, apperr.Newf(apperr.KindConflict, "program %q already exists", existing).
			WithField("name", existing)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to check program name", err)
	}

	p := &Program{
		ID:           uuid.NewString(),
		Name:         name,
		Active:       true,
		DisplayOrder: displayOrder,
		CreatedAt:    nowUTC(),
	}
	_, err = s.exec(ctx,
		`INSERT INTO programs (id, name, active, display_order, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Active, p.DisplayOrder, p.CreatedAt)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to insert program", err)
	}
	return p, nil
}

// ListPrograms returns programs ordered by display_order then name.
func (s *Store) ListPrograms(ctx context.Context, activeOnly bool) ([]Program, error) {
	query := `SELECT id, name, active, display_order, created_at FROM programs
ORDER BY display_order, name`
	if activeOnly {
		query = `SELECT id, name, active, display_order, created_at FROM programs
WHERE active = ? ORDER BY display_order, name`
	}

	var rows *sql.Rows
	var err error
	if activeOnly {
		rows, err = s.query(ctx, query, true)
	} else {
		rows, err = s.query(ctx, query)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to list programs", err)
	}
	defer rows.Close()

	var programs []Program
	for rows.Next() {
		var p Program
		if err := rows.Scan(&p.ID, &p.Name, &p.Active, &p.DisplayOrder, &p.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan program", err)
		}
		programs = append(programs, p)
	}
	return programs, rows.Err()
}

// UpdateProgram applies the non-nil fields and returns the updated
// program.
func (s *Store) UpdateProgram(ctx context.Context, id string, active *bool, displayOrder *int) (*Program, error) {
	var p Program
	err := s.queryRow(ctx,
		`SELECT id, name, active, display_order, created_at FROM programs WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Active, &p.DisplayOrder, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "program %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to look up program", err)
	}

	if active != nil {
		p.Active = *active
	}
	if displayOrder != nil {
		p.DisplayOrder = *displayOrder
	}

	_, err = s.exec(ctx,
		`UPDATE programs SET active = ?, display_order = ? WHERE id = ?`,
		p.Active, p.DisplayOrder, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to update program", err)
	}
	return &p, nil
}

// DeleteProgram removes a program. A program still linked to documents
// is a conflict unless force is set, in which case the links go too.
func (s *Store) DeleteProgram(ctx context.Context, id string, force bool) error {
	var name string
	err := s.queryRow(ctx, `SELECT name FROM programs WHERE id = ?`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Newf(apperr.KindNotFound, "program %s not found", id)
	}
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to look up program", err)
	}

	var refs int
	err = s.queryRow(ctx,
		`SELECT COUNT(*) FROM document_programs WHERE program_name = ?`, name).Scan(&refs)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to count program references", err)
	}
	if refs > 0 {
		if !force {
			return apperr.Newf(apperr.KindConflict,
				"program %q is referenced by %d document(s)", name, refs).
				WithField("references", refs).
				WithAction("retry with force to drop the links")
		}
		if _, err := s.exec(ctx,
			`DELETE FROM document_programs WHERE program_name = ?`, name); err != nil {
			return apperr.Wrap(apperr.KindUnavailable, "failed to drop program links", err)
		}
	}

	if _, err := s.exec(ctx, `DELETE FROM programs WHERE id = ?`, id); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to delete program", err)
	}
	return nil
}

// ValidatePrograms checks names against the active programs
// case-insensitively and returns them in canonical casing. Unknown or
// inactive names produce a validation error that carries both the
// offending values and the valid set.
func (s *Store) ValidatePrograms(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}

	active, err := s.ListPrograms(ctx, true)
	if err != nil {
		return nil, err
	}
	canonical := make(map[string]string, len(active))
	valid := make([]string, 0, len(active))
	for _, p := range active {
		canonical[strings.ToLower(p.Name)] = p.Name
		valid = append(valid, p.Name)
	}

	out := make([]string, 0, len(names))
	var invalid []string
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if c, ok := canonical[key]; ok {
			out = append(out, c)
		} else {
			invalid = append(invalid, name)
		}
	}

	if len(invalid) > 0 {
		return nil, apperr.New(apperr.KindValidation, "unknown or inactive program name(s)").
			WithField("invalid_programs", invalid).
			WithField("valid_programs", valid).
			WithAction("use one of the listed valid programs or add the program first")
	}
	return out, nil
}
