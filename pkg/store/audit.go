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
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell/pkg/apperr"
)

// RecordAudit appends one audit event. Failures are logged, not
// returned; the audit trail never blocks the operation it records.
func (s *Store) RecordAudit(ctx context.Context, event AuditEvent) {
	details, err := marshalJSON(event.Details)
	if err != nil {
		slog.Warn("Failed to encode audit details", "action", event.Action, "error", err)
		details = ""
	}

	_, err = s.exec(ctx, `
INSERT INTO audit_events (id, principal, action, entity, entity_id, details_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), event.Principal, event.Action, event.Entity,
		nullString(event.EntityID), nullString(details), nowUTC())
	if err != nil {
		slog.Warn("Failed to record audit event",
			"action", event.Action, "entity", event.Entity, "error", err)
	}
}

// ListAuditEvents returns the most recent events, newest first.
func (s *Store) ListAuditEvents(ctx context.Context, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.query(ctx, `
SELECT id, principal, action, entity, entity_id, details_json, created_at
FROM audit_events ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to list audit events", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var ev AuditEvent
		var entityID, details *string
		if err := rows.Scan(&ev.ID, &ev.Principal, &ev.Action, &ev.Entity,
			&entityID, &details, &ev.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan audit event", err)
		}
		if entityID != nil {
			ev.EntityID = *entityID
		}
		if details != nil && *details != "" {
			_ = json.Unmarshal([]byte(*details), &ev.Details)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
