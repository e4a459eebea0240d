package event

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is the DDL for the event table. EnsureSchema applies it at
// startup; statements are idempotent so repeated boots are safe.
const Schema = `
CREATE TABLE IF NOT EXISTS attendance_events (
	id                   UUID PRIMARY KEY,
	facility_id          UUID NOT NULL,
	resident_id          UUID NOT NULL,
	day                  TEXT NOT NULL,
	kind                 TEXT NOT NULL,
	occurred_at          TIMESTAMPTZ NOT NULL,
	status               TEXT NOT NULL,
	linked_leave_id      UUID,
	source               TEXT NOT NULL,
	device_id            TEXT NOT NULL DEFAULT '',
	shift                TEXT NOT NULL DEFAULT '',
	notes                TEXT NOT NULL DEFAULT '',
	validation_issues    JSONB NOT NULL DEFAULT '[]',
	reconciled           BOOLEAN NOT NULL DEFAULT FALSE,
	reconciled_by        UUID,
	reconciled_at        TIMESTAMPTZ,
	reconciliation_notes TEXT NOT NULL DEFAULT '',
	deleted              BOOLEAN NOT NULL DEFAULT FALSE,
	deleted_by           UUID,
	deleted_at           TIMESTAMPTZ,
	created_by           UUID,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attendance_events_sequence
	ON attendance_events (facility_id, resident_id, day, occurred_at);

CREATE INDEX IF NOT EXISTS idx_attendance_events_queue
	ON attendance_events (facility_id, day)
	WHERE NOT deleted AND NOT reconciled;
`

// EnsureSchema creates the event table and indexes if missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure attendance schema: %w", err)
	}
	return nil
}
