package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "gatelog/pkg/domain"
	txcontext "gatelog/pkg/platform/tx"
)

// PostgresStore implements Store using the transactional outbox pattern.
// Events are written to the outbox table and published to Kafka by the
// outbox worker; Kafka is the source of truth for audit events.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka. Field names match
// Event so the consumer can deserialize without a translation layer.
type outboxPayload struct {
	ID         string `json:"ID"`
	Timestamp  string `json:"Timestamp"`
	FacilityID string `json:"FacilityID,omitempty"`
	ResidentID string `json:"ResidentID,omitempty"`
	Subject    string `json:"Subject"`
	Action     string `json:"Action"`
	Reason     string `json:"Reason,omitempty"`
	RequestID  string `json:"RequestID,omitempty"`
	ActorID    string `json:"ActorID,omitempty"`
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	eventID := uuid.New()

	payload := outboxPayload{
		ID:        eventID.String(),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		Subject:   event.Subject,
		Action:    event.Action,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		ActorID:   event.ActorID,
	}
	if !event.FacilityID.IsNil() {
		payload.FacilityID = event.FacilityID.String()
	}
	if !event.ResidentID.IsNil() {
		payload.ResidentID = event.ResidentID.String()
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "audit"
	aggregateID := eventID.String()
	if !event.ResidentID.IsNil() {
		aggregateType = "resident"
		aggregateID = event.ResidentID.String()
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		aggregateType,
		aggregateID,
		event.Action,
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// AppendWithID inserts an audit event into the audit_events table with a
// specific ID. Used by the Kafka consumer to materialize events for
// querying. Idempotent via ON CONFLICT DO NOTHING.
func (s *PostgresStore) AppendWithID(ctx context.Context, eventID uuid.UUID, event Event) error {
	query := `
		INSERT INTO audit_events (
			id, timestamp, facility_id, resident_id, subject, action,
			reason, request_id, actor_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	var facilityID, residentID *uuid.UUID
	if !event.FacilityID.IsNil() {
		fid := uuid.UUID(event.FacilityID)
		facilityID = &fid
	}
	if !event.ResidentID.IsNil() {
		rid := uuid.UUID(event.ResidentID)
		residentID = &rid
	}

	_, err := s.db.ExecContext(ctx, query,
		eventID,
		event.Timestamp,
		facilityID,
		residentID,
		event.Subject,
		event.Action,
		event.Reason,
		event.RequestID,
		event.ActorID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByResident returns events for a specific resident, newest first.
func (s *PostgresStore) ListByResident(ctx context.Context, residentID id.ResidentID) ([]Event, error) {
	query := `
		SELECT timestamp, facility_id, resident_id, subject, action,
			   reason, request_id, actor_id
		FROM audit_events
		WHERE resident_id = $1
		ORDER BY timestamp DESC
	`

	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(residentID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	query := `
		SELECT timestamp, facility_id, resident_id, subject, action,
			   reason, request_id, actor_id
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

func (s *PostgresStore) scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event

	for rows.Next() {
		var (
			event      Event
			facilityID *uuid.UUID
			residentID *uuid.UUID
		)

		err := rows.Scan(
			&event.Timestamp,
			&facilityID,
			&residentID,
			&event.Subject,
			&event.Action,
			&event.Reason,
			&event.RequestID,
			&event.ActorID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		if facilityID != nil {
			event.FacilityID = id.FacilityID(*facilityID)
		}
		if residentID != nil {
			event.ResidentID = id.ResidentID(*residentID)
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}

// OutboxSchema is the DDL for the audit outbox and materialized event tables.
const OutboxSchema = `
CREATE TABLE IF NOT EXISTS outbox (
	id             UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	payload        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	published_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outbox_unpublished
	ON outbox (created_at)
	WHERE published_at IS NULL;

CREATE TABLE IF NOT EXISTS audit_events (
	id          UUID PRIMARY KEY,
	timestamp   TIMESTAMPTZ NOT NULL,
	facility_id UUID,
	resident_id UUID,
	subject     TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	request_id  TEXT NOT NULL DEFAULT '',
	actor_id    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_audit_events_resident
	ON audit_events (resident_id, timestamp DESC);
`

// EnsureOutboxSchema creates the outbox tables if missing.
func EnsureOutboxSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, OutboxSchema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}
