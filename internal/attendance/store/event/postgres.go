package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gatelog/internal/attendance/models"
	id "gatelog/pkg/domain"
	"gatelog/pkg/platform/sentinel"
	txcontext "gatelog/pkg/platform/tx"
)

// PostgresStore persists event records in PostgreSQL. Records are never
// physically deleted; soft delete and reconciliation are column updates.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed event store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const eventColumns = `
	id, facility_id, resident_id, day, kind, occurred_at, status,
	linked_leave_id, source, device_id, shift, notes, validation_issues,
	reconciled, reconciled_by, reconciled_at, reconciliation_notes,
	deleted, deleted_by, deleted_at, created_by, created_at, updated_at`

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// execer prefers a context transaction so an event write and its audit
// outbox row commit together.
func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, record *models.EventRecord) error {
	issues, err := marshalIssues(record.ValidationIssues)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO attendance_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(record.ID),
		uuid.UUID(record.FacilityID),
		uuid.UUID(record.ResidentID),
		record.Day.String(),
		string(record.Kind),
		record.OccurredAt,
		string(record.Status),
		nullLeaveID(record.LinkedLeaveID),
		string(record.Source),
		record.DeviceID,
		record.Shift,
		record.Notes,
		issues,
		record.Reconciled,
		nullOperatorID(record.ReconciledBy),
		nullTime(record.ReconciledAt),
		record.ReconciliationNotes,
		record.Deleted,
		nullOperatorID(record.DeletedBy),
		nullTime(record.DeletedAt),
		nullOperatorID(record.CreatedBy),
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attendance event: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, eventID id.EventID) (*models.EventRecord, error) {
	query := `SELECT ` + eventColumns + ` FROM attendance_events WHERE id = $1`
	record, err := scanEvent(s.db.QueryRowContext(ctx, query, uuid.UUID(eventID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find attendance event: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) LastForDay(ctx context.Context, facilityID id.FacilityID, residentID id.ResidentID, day id.DayKey) (*models.EventRecord, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM attendance_events
		WHERE facility_id = $1 AND resident_id = $2 AND day = $3 AND NOT deleted
		ORDER BY occurred_at DESC
		LIMIT 1`
	record, err := scanEvent(s.db.QueryRowContext(ctx, query,
		uuid.UUID(facilityID), uuid.UUID(residentID), day.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("last event for day: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListDay(ctx context.Context, facilityID id.FacilityID, residentID id.ResidentID, day id.DayKey, includeDeleted bool) ([]*models.EventRecord, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM attendance_events
		WHERE facility_id = $1 AND resident_id = $2 AND day = $3
		  AND (NOT deleted OR $4)
		ORDER BY occurred_at ASC`
	return s.list(ctx, query, uuid.UUID(facilityID), uuid.UUID(residentID), day.String(), includeDeleted)
}

func (s *PostgresStore) ListRange(ctx context.Context, facilityID id.FacilityID, residentID id.ResidentID, rng id.DateRange, includeDeleted bool) ([]*models.EventRecord, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM attendance_events
		WHERE facility_id = $1 AND resident_id = $2
		  AND day >= $3 AND day <= $4
		  AND (NOT deleted OR $5)
		ORDER BY day ASC, occurred_at ASC`
	return s.list(ctx, query, uuid.UUID(facilityID), uuid.UUID(residentID),
		rng.From.String(), rng.To.String(), includeDeleted)
}

func (s *PostgresStore) ListFacilityDay(ctx context.Context, facilityID id.FacilityID, day id.DayKey) ([]*models.EventRecord, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM attendance_events
		WHERE facility_id = $1 AND day = $2 AND NOT deleted
		ORDER BY resident_id, occurred_at ASC`
	return s.list(ctx, query, uuid.UUID(facilityID), day.String())
}

func (s *PostgresStore) ListUnreconciled(ctx context.Context, facilityID id.FacilityID, rng id.DateRange) ([]*models.EventRecord, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM attendance_events
		WHERE facility_id = $1
		  AND day >= $2 AND day <= $3
		  AND NOT deleted AND NOT reconciled
		  AND (status = $4 OR jsonb_array_length(validation_issues) > 0)
		ORDER BY day ASC, occurred_at ASC`
	return s.list(ctx, query, uuid.UUID(facilityID),
		rng.From.String(), rng.To.String(), string(models.StatusUnknown))
}

func (s *PostgresStore) ReplaceIssues(ctx context.Context, eventID id.EventID, issues []models.ValidationIssue) error {
	payload, err := marshalIssues(issues)
	if err != nil {
		return err
	}
	res, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE attendance_events SET validation_issues = $2, updated_at = NOW() WHERE id = $1`,
		uuid.UUID(eventID), payload)
	if err != nil {
		return fmt.Errorf("replace validation issues: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace validation issues: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Execute loads the record FOR UPDATE inside a transaction, runs validate
// then mutate, and writes the mutable columns back. The row lock makes the
// validate-then-mutate step atomic against concurrent operators.
func (s *PostgresStore) Execute(ctx context.Context, eventID id.EventID, validate func(*models.EventRecord) error, mutate func(*models.EventRecord)) (*models.EventRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin execute tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + eventColumns + ` FROM attendance_events WHERE id = $1 FOR UPDATE`
	record, err := scanEvent(tx.QueryRowContext(ctx, query, uuid.UUID(eventID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load attendance event: %w", err)
	}

	if err := validate(record); err != nil {
		return nil, err
	}
	mutate(record)

	issues, err := marshalIssues(record.ValidationIssues)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE attendance_events SET
			status = $2, notes = $3, validation_issues = $4,
			reconciled = $5, reconciled_by = $6, reconciled_at = $7, reconciliation_notes = $8,
			deleted = $9, deleted_by = $10, deleted_at = $11,
			updated_at = $12
		WHERE id = $1`,
		uuid.UUID(record.ID),
		string(record.Status),
		record.Notes,
		issues,
		record.Reconciled,
		nullOperatorID(record.ReconciledBy),
		nullTime(record.ReconciledAt),
		record.ReconciliationNotes,
		record.Deleted,
		nullOperatorID(record.DeletedBy),
		nullTime(record.DeletedAt),
		record.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update attendance event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit execute tx: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attendance events: %w", err)
	}
	defer rows.Close()

	var out []*models.EventRecord
	for rows.Next() {
		record, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance event: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance events: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.EventRecord, error) {
	var (
		record        models.EventRecord
		eventID       uuid.UUID
		facilityID    uuid.UUID
		residentID    uuid.UUID
		day           string
		kind          string
		status        string
		source        string
		linkedLeaveID uuid.NullUUID
		issues        []byte
		reconciledBy  uuid.NullUUID
		reconciledAt  sql.NullTime
		deletedBy     uuid.NullUUID
		deletedAt     sql.NullTime
		createdBy     uuid.NullUUID
	)
	err := row.Scan(
		&eventID, &facilityID, &residentID, &day, &kind, &record.OccurredAt, &status,
		&linkedLeaveID, &source, &record.DeviceID, &record.Shift, &record.Notes, &issues,
		&record.Reconciled, &reconciledBy, &reconciledAt, &record.ReconciliationNotes,
		&record.Deleted, &deletedBy, &deletedAt, &createdBy,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.ID = id.EventID(eventID)
	record.FacilityID = id.FacilityID(facilityID)
	record.ResidentID = id.ResidentID(residentID)
	record.Day = id.DayKey(day)
	record.Kind = models.EventKind(kind)
	record.Status = models.Status(status)
	record.Source = models.Source(source)

	if linkedLeaveID.Valid {
		v := id.LeaveID(linkedLeaveID.UUID)
		record.LinkedLeaveID = &v
	}
	if reconciledBy.Valid {
		v := id.OperatorID(reconciledBy.UUID)
		record.ReconciledBy = &v
	}
	if reconciledAt.Valid {
		t := reconciledAt.Time
		record.ReconciledAt = &t
	}
	if deletedBy.Valid {
		v := id.OperatorID(deletedBy.UUID)
		record.DeletedBy = &v
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		record.DeletedAt = &t
	}
	if createdBy.Valid {
		v := id.OperatorID(createdBy.UUID)
		record.CreatedBy = &v
	}
	if len(issues) > 0 {
		if err := json.Unmarshal(issues, &record.ValidationIssues); err != nil {
			return nil, fmt.Errorf("decode validation issues: %w", err)
		}
	}
	return &record, nil
}

func marshalIssues(issues []models.ValidationIssue) ([]byte, error) {
	if issues == nil {
		return []byte("[]"), nil
	}
	payload, err := json.Marshal(issues)
	if err != nil {
		return nil, fmt.Errorf("encode validation issues: %w", err)
	}
	return payload, nil
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}

func nullOperatorID(value *id.OperatorID) uuid.NullUUID {
	if value == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*value), Valid: true}
}

func nullLeaveID(value *id.LeaveID) uuid.NullUUID {
	if value == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*value), Valid: true}
}
