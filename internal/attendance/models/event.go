package models

import (
	"time"

	id "gatelog/pkg/domain"
	dErrors "gatelog/pkg/domain-errors"
)

// EventKind is the direction of a gate event.
type EventKind string

const (
	KindEntry EventKind = "ENTRY"
	KindExit  EventKind = "EXIT"
)

var validKinds = map[EventKind]bool{
	KindEntry: true,
	KindExit:  true,
}

// ParseEventKind constructs an EventKind from external input. Call from
// handlers when parsing requests; direct casting bypasses validation.
func ParseEventKind(s string) (EventKind, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "kind cannot be empty")
	}
	k := EventKind(s)
	if !validKinds[k] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "kind must be ENTRY or EXIT")
	}
	return k, nil
}

func (k EventKind) IsValid() bool { return validKinds[k] }

// Opposite returns the pairing direction, used when matching ENTRY/EXIT
// pairs within a day.
func (k EventKind) Opposite() EventKind {
	if k == KindEntry {
		return KindExit
	}
	return KindEntry
}

func (k EventKind) String() string { return string(k) }

// Status is the per-event confidence label. StatusUnknown is reserved for
// events the sequencing detector could not trust; operators change it only
// through reconciliation, never by silent overwrite.
type Status string

const (
	StatusPresent   Status = "present"
	StatusAbsent    Status = "absent"
	StatusOnLeave   Status = "on_leave"
	StatusLate      Status = "late"
	StatusExcused   Status = "excused"
	StatusLeftEarly Status = "left_early"
	StatusHalfDay   Status = "half_day"
	StatusUnknown   Status = "unknown"
)

var validStatuses = map[Status]bool{
	StatusPresent:   true,
	StatusAbsent:    true,
	StatusOnLeave:   true,
	StatusLate:      true,
	StatusExcused:   true,
	StatusLeftEarly: true,
	StatusHalfDay:   true,
	StatusUnknown:   true,
}

// ParseStatus constructs a Status from external input.
func ParseStatus(s string) (Status, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "status cannot be empty")
	}
	st := Status(s)
	if !validStatuses[st] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported status")
	}
	return st, nil
}

func (s Status) IsValid() bool  { return validStatuses[s] }
func (s Status) String() string { return string(s) }

// CountsAsAttended reports whether the status contributes to the
// attendance percentage numerator.
func (s Status) CountsAsAttended() bool {
	return s == StatusPresent || s == StatusLate || s == StatusHalfDay
}

// Source records event provenance.
type Source string

const (
	SourceBiometric Source = "biometric"
	SourceManual    Source = "manual"
	SourceBulk      Source = "bulk"
	SourceAuto      Source = "auto"
	SourceLeave     Source = "leave"
)

var validSources = map[Source]bool{
	SourceBiometric: true,
	SourceManual:    true,
	SourceBulk:      true,
	SourceAuto:      true,
	SourceLeave:     true,
}

// ParseSource constructs a Source from external input.
func ParseSource(s string) (Source, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "source cannot be empty")
	}
	src := Source(s)
	if !validSources[src] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported source")
	}
	return src, nil
}

func (s Source) IsValid() bool  { return validSources[s] }
func (s Source) String() string { return string(s) }

// EventRecord is one gate entry/exit occurrence for a resident.
//
// Invariants:
//   - ResidentID and FacilityID are immutable after creation
//   - FacilityID partitions the universe: no query, aggregate, or
//     uniqueness check may cross facilities
//   - the set of non-deleted events for (ResidentID, Day) ordered by
//     OccurredAt is the canonical sequence for detection and aggregation
//   - a reconciled or deleted record is immutable except for the fields
//     owned by that action
//   - records are never physically destroyed
type EventRecord struct {
	ID         id.EventID    `json:"id"`
	ResidentID id.ResidentID `json:"resident_id"`
	FacilityID id.FacilityID `json:"facility_id"`
	Day        id.DayKey     `json:"day"`
	Kind       EventKind     `json:"kind"`
	OccurredAt time.Time     `json:"occurred_at"`
	Status     Status        `json:"status"`

	LinkedLeaveID *id.LeaveID `json:"linked_leave_id,omitempty"`
	Source        Source      `json:"source"`
	DeviceID      string      `json:"device_id,omitempty"`
	Shift         string      `json:"shift,omitempty"`
	Notes         string      `json:"notes,omitempty"`

	ValidationIssues []ValidationIssue `json:"validation_issues,omitempty"`

	Reconciled          bool           `json:"reconciled"`
	ReconciledBy        *id.OperatorID `json:"reconciled_by,omitempty"`
	ReconciledAt        *time.Time     `json:"reconciled_at,omitempty"`
	ReconciliationNotes string         `json:"reconciliation_notes,omitempty"`

	Deleted   bool           `json:"deleted"`
	DeletedBy *id.OperatorID `json:"deleted_by,omitempty"`
	DeletedAt *time.Time     `json:"deleted_at,omitempty"`

	// CreatedBy is set for operator-entered records, absent for
	// device-sourced events.
	CreatedBy *id.OperatorID `json:"created_by,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewEvent validates invariants and constructs a record. Status defaults to
// present when the caller supplies none; the detector may still downgrade
// it to unknown before the write commits.
func NewEvent(
	eventID id.EventID,
	residentID id.ResidentID,
	facilityID id.FacilityID,
	day id.DayKey,
	kind EventKind,
	occurredAt time.Time,
	status Status,
	source Source,
	now time.Time,
) (*EventRecord, error) {
	if residentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "resident_id is required")
	}
	if facilityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "facility_id is required")
	}
	if !kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "kind must be ENTRY or EXIT")
	}
	if occurredAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "occurred_at is required")
	}
	if status == "" {
		status = StatusPresent
	}
	if !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unsupported status")
	}
	if !source.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unsupported source")
	}
	if _, err := id.ParseDayKey(day.String()); err != nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "malformed day key")
	}
	return &EventRecord{
		ID:         eventID,
		ResidentID: residentID,
		FacilityID: facilityID,
		Day:        day,
		Kind:       kind,
		OccurredAt: occurredAt,
		Status:     status,
		Source:     source,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// IsActive reports whether the record participates in active query paths.
func (e *EventRecord) IsActive() bool { return !e.Deleted }

// NeedsReconciliation selects the operator queue: unreconciled records
// whose status the detector could not trust or that carry issues.
func (e *EventRecord) NeedsReconciliation() bool {
	if e.Deleted || e.Reconciled {
		return false
	}
	return e.Status == StatusUnknown || len(e.ValidationIssues) > 0
}

// HasValidationErrors reports whether any attached issue is error severity;
// these records are prioritized in the reconciliation queue.
func (e *EventRecord) HasValidationErrors() bool {
	for _, issue := range e.ValidationIssues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// CanReconcile checks the reconcile transition. Re-reconciling is allowed
// and overwrites the audit fields; deletion is terminal.
func (e *EventRecord) CanReconcile() error {
	if e.Deleted {
		return dErrors.New(dErrors.CodeInvariantViolation, "cannot reconcile a deleted event")
	}
	return nil
}

// ApplyReconciliation sets all four audit fields from one clock read so no
// partial-audit state is observable. Call CanReconcile first.
func (e *EventRecord) ApplyReconciliation(operatorID id.OperatorID, notes string, now time.Time) {
	e.Reconciled = true
	e.ReconciledBy = &operatorID
	e.ReconciledAt = &now
	e.ReconciliationNotes = notes
	e.UpdatedAt = now
}

// CanSoftDelete checks the delete transition. Deleting twice is rejected;
// deleting a reconciled record is allowed.
func (e *EventRecord) CanSoftDelete() error {
	if e.Deleted {
		return dErrors.New(dErrors.CodeInvariantViolation, "event is already deleted")
	}
	return nil
}

// ApplySoftDelete marks the record inactive while retaining it for audit.
func (e *EventRecord) ApplySoftDelete(operatorID id.OperatorID, now time.Time) {
	e.Deleted = true
	e.DeletedBy = &operatorID
	e.DeletedAt = &now
	e.UpdatedAt = now
}

// AppendNote attaches a detector or operator note, preserving prior text.
func (e *EventRecord) AppendNote(note string) {
	if note == "" {
		return
	}
	if e.Notes == "" {
		e.Notes = note
		return
	}
	e.Notes = e.Notes + "; " + note
}

// Clone returns a deep copy so in-memory stores never leak internal
// pointers to callers.
func (e *EventRecord) Clone() *EventRecord {
	c := *e
	if e.LinkedLeaveID != nil {
		v := *e.LinkedLeaveID
		c.LinkedLeaveID = &v
	}
	if e.ReconciledBy != nil {
		v := *e.ReconciledBy
		c.ReconciledBy = &v
	}
	if e.ReconciledAt != nil {
		v := *e.ReconciledAt
		c.ReconciledAt = &v
	}
	if e.DeletedBy != nil {
		v := *e.DeletedBy
		c.DeletedBy = &v
	}
	if e.DeletedAt != nil {
		v := *e.DeletedAt
		c.DeletedAt = &v
	}
	if e.CreatedBy != nil {
		v := *e.CreatedBy
		c.CreatedBy = &v
	}
	if e.ValidationIssues != nil {
		c.ValidationIssues = make([]ValidationIssue, len(e.ValidationIssues))
		copy(c.ValidationIssues, e.ValidationIssues)
	}
	return &c
}
