// Package domain holds shared value types: typed identifiers and the
// calendar day key. Typed IDs prevent cross-entity assignment at compile
// time; construct them via the Parse helpers at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "gatelog/pkg/domain-errors"
)

// Typed identifiers. FacilityID partitions every query in the system;
// a resident, operator, or event always belongs to exactly one facility.
type (
	FacilityID uuid.UUID
	ResidentID uuid.UUID
	OperatorID uuid.UUID
	EventID    uuid.UUID
	LeaveID    uuid.UUID
)

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be empty", what)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is not a valid UUID", what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be the nil UUID", what)
	}
	return u, nil
}

func ParseFacilityID(s string) (FacilityID, error) {
	u, err := parseUUID(s, "facility_id")
	return FacilityID(u), err
}

func ParseResidentID(s string) (ResidentID, error) {
	u, err := parseUUID(s, "resident_id")
	return ResidentID(u), err
}

func ParseOperatorID(s string) (OperatorID, error) {
	u, err := parseUUID(s, "operator_id")
	return OperatorID(u), err
}

func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID(s, "event_id")
	return EventID(u), err
}

func ParseLeaveID(s string) (LeaveID, error) {
	u, err := parseUUID(s, "leave_id")
	return LeaveID(u), err
}

func (id FacilityID) String() string { return uuid.UUID(id).String() }
func (id ResidentID) String() string { return uuid.UUID(id).String() }
func (id OperatorID) String() string { return uuid.UUID(id).String() }
func (id EventID) String() string    { return uuid.UUID(id).String() }
func (id LeaveID) String() string    { return uuid.UUID(id).String() }

func (id FacilityID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ResidentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id OperatorID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id LeaveID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewEventID allocates a fresh event identifier.
func NewEventID() EventID { return EventID(uuid.New()) }
