package handler

import (
	"strings"
	"time"

	"gatelog/internal/attendance/models"
	"gatelog/internal/attendance/service"
	id "gatelog/pkg/domain"
	dErrors "gatelog/pkg/domain-errors"
)

// RecordEventRequest is the ingestion payload. Day is optional; the service
// derives it from occurred_at in the facility timezone when absent. Status
// is optional and defaults to present.
type RecordEventRequest struct {
	ResidentID    string    `json:"resident_id"`
	FacilityID    string    `json:"facility_id"`
	Kind          string    `json:"kind"`
	OccurredAt    time.Time `json:"occurred_at"`
	Day           string    `json:"day,omitempty"`
	Status        string    `json:"status,omitempty"`
	Source        string    `json:"source"`
	DeviceID      string    `json:"device_id,omitempty"`
	Shift         string    `json:"shift,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	LinkedLeaveID string    `json:"linked_leave_id,omitempty"`
}

// Normalize trims free-text fields in place.
func (r *RecordEventRequest) Normalize() {
	r.ResidentID = strings.TrimSpace(r.ResidentID)
	r.FacilityID = strings.TrimSpace(r.FacilityID)
	r.Kind = strings.TrimSpace(r.Kind)
	r.Day = strings.TrimSpace(r.Day)
	r.Status = strings.TrimSpace(r.Status)
	r.Source = strings.TrimSpace(r.Source)
	r.DeviceID = strings.TrimSpace(r.DeviceID)
	r.Shift = strings.TrimSpace(r.Shift)
	r.Notes = strings.TrimSpace(r.Notes)
	r.LinkedLeaveID = strings.TrimSpace(r.LinkedLeaveID)
}

// ToInput validates the payload and produces the typed service input.
func (r *RecordEventRequest) ToInput() (service.RecordEventInput, error) {
	var in service.RecordEventInput

	residentID, err := id.ParseResidentID(r.ResidentID)
	if err != nil {
		return in, err
	}
	facilityID, err := id.ParseFacilityID(r.FacilityID)
	if err != nil {
		return in, err
	}
	kind, err := models.ParseEventKind(r.Kind)
	if err != nil {
		return in, err
	}
	source, err := models.ParseSource(r.Source)
	if err != nil {
		return in, err
	}
	if r.OccurredAt.IsZero() {
		return in, dErrors.New(dErrors.CodeInvalidInput, "occurred_at is required")
	}

	in = service.RecordEventInput{
		ResidentID: residentID,
		FacilityID: facilityID,
		Kind:       kind,
		OccurredAt: r.OccurredAt,
		Source:     source,
		DeviceID:   r.DeviceID,
		Shift:      r.Shift,
		Notes:      r.Notes,
	}
	if r.Day != "" {
		day, err := id.ParseDayKey(r.Day)
		if err != nil {
			return service.RecordEventInput{}, err
		}
		in.Day = day
	}
	if r.Status != "" {
		status, err := models.ParseStatus(r.Status)
		if err != nil {
			return service.RecordEventInput{}, err
		}
		in.Status = status
	}
	if r.LinkedLeaveID != "" {
		leaveID, err := id.ParseLeaveID(r.LinkedLeaveID)
		if err != nil {
			return service.RecordEventInput{}, err
		}
		in.LinkedLeaveID = &leaveID
	}
	return in, nil
}

// ReconcileRequest carries the operator's reconciliation notes.
type ReconcileRequest struct {
	Notes string `json:"notes"`
}
