package audit

import (
	"time"

	id "gatelog/pkg/domain"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp  time.Time
	FacilityID id.FacilityID
	ResidentID id.ResidentID
	Subject    string
	Action     string
	Reason     string
	RequestID  string
	// ActorID tracks the operator who performed the action. Empty for
	// device-originated events.
	ActorID string
}

type AuditEvent string

const (
	EventRecorded        AuditEvent = "event_recorded"
	EventAnomalyDetected AuditEvent = "anomaly_detected"
	EventIssuesAttached  AuditEvent = "issues_attached"
	EventReconciled      AuditEvent = "event_reconciled"
	EventSoftDeleted     AuditEvent = "event_deleted"
	EventSweepCompleted  AuditEvent = "sweep_completed"
)
