package service

import (
	"context"
	"errors"
	"strings"

	"gatelog/internal/attendance/models"
	"gatelog/internal/audit"
	id "gatelog/pkg/domain"
	dErrors "gatelog/pkg/domain-errors"
	"gatelog/pkg/platform/sentinel"
	"gatelog/pkg/requestcontext"
)

// Reconcile marks the event as operator-verified. All four audit fields are
// written from a single clock read inside the store's validate-then-mutate
// transaction, so a reader never observes a half-reconciled record.
// Re-reconciling is allowed and overwrites the previous audit fields.
func (s *Service) Reconcile(ctx context.Context, facilityID id.FacilityID, eventID id.EventID, notes string) (*models.EventRecord, error) {
	if err := s.checkScope(ctx, facilityID); err != nil {
		return nil, err
	}
	operatorID := requestcontext.OperatorID(ctx)
	if operatorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "operator identity required")
	}

	now := requestcontext.Now(ctx)
	notes = strings.TrimSpace(notes)

	record, err := s.events.Execute(ctx, eventID,
		func(e *models.EventRecord) error {
			if e.FacilityID != facilityID {
				return dErrors.New(dErrors.CodeScopeViolation, "event belongs to another facility")
			}
			return e.CanReconcile()
		},
		func(e *models.EventRecord) {
			e.ApplyReconciliation(operatorID, notes, now)
		},
	)
	if err != nil {
		return nil, s.mapExecuteError(err, "failed to reconcile event")
	}

	if s.metrics != nil {
		s.metrics.Reconciliations.Inc()
	}
	s.logAudit(ctx, string(audit.EventReconciled), record,
		"operator_id", operatorID,
		"reason", notes)
	return record, nil
}

// SoftDelete excludes the event from every active path while keeping the
// row for audit. Deleting twice is rejected; the record is never destroyed.
func (s *Service) SoftDelete(ctx context.Context, facilityID id.FacilityID, eventID id.EventID) (*models.EventRecord, error) {
	if err := s.checkScope(ctx, facilityID); err != nil {
		return nil, err
	}
	operatorID := requestcontext.OperatorID(ctx)
	if operatorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "operator identity required")
	}

	now := requestcontext.Now(ctx)

	record, err := s.events.Execute(ctx, eventID,
		func(e *models.EventRecord) error {
			if e.FacilityID != facilityID {
				return dErrors.New(dErrors.CodeScopeViolation, "event belongs to another facility")
			}
			return e.CanSoftDelete()
		},
		func(e *models.EventRecord) {
			e.ApplySoftDelete(operatorID, now)
		},
	)
	if err != nil {
		return nil, s.mapExecuteError(err, "failed to delete event")
	}

	if s.metrics != nil {
		s.metrics.SoftDeletions.Inc()
	}
	s.logAudit(ctx, string(audit.EventSoftDeleted), record,
		"operator_id", operatorID)
	return record, nil
}

// mapExecuteError translates store and validation failures from Execute
// into coded domain errors. Domain errors raised by the validate callback
// pass through untouched.
func (s *Service) mapExecuteError(err error, internalMsg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "event not found")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, internalMsg)
}
