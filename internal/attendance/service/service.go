package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"gatelog/internal/attendance/classifier"
	"gatelog/internal/attendance/detector"
	"gatelog/internal/attendance/metrics"
	"gatelog/internal/attendance/models"
	"gatelog/internal/audit"
	"gatelog/pkg/attrs"
	id "gatelog/pkg/domain"
	dErrors "gatelog/pkg/domain-errors"
	"gatelog/pkg/platform/sentinel"
	"gatelog/pkg/requestcontext"
)

// EventStore is the persistence contract for event records. Both the
// in-memory and postgres implementations satisfy it.
type EventStore interface {
	Create(ctx context.Context, record *models.EventRecord) error
	FindByID(ctx context.Context, eventID id.EventID) (*models.EventRecord, error)
	LastForDay(ctx context.Context, facilityID id.FacilityID, residentID id.ResidentID, day id.DayKey) (*models.EventRecord, error)
	ListDay(ctx context.Context, facilityID id.FacilityID, residentID id.ResidentID, day id.DayKey, includeDeleted bool) ([]*models.EventRecord, error)
	ListRange(ctx context.Context, facilityID id.FacilityID, residentID id.ResidentID, rng id.DateRange, includeDeleted bool) ([]*models.EventRecord, error)
	ListFacilityDay(ctx context.Context, facilityID id.FacilityID, day id.DayKey) ([]*models.EventRecord, error)
	ListUnreconciled(ctx context.Context, facilityID id.FacilityID, rng id.DateRange) ([]*models.EventRecord, error)
	ReplaceIssues(ctx context.Context, eventID id.EventID, issues []models.ValidationIssue) error
	Execute(ctx context.Context, eventID id.EventID, validate func(*models.EventRecord) error, mutate func(*models.EventRecord)) (*models.EventRecord, error)
}

// RollupCache caches computed status rollups. Misses return
// sentinel.ErrNotFound; failures are tolerated, never surfaced to callers.
type RollupCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Service orchestrates event ingestion, classification, aggregation, and
// the reconciliation workflow. All writes to the event sequence go through
// RecordEvent; there is no other write path.
type Service struct {
	events         EventStore
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	cache          RollupCache
	tracer         trace.Tracer

	defaultPolicy classifier.Policy
	policies      map[id.FacilityID]classifier.Policy

	sequenceLocks *keyedMutex
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithRollupCache(cache RollupCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithDefaultPolicy overrides the classifier thresholds used when a
// facility has no policy of its own.
func WithDefaultPolicy(policy classifier.Policy) Option {
	return func(s *Service) {
		s.defaultPolicy = policy
	}
}

// WithFacilityPolicy registers facility-specific classifier thresholds.
func WithFacilityPolicy(facilityID id.FacilityID, policy classifier.Policy) Option {
	return func(s *Service) {
		s.policies[facilityID] = policy
	}
}

// New constructs a Service.
func New(events EventStore, opts ...Option) *Service {
	s := &Service{
		events:        events,
		defaultPolicy: classifier.DefaultPolicy(),
		policies:      make(map[id.FacilityID]classifier.Policy),
		sequenceLocks: newKeyedMutex(),
		tracer:        otel.Tracer("gatelog/attendance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PolicyFor returns the classifier policy in effect for the facility.
func (s *Service) PolicyFor(facilityID id.FacilityID) classifier.Policy {
	if p, ok := s.policies[facilityID]; ok {
		return p
	}
	return s.defaultPolicy
}

// RecordEventInput carries one gate swipe into the write path. Day is
// optional; when empty it is derived from OccurredAt in the facility's
// policy timezone.
type RecordEventInput struct {
	ResidentID    id.ResidentID
	FacilityID    id.FacilityID
	Kind          models.EventKind
	OccurredAt    time.Time
	Day           id.DayKey
	Status        models.Status
	Source        models.Source
	DeviceID      string
	Shift         string
	Notes         string
	LinkedLeaveID *id.LeaveID
}

// RecordEvent is the sole write path for new events. It serializes writers
// per resident and day, runs the sequencing detector against the prior
// event, and persists the record with whatever status the detector decided.
// A contradictory swipe is stored as unknown, never rejected.
func (s *Service) RecordEvent(ctx context.Context, in RecordEventInput) (*models.EventRecord, error) {
	ctx, span := s.tracer.Start(ctx, "attendance.RecordEvent")
	defer span.End()

	if err := s.checkScope(ctx, in.FacilityID); err != nil {
		return nil, err
	}

	policy := s.PolicyFor(in.FacilityID)
	day := in.Day
	if day == "" {
		day = id.DayOf(in.OccurredAt, policy.Timezone)
	}

	now := requestcontext.Now(ctx)
	record, err := models.NewEvent(
		id.NewEventID(), in.ResidentID, in.FacilityID, day,
		in.Kind, in.OccurredAt, in.Status, in.Source, now)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	record.DeviceID = strings.TrimSpace(in.DeviceID)
	record.Shift = strings.TrimSpace(in.Shift)
	record.Notes = strings.TrimSpace(in.Notes)
	record.LinkedLeaveID = in.LinkedLeaveID
	if operatorID := requestcontext.OperatorID(ctx); !operatorID.IsNil() {
		record.CreatedBy = &operatorID
	}

	unlock := s.sequenceLocks.Lock(sequenceKey(in.FacilityID, in.ResidentID, day))
	defer unlock()

	prior, err := s.events.LastForDay(ctx, in.FacilityID, in.ResidentID, day)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load prior event")
	}

	decision := detector.Decide(record, prior)
	record.Status = decision.Status
	record.AppendNote(decision.Note)

	if err := s.events.Create(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "event already recorded")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist event")
	}

	if s.metrics != nil {
		s.metrics.IncrementEventsRecorded(record.Kind.String(), record.Source.String())
	}
	s.logAudit(ctx, string(audit.EventRecorded), record,
		"kind", record.Kind.String(),
		"status", record.Status.String())

	if decision.Contradiction {
		if s.metrics != nil {
			s.metrics.IncrementAnomalies(record.Kind.String())
		}
		s.logAudit(ctx, string(audit.EventAnomalyDetected), record,
			"reason", decision.Note)
	}

	return record, nil
}

// GetEvent loads a single record within the caller's facility scope. With
// includeDeleted the soft-deleted audit view is visible too.
func (s *Service) GetEvent(ctx context.Context, facilityID id.FacilityID, eventID id.EventID, includeDeleted bool) (*models.EventRecord, error) {
	if err := s.checkScope(ctx, facilityID); err != nil {
		return nil, err
	}
	record, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "event not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load event")
	}
	if record.FacilityID != facilityID {
		return nil, dErrors.New(dErrors.CodeScopeViolation, "event belongs to another facility")
	}
	if record.Deleted && !includeDeleted {
		return nil, dErrors.New(dErrors.CodeNotFound, "event not found")
	}
	return record, nil
}

// checkScope compares the facility named in the call against the facility
// bound to the request context. A mismatch is a fatal scope violation, not
// a validation issue to be flagged and tolerated.
func (s *Service) checkScope(ctx context.Context, facilityID id.FacilityID) error {
	if facilityID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "facility_id is required")
	}
	ctxFacility := requestcontext.FacilityID(ctx)
	if !ctxFacility.IsNil() && ctxFacility != facilityID {
		return dErrors.New(dErrors.CodeScopeViolation, "facility scope mismatch")
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, action string, record *models.EventRecord, attributes ...any) {
	args := append(attributes,
		"event_id", record.ID,
		"resident_id", record.ResidentID,
		"facility_id", record.FacilityID,
		"day", record.Day.String(),
		"action", action,
		"log_type", "audit")
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, action, args...)
	}
	if s.auditPublisher == nil {
		return
	}
	event := audit.Event{
		FacilityID: record.FacilityID,
		ResidentID: record.ResidentID,
		Subject:    record.ID.String(),
		Action:     action,
		Reason:     attrs.ExtractString(attributes, "reason"),
		RequestID:  requestcontext.RequestID(ctx),
	}
	if operatorID := requestcontext.OperatorID(ctx); !operatorID.IsNil() {
		event.ActorID = operatorID.String()
	}
	_ = s.auditPublisher.Emit(ctx, event)
}
