package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"gatelog/internal/attendance/classifier"
	"gatelog/internal/attendance/models"
	"gatelog/internal/audit"
	id "gatelog/pkg/domain"
	dErrors "gatelog/pkg/domain-errors"
)

// sweepConcurrency bounds parallel per-resident classification during a
// facility sweep.
const sweepConcurrency = 8

// ClassifyDay runs the validation pass for one resident's day and returns
// the issues without persisting anything. Callers use it to preview what a
// sweep would attach.
func (s *Service) ClassifyDay(ctx context.Context, facilityID id.FacilityID, residentID id.ResidentID, day id.DayKey) (classifier.Result, error) {
	if err := s.checkScope(ctx, facilityID); err != nil {
		return nil, err
	}
	events, err := s.events.ListDay(ctx, facilityID, residentID, day, false)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list day events")
	}
	return classifier.ClassifyDay(events, s.PolicyFor(facilityID)), nil
}

// SweepDay classifies one resident's day and persists the result, replacing
// whatever issues a previous sweep attached. Events whose issues all
// cleared get an explicit empty replacement, so repeated sweeps converge.
// Returns the number of issues attached.
func (s *Service) SweepDay(ctx context.Context, facilityID id.FacilityID, residentID id.ResidentID, day id.DayKey) (int, error) {
	if err := s.checkScope(ctx, facilityID); err != nil {
		return 0, err
	}
	events, err := s.events.ListDay(ctx, facilityID, residentID, day, false)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list day events")
	}
	return s.sweepSequence(ctx, facilityID, events)
}

// SweepFacilityDay classifies every resident of the facility for one day.
// Residents are swept concurrently; the first persistence failure aborts
// the sweep. Returns the total number of issues attached.
func (s *Service) SweepFacilityDay(ctx context.Context, facilityID id.FacilityID, day id.DayKey) (int, error) {
	ctx, span := s.tracer.Start(ctx, "attendance.SweepFacilityDay")
	defer span.End()

	if err := s.checkScope(ctx, facilityID); err != nil {
		return 0, err
	}
	events, err := s.events.ListFacilityDay(ctx, facilityID, day)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list facility day")
	}

	byResident := make(map[id.ResidentID][]*models.EventRecord)
	for _, e := range events {
		byResident[e.ResidentID] = append(byResident[e.ResidentID], e)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	totals := make(chan int, len(byResident))
	for _, sequence := range byResident {
		g.Go(func() error {
			n, err := s.sweepSequence(gctx, facilityID, sequence)
			if err != nil {
				return err
			}
			totals <- n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	close(totals)

	total := 0
	for n := range totals {
		total += n
	}
	if s.metrics != nil {
		s.metrics.SweepRuns.Inc()
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(audit.EventSweepCompleted),
			"facility_id", facilityID,
			"day", day.String(),
			"residents", len(byResident),
			"issues", total,
			"log_type", "audit")
	}
	return total, nil
}

// sweepSequence classifies one already-loaded day sequence and persists
// per-event issue replacements.
func (s *Service) sweepSequence(ctx context.Context, facilityID id.FacilityID, events []*models.EventRecord) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	result := classifier.ClassifyDay(events, s.PolicyFor(facilityID))

	total := 0
	for _, e := range events {
		issues := result.Issues(e.ID)
		if err := s.events.ReplaceIssues(ctx, e.ID, issues); err != nil {
			return total, dErrors.Wrap(err, dErrors.CodeInternal, "failed to attach issues")
		}
		total += len(issues)
		for _, issue := range issues {
			if s.metrics != nil {
				s.metrics.IncrementIssues(string(issue.Kind))
			}
		}
		if len(issues) > 0 {
			s.logAudit(ctx, string(audit.EventIssuesAttached), e, "issue_count", len(issues))
		}
	}
	return total, nil
}
