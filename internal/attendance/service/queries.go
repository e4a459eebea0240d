package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gatelog/internal/attendance/models"
	id "gatelog/pkg/domain"
	dErrors "gatelog/pkg/domain-errors"
	"gatelog/pkg/platform/sentinel"
)

// rollupTTL bounds cache staleness for status counts. Rollups are read far
// more often than the underlying days change, so a short TTL is enough.
const rollupTTL = 5 * time.Minute

// ListDayEvents returns the raw event sequence for one resident and day,
// ordered by occurrence. With includeDeleted the soft-deleted audit trail
// is visible too.
func (s *Service) ListDayEvents(ctx context.Context, facilityID id.FacilityID, residentID id.ResidentID, day id.DayKey, includeDeleted bool) ([]*models.EventRecord, error) {
	if err := s.checkScope(ctx, facilityID); err != nil {
		return nil, err
	}
	events, err := s.events.ListDay(ctx, facilityID, residentID, day, includeDeleted)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list day events")
	}
	return events, nil
}

// ListResidentEvents returns the resident's events inside the range.
func (s *Service) ListResidentEvents(ctx context.Context, facilityID id.FacilityID, residentID id.ResidentID, rng id.DateRange, includeDeleted bool) ([]*models.EventRecord, error) {
	if err := s.checkScope(ctx, facilityID); err != nil {
		return nil, err
	}
	events, err := s.events.ListRange(ctx, facilityID, residentID, rng, includeDeleted)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events")
	}
	return events, nil
}

// GetDailyStatus collapses each day in the range to its authoritative
// summary. The last non-deleted event of a day wins; days with no events
// produce no summary at all rather than a synthesized absent.
func (s *Service) GetDailyStatus(ctx context.Context, facilityID id.FacilityID, residentID id.ResidentID, rng id.DateRange) ([]models.DailySummary, error) {
	if err := s.checkScope(ctx, facilityID); err != nil {
		return nil, err
	}
	events, err := s.events.ListRange(ctx, facilityID, residentID, rng, false)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events")
	}
	return summarizeByDay(events), nil
}

// summarizeByDay folds an occurrence-ordered event list into one summary
// per day. Input must already exclude deleted records.
func summarizeByDay(events []*models.EventRecord) []models.DailySummary {
	var summaries []models.DailySummary
	for _, e := range events {
		if len(summaries) == 0 || summaries[len(summaries)-1].Day != e.Day {
			summaries = append(summaries, models.DailySummary{ResidentID: e.ResidentID, Day: e.Day})
		}
		last := &summaries[len(summaries)-1]
		last.Status = e.Status
		last.Kind = e.Kind
		last.OccurredAt = e.OccurredAt
		last.EventCount++
		if len(e.ValidationIssues) > 0 {
			last.HasIssues = true
		}
	}
	return summaries
}

// GetStatusCounts rolls the range up into per-status day counts and the
// attendance percentage. Results are cached briefly; cache trouble is
// logged and absorbed, the rollup is recomputed.
func (s *Service) GetStatusCounts(ctx context.Context, facilityID id.FacilityID, residentID id.ResidentID, rng id.DateRange) (models.StatusRollup, error) {
	if err := s.checkScope(ctx, facilityID); err != nil {
		return models.StatusRollup{}, err
	}

	key := rollupCacheKey(facilityID, residentID, rng)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			var rollup models.StatusRollup
			if err := json.Unmarshal(raw, &rollup); err == nil {
				return rollup, nil
			}
		} else if !errors.Is(err, sentinel.ErrNotFound) && s.logger != nil {
			s.logger.WarnContext(ctx, "rollup cache read failed", "error", err)
		}
	}

	summaries, err := s.GetDailyStatus(ctx, facilityID, residentID, rng)
	if err != nil {
		return models.StatusRollup{}, err
	}
	rollup := models.RollupFromSummaries(summaries)

	if s.cache != nil {
		if raw, err := json.Marshal(rollup); err == nil {
			if err := s.cache.Set(ctx, key, raw, rollupTTL); err != nil && s.logger != nil {
				s.logger.WarnContext(ctx, "rollup cache write failed", "error", err)
			}
		}
	}
	return rollup, nil
}

func rollupCacheKey(facilityID id.FacilityID, residentID id.ResidentID, rng id.DateRange) string {
	return fmt.Sprintf("gatelog:rollup:%s:%s:%s:%s", facilityID, residentID, rng.From, rng.To)
}

// GetFacilityDayReport aggregates authoritative statuses across every
// resident of the facility for one day.
func (s *Service) GetFacilityDayReport(ctx context.Context, facilityID id.FacilityID, day id.DayKey) (models.FacilityDayReport, error) {
	if err := s.checkScope(ctx, facilityID); err != nil {
		return models.FacilityDayReport{}, err
	}
	events, err := s.events.ListFacilityDay(ctx, facilityID, day)
	if err != nil {
		return models.FacilityDayReport{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list facility day")
	}

	// Last event per resident wins, same rule as the per-resident summary.
	lastByResident := make(map[id.ResidentID]*models.EventRecord)
	for _, e := range events {
		prev, ok := lastByResident[e.ResidentID]
		if !ok || e.OccurredAt.After(prev.OccurredAt) {
			lastByResident[e.ResidentID] = e
		}
	}

	report := models.FacilityDayReport{
		FacilityID: facilityID,
		Day:        day,
		Residents:  len(lastByResident),
		ByStatus:   make(map[models.Status]int),
	}
	for _, e := range lastByResident {
		report.ByStatus[e.Status]++
	}
	return report, nil
}

// GetUnreconciled returns the operator work queue for the facility:
// non-deleted, unreconciled records with unknown status or attached issues.
func (s *Service) GetUnreconciled(ctx context.Context, facilityID id.FacilityID, rng id.DateRange) ([]*models.EventRecord, error) {
	if err := s.checkScope(ctx, facilityID); err != nil {
		return nil, err
	}
	events, err := s.events.ListUnreconciled(ctx, facilityID, rng)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list reconciliation queue")
	}
	return events, nil
}
