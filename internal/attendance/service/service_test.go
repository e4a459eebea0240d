package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"gatelog/internal/attendance/detector"
	"gatelog/internal/attendance/models"
	"gatelog/internal/attendance/store/event"
	"gatelog/internal/audit"
	id "gatelog/pkg/domain"
	dErrors "gatelog/pkg/domain-errors"
	"gatelog/pkg/platform/sentinel"
	"gatelog/pkg/requestcontext"
)

type fakeCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	reads  int
	writes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	raw, ok := c.data[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return raw, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	c.data[key] = value
	return nil
}

type captureAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureAudit) Emit(_ context.Context, e audit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *captureAudit) actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Action)
	}
	return out
}

type ServiceSuite struct {
	suite.Suite
	svc      *Service
	store    *event.InMemoryStore
	cache    *fakeCache
	sink     *captureAudit
	facility id.FacilityID
	resident id.ResidentID
	operator id.OperatorID
	day      id.DayKey
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = event.NewInMemory()
	s.cache = newFakeCache()
	s.sink = &captureAudit{}
	s.svc = New(s.store,
		WithRollupCache(s.cache),
		WithAuditPublisher(s.sink),
	)
	s.facility = id.FacilityID(uuid.New())
	s.resident = id.ResidentID(uuid.New())
	s.operator = id.OperatorID(uuid.New())
	s.day = "2025-06-02"
}

func (s *ServiceSuite) ctx() context.Context {
	return requestcontext.WithFacilityID(context.Background(), s.facility)
}

func (s *ServiceSuite) operatorCtx() context.Context {
	return requestcontext.WithOperatorID(s.ctx(), s.operator)
}

func (s *ServiceSuite) at(hour, minute int) time.Time {
	day, err := s.day.Time(time.UTC)
	s.Require().NoError(err)
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func (s *ServiceSuite) record(kind models.EventKind, at time.Time) *models.EventRecord {
	rec, err := s.svc.RecordEvent(s.ctx(), RecordEventInput{
		ResidentID: s.resident,
		FacilityID: s.facility,
		Kind:       kind,
		OccurredAt: at,
		Day:        s.day,
		Source:     models.SourceBiometric,
	})
	s.Require().NoError(err)
	return rec
}

func (s *ServiceSuite) TestRecordEvent() {
	s.Run("first event of the day is accepted as present", func() {
		rec := s.record(models.KindEntry, s.at(9, 0))
		s.Equal(models.StatusPresent, rec.Status)
		s.Empty(rec.Notes)
		s.False(rec.NeedsReconciliation())
	})

	s.Run("exit after entry is accepted", func() {
		rec := s.record(models.KindExit, s.at(17, 0))
		s.Equal(models.StatusPresent, rec.Status)
	})

	s.Run("exit after exit is stored as unknown with a note", func() {
		rec := s.record(models.KindExit, s.at(17, 30))
		s.Equal(models.StatusUnknown, rec.Status)
		s.Equal(detector.NoteDuplicateExit, rec.Notes)
		s.True(rec.NeedsReconciliation())
	})

	s.Run("contradiction emits an anomaly audit event", func() {
		s.Contains(s.sink.actions(), string(audit.EventAnomalyDetected))
	})
}

func (s *ServiceSuite) TestRecordEvent_DerivesDayFromTimestamp() {
	rec, err := s.svc.RecordEvent(s.ctx(), RecordEventInput{
		ResidentID: s.resident,
		FacilityID: s.facility,
		Kind:       models.KindEntry,
		OccurredAt: time.Date(2025, 6, 3, 8, 15, 0, 0, time.UTC),
		Source:     models.SourceBiometric,
	})
	s.Require().NoError(err)
	s.Equal(id.DayKey("2025-06-03"), rec.Day)
}

func (s *ServiceSuite) TestRecordEvent_EntryAfterEntry() {
	s.record(models.KindEntry, s.at(9, 0))
	rec := s.record(models.KindEntry, s.at(10, 0))
	s.Equal(models.StatusUnknown, rec.Status)
	s.Equal(detector.NoteDuplicateEntry, rec.Notes)
}

func (s *ServiceSuite) TestRecordEvent_ExitBeforePriorEntry() {
	s.record(models.KindEntry, s.at(9, 0))
	rec := s.record(models.KindExit, s.at(8, 0))
	s.Equal(models.StatusUnknown, rec.Status)
	s.Equal(detector.NoteExitBeforeIn, rec.Notes)
}

func (s *ServiceSuite) TestRecordEvent_ScopeAndValidation() {
	s.Run("facility mismatch with context scope is a scope violation", func() {
		_, err := s.svc.RecordEvent(s.ctx(), RecordEventInput{
			ResidentID: s.resident,
			FacilityID: id.FacilityID(uuid.New()),
			Kind:       models.KindEntry,
			OccurredAt: s.at(9, 0),
			Source:     models.SourceBiometric,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeScopeViolation))
	})

	s.Run("missing resident is a validation error", func() {
		_, err := s.svc.RecordEvent(s.ctx(), RecordEventInput{
			FacilityID: s.facility,
			Kind:       models.KindEntry,
			OccurredAt: s.at(9, 0),
			Source:     models.SourceBiometric,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("operator identity is captured on manual records", func() {
		rec, err := s.svc.RecordEvent(s.operatorCtx(), RecordEventInput{
			ResidentID: s.resident,
			FacilityID: s.facility,
			Kind:       models.KindEntry,
			OccurredAt: s.at(11, 0),
			Day:        "2025-06-09",
			Source:     models.SourceManual,
		})
		s.Require().NoError(err)
		s.Require().NotNil(rec.CreatedBy)
		s.Equal(s.operator, *rec.CreatedBy)
	})
}

func (s *ServiceSuite) TestGetDailyStatus_LastEventWins() {
	s.record(models.KindEntry, s.at(9, 0))
	s.record(models.KindExit, s.at(17, 0))

	rng := id.DateRange{From: s.day, To: s.day}
	summaries, err := s.svc.GetDailyStatus(s.ctx(), s.facility, s.resident, rng)
	s.Require().NoError(err)
	s.Require().Len(summaries, 1)
	s.Equal(models.StatusPresent, summaries[0].Status)
	s.Equal(models.KindExit, summaries[0].Kind)
	s.Equal(2, summaries[0].EventCount)
}

func (s *ServiceSuite) TestGetDailyStatus_SkipsEmptyDays() {
	s.record(models.KindEntry, s.at(9, 0))

	rng := id.DateRange{From: "2025-06-01", To: "2025-06-07"}
	summaries, err := s.svc.GetDailyStatus(s.ctx(), s.facility, s.resident, rng)
	s.Require().NoError(err)
	s.Len(summaries, 1)
}

func (s *ServiceSuite) TestGetStatusCounts() {
	// Three attended days and one the detector flagged.
	for i, day := range []id.DayKey{"2025-06-02", "2025-06-03", "2025-06-04"} {
		_, err := s.svc.RecordEvent(s.ctx(), RecordEventInput{
			ResidentID: s.resident,
			FacilityID: s.facility,
			Kind:       models.KindEntry,
			OccurredAt: time.Date(2025, 6, 2+i, 9, 0, 0, 0, time.UTC),
			Day:        day,
			Source:     models.SourceBiometric,
		})
		s.Require().NoError(err)
	}
	for _, kind := range []models.EventKind{models.KindExit, models.KindExit} {
		_, err := s.svc.RecordEvent(s.ctx(), RecordEventInput{
			ResidentID: s.resident,
			FacilityID: s.facility,
			Kind:       kind,
			OccurredAt: time.Date(2025, 6, 5, 18, 0, 0, 0, time.UTC),
			Day:        "2025-06-05",
			Source:     models.SourceBiometric,
		})
		s.Require().NoError(err)
	}

	rng := id.DateRange{From: "2025-06-01", To: "2025-06-07"}
	rollup, err := s.svc.GetStatusCounts(s.ctx(), s.facility, s.resident, rng)
	s.Require().NoError(err)
	s.Equal(3, rollup.Present)
	s.Equal(1, rollup.Unknown)
	s.Equal(4, rollup.TotalDays)
	s.Equal(75.0, rollup.Percentage)

	s.Run("second read is served from cache", func() {
		writesBefore := s.cache.writes
		again, err := s.svc.GetStatusCounts(s.ctx(), s.facility, s.resident, rng)
		s.Require().NoError(err)
		s.Equal(rollup, again)
		s.Equal(writesBefore, s.cache.writes)
	})
}

func (s *ServiceSuite) TestGetStatusCounts_EmptyRange() {
	rng := id.DateRange{From: "2025-01-01", To: "2025-01-31"}
	rollup, err := s.svc.GetStatusCounts(s.ctx(), s.facility, s.resident, rng)
	s.Require().NoError(err)
	s.Equal(0, rollup.TotalDays)
	s.Equal(0.0, rollup.Percentage)
}

func (s *ServiceSuite) TestSweepDay() {
	s.record(models.KindEntry, s.at(9, 0))
	s.record(models.KindExit, s.at(9, 2))

	attached, err := s.svc.SweepDay(s.ctx(), s.facility, s.resident, s.day)
	s.Require().NoError(err)
	s.Equal(1, attached)

	exit, err := s.svc.ListDayEvents(s.ctx(), s.facility, s.resident, s.day, false)
	s.Require().NoError(err)
	s.Require().Len(exit, 2)
	s.Require().Len(exit[1].ValidationIssues, 1)
	s.Equal(models.IssueShortDuration, exit[1].ValidationIssues[0].Kind)
	s.Empty(exit[0].ValidationIssues)

	s.Run("repeat sweep does not stack issues", func() {
		again, err := s.svc.SweepDay(s.ctx(), s.facility, s.resident, s.day)
		s.Require().NoError(err)
		s.Equal(1, again)

		events, err := s.svc.ListDayEvents(s.ctx(), s.facility, s.resident, s.day, false)
		s.Require().NoError(err)
		s.Len(events[1].ValidationIssues, 1)
	})
}

func (s *ServiceSuite) TestSweepFacilityDay() {
	other := id.ResidentID(uuid.New())
	s.record(models.KindEntry, s.at(9, 0)) // trailing ENTRY, MISSING_OUT

	_, err := s.svc.RecordEvent(s.ctx(), RecordEventInput{
		ResidentID: other,
		FacilityID: s.facility,
		Kind:       models.KindExit, // leading EXIT, MISSING_IN
		OccurredAt: s.at(10, 0),
		Day:        s.day,
		Source:     models.SourceBiometric,
	})
	s.Require().NoError(err)

	total, err := s.svc.SweepFacilityDay(s.ctx(), s.facility, s.day)
	s.Require().NoError(err)
	s.Equal(2, total)
}

func (s *ServiceSuite) TestClassifyDay_IsPure() {
	s.record(models.KindEntry, s.at(9, 0))

	result, err := s.svc.ClassifyDay(s.ctx(), s.facility, s.resident, s.day)
	s.Require().NoError(err)
	s.Len(result, 1)

	events, err := s.svc.ListDayEvents(s.ctx(), s.facility, s.resident, s.day, false)
	s.Require().NoError(err)
	s.Empty(events[0].ValidationIssues)
}

func (s *ServiceSuite) TestReconcile() {
	s.record(models.KindEntry, s.at(9, 0))
	flagged := s.record(models.KindEntry, s.at(10, 0))
	s.Require().Equal(models.StatusUnknown, flagged.Status)

	s.Run("requires operator identity", func() {
		_, err := s.svc.Reconcile(s.ctx(), s.facility, flagged.ID, "verified")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("stamps all audit fields at once", func() {
		rec, err := s.svc.Reconcile(s.operatorCtx(), s.facility, flagged.ID, "warden verified re-entry")
		s.Require().NoError(err)
		s.True(rec.Reconciled)
		s.Require().NotNil(rec.ReconciledBy)
		s.Equal(s.operator, *rec.ReconciledBy)
		s.NotNil(rec.ReconciledAt)
		s.Equal("warden verified re-entry", rec.ReconciliationNotes)
		s.False(rec.NeedsReconciliation())
	})

	s.Run("re-reconcile overwrites the audit trail", func() {
		rec, err := s.svc.Reconcile(s.operatorCtx(), s.facility, flagged.ID, "second pass")
		s.Require().NoError(err)
		s.Equal("second pass", rec.ReconciliationNotes)
	})

	s.Run("wrong facility is a scope violation", func() {
		foreign := id.FacilityID(uuid.New())
		ctx := requestcontext.WithOperatorID(
			requestcontext.WithFacilityID(context.Background(), foreign), s.operator)
		_, err := s.svc.Reconcile(ctx, foreign, flagged.ID, "stolen")
		s.True(dErrors.HasCode(err, dErrors.CodeScopeViolation))
	})

	s.Run("unknown event is not found", func() {
		_, err := s.svc.Reconcile(s.operatorCtx(), s.facility, id.NewEventID(), "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestSoftDelete() {
	rec := s.record(models.KindEntry, s.at(9, 0))

	deleted, err := s.svc.SoftDelete(s.operatorCtx(), s.facility, rec.ID)
	s.Require().NoError(err)
	s.True(deleted.Deleted)
	s.Require().NotNil(deleted.DeletedBy)
	s.Equal(s.operator, *deleted.DeletedBy)

	s.Run("deleting twice is rejected", func() {
		_, err := s.svc.SoftDelete(s.operatorCtx(), s.facility, rec.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("deleted record leaves the daily status", func() {
		rng := id.DateRange{From: s.day, To: s.day}
		summaries, err := s.svc.GetDailyStatus(s.ctx(), s.facility, s.resident, rng)
		s.Require().NoError(err)
		s.Empty(summaries)
	})

	s.Run("deleted record cannot be reconciled", func() {
		_, err := s.svc.Reconcile(s.operatorCtx(), s.facility, rec.ID, "too late")
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("audit view still returns it", func() {
		found, err := s.svc.GetEvent(s.operatorCtx(), s.facility, rec.ID, true)
		s.Require().NoError(err)
		s.True(found.Deleted)

		_, err = s.svc.GetEvent(s.operatorCtx(), s.facility, rec.ID, false)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestGetUnreconciled() {
	s.record(models.KindEntry, s.at(9, 0))
	flagged := s.record(models.KindEntry, s.at(10, 0))

	rng := id.DateRange{From: "2025-06-01", To: "2025-06-30"}
	queue, err := s.svc.GetUnreconciled(s.ctx(), s.facility, rng)
	s.Require().NoError(err)
	s.Require().Len(queue, 1)
	s.Equal(flagged.ID, queue[0].ID)

	_, err = s.svc.Reconcile(s.operatorCtx(), s.facility, flagged.ID, "ok")
	s.Require().NoError(err)

	queue, err = s.svc.GetUnreconciled(s.ctx(), s.facility, rng)
	s.Require().NoError(err)
	s.Empty(queue)
}

func (s *ServiceSuite) TestGetFacilityDayReport() {
	other := id.ResidentID(uuid.New())
	s.record(models.KindEntry, s.at(9, 0))
	s.record(models.KindExit, s.at(17, 0))

	_, err := s.svc.RecordEvent(s.ctx(), RecordEventInput{
		ResidentID: other,
		FacilityID: s.facility,
		Kind:       models.KindEntry,
		OccurredAt: s.at(23, 30),
		Day:        s.day,
		Status:     models.StatusLate,
		Source:     models.SourceManual,
	})
	s.Require().NoError(err)

	report, err := s.svc.GetFacilityDayReport(s.ctx(), s.facility, s.day)
	s.Require().NoError(err)
	s.Equal(2, report.Residents)
	s.Equal(1, report.ByStatus[models.StatusPresent])
	s.Equal(1, report.ByStatus[models.StatusLate])
}
