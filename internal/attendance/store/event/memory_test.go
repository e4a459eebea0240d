package event

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"gatelog/internal/attendance/models"
	id "gatelog/pkg/domain"
	"gatelog/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store    *InMemoryStore
	facility id.FacilityID
	resident id.ResidentID
	day      id.DayKey
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.facility = id.FacilityID(uuid.New())
	s.resident = id.ResidentID(uuid.New())
	s.day = "2025-06-02"
}

func (s *InMemoryStoreSuite) newEvent(kind models.EventKind, at time.Time) *models.EventRecord {
	now := time.Now()
	record, err := models.NewEvent(
		id.NewEventID(), s.resident, s.facility, s.day, kind, at,
		models.StatusPresent, models.SourceBiometric, now)
	s.Require().NoError(err)
	return record
}

func (s *InMemoryStoreSuite) at(hour int) time.Time {
	day, err := s.day.Time(time.UTC)
	s.Require().NoError(err)
	return day.Add(time.Duration(hour) * time.Hour)
}

func (s *InMemoryStoreSuite) TestCreateAndFind() {
	ctx := context.Background()

	s.Run("round trips a record", func() {
		record := s.newEvent(models.KindEntry, s.at(9))
		s.Require().NoError(s.store.Create(ctx, record))

		found, err := s.store.FindByID(ctx, record.ID)
		s.Require().NoError(err)
		s.Equal(record.ID, found.ID)
		s.Equal(record.OccurredAt, found.OccurredAt)
	})

	s.Run("duplicate id conflicts", func() {
		record := s.newEvent(models.KindEntry, s.at(9))
		s.Require().NoError(s.store.Create(ctx, record))
		s.ErrorIs(s.store.Create(ctx, record), sentinel.ErrConflict)
	})

	s.Run("unknown id is not found", func() {
		_, err := s.store.FindByID(ctx, id.NewEventID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returned record is a copy", func() {
		record := s.newEvent(models.KindEntry, s.at(9))
		s.Require().NoError(s.store.Create(ctx, record))

		found, err := s.store.FindByID(ctx, record.ID)
		s.Require().NoError(err)
		found.Notes = "mutated by caller"

		again, err := s.store.FindByID(ctx, record.ID)
		s.Require().NoError(err)
		s.Empty(again.Notes)
	})
}

func (s *InMemoryStoreSuite) TestLastForDay() {
	ctx := context.Background()

	s.Run("empty day returns nil without error", func() {
		last, err := s.store.LastForDay(ctx, s.facility, s.resident, s.day)
		s.Require().NoError(err)
		s.Nil(last)
	})

	s.Run("returns latest by occurred_at regardless of insert order", func() {
		later := s.newEvent(models.KindExit, s.at(17))
		earlier := s.newEvent(models.KindEntry, s.at(9))
		s.Require().NoError(s.store.Create(ctx, later))
		s.Require().NoError(s.store.Create(ctx, earlier))

		last, err := s.store.LastForDay(ctx, s.facility, s.resident, s.day)
		s.Require().NoError(err)
		s.Equal(later.ID, last.ID)
	})

	s.Run("skips deleted events", func() {
		kept := s.newEvent(models.KindEntry, s.at(9))
		dropped := s.newEvent(models.KindExit, s.at(17))
		operator := id.OperatorID(uuid.New())
		dropped.ApplySoftDelete(operator, time.Now())
		s.Require().NoError(s.store.Create(ctx, kept))
		s.Require().NoError(s.store.Create(ctx, dropped))

		last, err := s.store.LastForDay(ctx, s.facility, s.resident, s.day)
		s.Require().NoError(err)
		s.Equal(kept.ID, last.ID)
	})

	s.Run("scoped to facility", func() {
		record := s.newEvent(models.KindEntry, s.at(9))
		s.Require().NoError(s.store.Create(ctx, record))

		last, err := s.store.LastForDay(ctx, id.FacilityID(uuid.New()), s.resident, s.day)
		s.Require().NoError(err)
		s.Nil(last)
	})
}

func (s *InMemoryStoreSuite) TestListDay() {
	ctx := context.Background()

	first := s.newEvent(models.KindEntry, s.at(9))
	second := s.newEvent(models.KindExit, s.at(17))
	deleted := s.newEvent(models.KindEntry, s.at(19))
	deleted.ApplySoftDelete(id.OperatorID(uuid.New()), time.Now())

	s.Require().NoError(s.store.Create(ctx, second))
	s.Require().NoError(s.store.Create(ctx, first))
	s.Require().NoError(s.store.Create(ctx, deleted))

	s.Run("orders ascending and excludes deleted", func() {
		events, err := s.store.ListDay(ctx, s.facility, s.resident, s.day, false)
		s.Require().NoError(err)
		s.Require().Len(events, 2)
		s.Equal(first.ID, events[0].ID)
		s.Equal(second.ID, events[1].ID)
	})

	s.Run("include_deleted returns the full audit trail", func() {
		events, err := s.store.ListDay(ctx, s.facility, s.resident, s.day, true)
		s.Require().NoError(err)
		s.Len(events, 3)
	})
}

func (s *InMemoryStoreSuite) TestListUnreconciled() {
	ctx := context.Background()
	rng := id.DateRange{From: "2025-06-01", To: "2025-06-30"}

	clean := s.newEvent(models.KindEntry, s.at(9))

	flagged := s.newEvent(models.KindExit, s.at(10))
	flagged.Status = models.StatusUnknown

	withIssue := s.newEvent(models.KindEntry, s.at(11))
	withIssue.ValidationIssues = []models.ValidationIssue{
		models.NewIssue(models.IssueMissingOut, "day closed with an ENTRY and no matching EXIT", nil),
	}

	reconciled := s.newEvent(models.KindExit, s.at(12))
	reconciled.Status = models.StatusUnknown
	reconciled.ApplyReconciliation(id.OperatorID(uuid.New()), "verified manually", time.Now())

	for _, r := range []*models.EventRecord{clean, flagged, withIssue, reconciled} {
		s.Require().NoError(s.store.Create(ctx, r))
	}

	queue, err := s.store.ListUnreconciled(ctx, s.facility, rng)
	s.Require().NoError(err)
	s.Require().Len(queue, 2)
	s.Equal(flagged.ID, queue[0].ID)
	s.Equal(withIssue.ID, queue[1].ID)
}

func (s *InMemoryStoreSuite) TestReplaceIssues() {
	ctx := context.Background()
	record := s.newEvent(models.KindEntry, s.at(9))
	s.Require().NoError(s.store.Create(ctx, record))

	issues := []models.ValidationIssue{
		models.NewIssue(models.IssueUnusualTime, "event outside gate hours", nil),
	}
	s.Require().NoError(s.store.ReplaceIssues(ctx, record.ID, issues))

	found, err := s.store.FindByID(ctx, record.ID)
	s.Require().NoError(err)
	s.Require().Len(found.ValidationIssues, 1)
	s.Equal(models.IssueUnusualTime, found.ValidationIssues[0].Kind)

	s.Run("replacement is idempotent", func() {
		s.Require().NoError(s.store.ReplaceIssues(ctx, record.ID, issues))
		found, err := s.store.FindByID(ctx, record.ID)
		s.Require().NoError(err)
		s.Len(found.ValidationIssues, 1)
	})

	s.Run("unknown event is not found", func() {
		s.ErrorIs(s.store.ReplaceIssues(ctx, id.NewEventID(), issues), sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestExecute() {
	ctx := context.Background()
	record := s.newEvent(models.KindEntry, s.at(9))
	s.Require().NoError(s.store.Create(ctx, record))
	operator := id.OperatorID(uuid.New())

	s.Run("validate failure leaves record untouched", func() {
		_, err := s.store.Execute(ctx, record.ID,
			func(*models.EventRecord) error { return sentinel.ErrInvalidState },
			func(e *models.EventRecord) { e.Deleted = true },
		)
		s.ErrorIs(err, sentinel.ErrInvalidState)

		found, err := s.store.FindByID(ctx, record.ID)
		s.Require().NoError(err)
		s.False(found.Deleted)
	})

	s.Run("mutation applies under the lock", func() {
		now := time.Now()
		updated, err := s.store.Execute(ctx, record.ID,
			func(e *models.EventRecord) error { return e.CanReconcile() },
			func(e *models.EventRecord) { e.ApplyReconciliation(operator, "checked", now) },
		)
		s.Require().NoError(err)
		s.True(updated.Reconciled)
		s.Equal(&operator, updated.ReconciledBy)
		s.NotNil(updated.ReconciledAt)
		s.Equal("checked", updated.ReconciliationNotes)
	})
}
