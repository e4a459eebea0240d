package event

import (
	"context"
	"sort"
	"sync"

	"gatelog/internal/attendance/models"
	id "gatelog/pkg/domain"
	"gatelog/pkg/platform/sentinel"
)

// InMemoryStore keeps event records in a mutex-guarded map. It backs unit
// tests and single-node development; the postgres store is the production
// implementation.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.EventID]*models.EventRecord
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.EventID]*models.EventRecord)}
}

func (s *InMemoryStore) Create(_ context.Context, record *models.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[record.ID]; exists {
		return sentinel.ErrConflict
	}
	s.events[record.ID] = record.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, eventID id.EventID) (*models.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.events[eventID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return record.Clone(), nil
}

// LastForDay returns the most recent non-deleted event for the resident and
// day by OccurredAt, or nil when the day has no earlier events.
func (s *InMemoryStore) LastForDay(_ context.Context, facilityID id.FacilityID, residentID id.ResidentID, day id.DayKey) (*models.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *models.EventRecord
	for _, e := range s.events {
		if e.Deleted || e.FacilityID != facilityID || e.ResidentID != residentID || e.Day != day {
			continue
		}
		if last == nil || e.OccurredAt.After(last.OccurredAt) {
			last = e
		}
	}
	if last == nil {
		return nil, nil
	}
	return last.Clone(), nil
}

// ListDay returns the day's sequence ordered by OccurredAt ascending.
func (s *InMemoryStore) ListDay(_ context.Context, facilityID id.FacilityID, residentID id.ResidentID, day id.DayKey, includeDeleted bool) ([]*models.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.EventRecord
	for _, e := range s.events {
		if e.FacilityID != facilityID || e.ResidentID != residentID || e.Day != day {
			continue
		}
		if e.Deleted && !includeDeleted {
			continue
		}
		out = append(out, e.Clone())
	}
	sortByOccurredAt(out)
	return out, nil
}

// ListRange returns events for the resident inside the inclusive range,
// ordered by day then OccurredAt.
func (s *InMemoryStore) ListRange(_ context.Context, facilityID id.FacilityID, residentID id.ResidentID, rng id.DateRange, includeDeleted bool) ([]*models.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.EventRecord
	for _, e := range s.events {
		if e.FacilityID != facilityID || e.ResidentID != residentID || !rng.Contains(e.Day) {
			continue
		}
		if e.Deleted && !includeDeleted {
			continue
		}
		out = append(out, e.Clone())
	}
	sortByOccurredAt(out)
	return out, nil
}

// ListFacilityDay returns all non-deleted events for every resident of the
// facility on the given day.
func (s *InMemoryStore) ListFacilityDay(_ context.Context, facilityID id.FacilityID, day id.DayKey) ([]*models.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.EventRecord
	for _, e := range s.events {
		if e.Deleted || e.FacilityID != facilityID || e.Day != day {
			continue
		}
		out = append(out, e.Clone())
	}
	sortByOccurredAt(out)
	return out, nil
}

// ListUnreconciled selects the operator queue: non-deleted, unreconciled
// records whose status is unknown or that carry issues.
func (s *InMemoryStore) ListUnreconciled(_ context.Context, facilityID id.FacilityID, rng id.DateRange) ([]*models.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.EventRecord
	for _, e := range s.events {
		if e.FacilityID != facilityID || !rng.Contains(e.Day) {
			continue
		}
		if !e.NeedsReconciliation() {
			continue
		}
		out = append(out, e.Clone())
	}
	sortByOccurredAt(out)
	return out, nil
}

// ReplaceIssues swaps the validation issues of an event. The sweep computes
// a full-day result, so replacement keeps repeated sweeps idempotent.
func (s *InMemoryStore) ReplaceIssues(_ context.Context, eventID id.EventID, issues []models.ValidationIssue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.events[eventID]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.ValidationIssues = make([]models.ValidationIssue, len(issues))
	copy(record.ValidationIssues, issues)
	return nil
}

// Execute runs validate then mutate on the record under the store lock so
// the decision is made against a consistent view. Returns the updated
// record.
func (s *InMemoryStore) Execute(_ context.Context, eventID id.EventID, validate func(*models.EventRecord) error, mutate func(*models.EventRecord)) (*models.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.events[eventID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(record); err != nil {
		return nil, err
	}
	mutate(record)
	return record.Clone(), nil
}

func sortByOccurredAt(events []*models.EventRecord) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Day != events[j].Day {
			return events[i].Day < events[j].Day
		}
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
}
