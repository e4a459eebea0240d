package audit

import (
	"context"
	"sync"

	id "gatelog/pkg/domain"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.ResidentID][]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.ResidentID][]Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.ResidentID][]Event)
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ResidentID] = append(s.events[event.ResidentID], event)
	return nil
}

func (s *InMemoryStore) ListByResident(_ context.Context, residentID id.ResidentID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events[residentID]...), nil
}
