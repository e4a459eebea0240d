package service

import (
	"fmt"
	"sync"

	id "gatelog/pkg/domain"
)

// keyedMutex serializes writers per (facility, resident, day) so the
// read-prior-then-write step in RecordEvent sees a settled sequence. Two
// swipes for different residents never contend; two for the same resident
// and day always do.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*entry)}
}

func sequenceKey(facilityID id.FacilityID, residentID id.ResidentID, day id.DayKey) string {
	return fmt.Sprintf("%s|%s|%s", facilityID, residentID, day)
}

// Lock acquires the mutex for the key and returns its unlock function.
// Entries are reference counted and removed once the last holder releases,
// so the map does not grow with the number of days seen.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
