package report

import (
	"errors"
	"sync"
)

// ErrNotFound is returned for lookups of unknown call IDs.
var ErrNotFound = errors.New("report not found")

// Store is the in-process report registry, keyed by call ID. It owns every
// report for the lifetime of the process; nothing is ever deleted. Webhook
// handlers and enrichment workers mutate it concurrently, so all access goes
// through the mutex. Last write wins between a status update and an
// in-flight enrichment update.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*Report
	ordered []string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{byID: make(map[string]*Report)}
}

// Insert adds a report. Inserting an existing ID overwrites the entry but
// keeps its original position in insertion order.
func (s *Store) Insert(r Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[r.ID]; !ok {
		s.ordered = append(s.ordered, r.ID)
	}
	cp := r
	s.byID[r.ID] = &cp
}

// Find returns a copy of the report for id.
func (s *Store) Find(id string) (Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return Report{}, ErrNotFound
	}
	return *r, nil
}

// Update applies mutate to the stored report under the lock and returns the
// resulting copy.
func (s *Store) Update(id string, mutate func(*Report)) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return Report{}, ErrNotFound
	}
	mutate(r)
	return *r, nil
}

// List returns copies of all reports in insertion order.
func (s *Store) List() []Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Report, 0, len(s.ordered))
	for _, id := range s.ordered {
		out = append(out, *s.byID[id])
	}
	return out
}

// Len returns the number of stored reports.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ordered)
}
