package service

import (
	"sync"
	"time"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// runStore keeps generation runs in memory until they expire.
type runStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]models.GenerationRun
	now   func() time.Time
}

func newRunStore(ttl time.Duration) *runStore {
	return &runStore{
		ttl:   ttl,
		items: make(map[string]models.GenerationRun),
		now:   time.Now,
	}
}

func (s *runStore) Save(run models.GenerationRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[run.ID] = run
}

// Update applies fn to a stored run. It reports false when the run is unknown.
func (s *runStore) Update(id string, fn func(*models.GenerationRun)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.items[id]
	if !ok {
		return false
	}
	fn(&run)
	s.items[id] = run
	return true
}

func (s *runStore) Get(id string) (models.GenerationRun, bool) {
	s.mu.RLock()
	run, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return models.GenerationRun{}, false
	}
	if s.expired(run, s.now()) {
		s.Delete(id)
		return models.GenerationRun{}, false
	}
	return run, true
}

func (s *runStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// Purge drops every expired run and returns how many were removed.
func (s *runStore) Purge() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, run := range s.items {
		if s.expired(run, now) {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}

// expired only applies to finished runs; queued and running ones stay visible.
func (s *runStore) expired(run models.GenerationRun, now time.Time) bool {
	if run.FinishedAt == nil {
		return false
	}
	return now.Sub(*run.FinishedAt) > s.ttl
}
