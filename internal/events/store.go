package events

import (
	"sync"

	"github.com/upeu-eventos/gateway/internal/models"
)

// EventViewUpdated is the realtime event name for a merged view.
const EventViewUpdated = "event_view_updated"

// Publisher receives every merged view (e.g. the realtime hub).
type Publisher interface {
	BroadcastToEventAndPublish(eventID int64, event string, payload interface{})
}

// Store holds the current event views. All writes replace whole values under
// the mutex and are keyed by event ID. Each base-list load starts a new
// generation; merges from an older generation are dropped so a slow fetch can
// never overwrite newer state.
type Store struct {
	mu         sync.RWMutex
	order      []int64
	views      map[int64]models.EventView
	generation uint64
	pub        Publisher
}

// NewStore creates an empty store. pub may be nil.
func NewStore(pub Publisher) *Store {
	return &Store{views: make(map[int64]models.EventView), pub: pub}
}

// Reset installs a new base list and returns its generation.
func (s *Store) Reset(views []models.EventView) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.order = make([]int64, 0, len(views))
	s.views = make(map[int64]models.EventView, len(views))
	for _, v := range views {
		if _, dup := s.views[v.ID]; dup {
			continue
		}
		s.order = append(s.order, v.ID)
		s.views[v.ID] = v
	}
	return s.generation
}

// Generation returns the current generation.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Loaded reports whether a base list was ever installed.
func (s *Store) Loaded() bool {
	return s.Generation() > 0
}

// Merge applies fn to a copy of the view with the given ID and stores the result.
// It returns false when the event is gone or gen is stale.
func (s *Store) Merge(gen uint64, id int64, fn func(v *models.EventView)) bool {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return false
	}
	v, ok := s.views[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	fn(&v)
	s.views[id] = v
	pub := s.pub
	s.mu.Unlock()

	if pub != nil {
		pub.BroadcastToEventAndPublish(id, EventViewUpdated, v)
	}
	return true
}

// Put replaces the view with the same ID, or prepends it when new.
func (s *Store) Put(v models.EventView) {
	s.mu.Lock()
	if _, ok := s.views[v.ID]; !ok {
		s.order = append([]int64{v.ID}, s.order...)
	}
	s.views[v.ID] = v
	if s.generation == 0 {
		s.generation = 1
	}
	pub := s.pub
	s.mu.Unlock()

	if pub != nil {
		pub.BroadcastToEventAndPublish(v.ID, EventViewUpdated, v)
	}
}

// Get returns one view.
func (s *Store) Get(id int64) (models.EventView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[id]
	return v, ok
}

// List returns the views in display order.
func (s *Store) List() []models.EventView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.EventView, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.views[id])
	}
	return out
}

// Remove deletes a view and reports its former position for Reinsert.
func (s *Store) Remove(id int64) (models.EventView, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.views[id]
	if !ok {
		return models.EventView{}, -1, false
	}
	delete(s.views, id)
	idx := -1
	for i, oid := range s.order {
		if oid == id {
			idx = i
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return v, idx, true
}

// Reinsert restores a removed view at its former position unless it reappeared meanwhile.
func (s *Store) Reinsert(v models.EventView, idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.views[v.ID]; ok {
		return
	}
	if idx < 0 || idx > len(s.order) {
		idx = len(s.order)
	}
	order := make([]int64, 0, len(s.order)+1)
	order = append(order, s.order[:idx]...)
	order = append(order, v.ID)
	order = append(order, s.order[idx:]...)
	s.order = order
	s.views[v.ID] = v
}
