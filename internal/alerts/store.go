package alerts

import (
	"sync"
	"time"

	"sentinel/internal/model"
)

// Store holds generated alerts in two views: a pending queue consumed by
// pull-based clients, and a bounded ring of recent alerts for display.
type Store struct {
	mu      sync.RWMutex
	pending []model.Alert
	recent  []model.Alert
	limit   int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{limit: limit}
}

// Add queues the alert for pull consumers and records it in the recent ring.
func (s *Store) Add(alert model.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, alert)
	if len(s.recent) < s.limit {
		s.recent = append(s.recent, alert)
		return
	}
	copy(s.recent, s.recent[1:])
	s.recent[len(s.recent)-1] = alert
}

// Next removes and returns up to n pending alerts in arrival order.
func (s *Store) Next(n int) []model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.pending) {
		n = len(s.pending)
	}
	if n == 0 {
		return nil
	}
	out := make([]model.Alert, n)
	copy(out, s.pending[:n])
	s.pending = s.pending[n:]
	return out
}

// DrainAll removes and returns every pending alert.
func (s *Store) DrainAll() []model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

// Pending reports how many alerts wait for a pull consumer.
func (s *Store) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// Recent returns the newest alerts up to limit, oldest first.
func (s *Store) Recent(limit int) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]model.Alert, 0, limit)
	for i := len(s.recent) - limit; i < len(s.recent); i++ {
		out = append(out, s.recent[i])
	}
	return out
}

// Since returns recent alerts at or after ts.
func (s *Store) Since(ts time.Time) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Alert, 0)
	for _, a := range s.recent {
		if !a.Timestamp.Before(ts) {
			out = append(out, a)
		}
	}
	return out
}

// Clear discards both views.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	s.recent = nil
}
