package alerts

import (
	"sync"
	"time"

	"oracleguard/internal/model"
)

// Store is the bounded in-memory ring of recently generated alerts. An
// alert counts as generated once it lands here, independent of any
// persistence or notification outcome.
type Store struct {
	mu    sync.RWMutex
	buf   []model.Alert
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{limit: limit}
}

func (s *Store) Add(alert model.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, alert)
		return
	}
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = alert
}

// List returns up to limit alerts, newest first, optionally filtered by
// feed name (empty feed matches all).
func (s *Store) List(limit int, feed string) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.buf) {
		limit = len(s.buf)
	}
	out := make([]model.Alert, 0, limit)
	for i := len(s.buf) - 1; i >= 0 && len(out) < limit; i-- {
		if feed != "" && s.buf[i].FeedName != feed {
			continue
		}
		out = append(out, s.buf[i])
	}
	return out
}

// Since returns alerts generated at or after ts, newest first.
func (s *Store) Since(ts time.Time) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Alert, 0)
	for i := len(s.buf) - 1; i >= 0; i-- {
		if s.buf[i].Timestamp.Before(ts) {
			continue
		}
		out = append(out, s.buf[i])
	}
	return out
}

// Get returns the alert with the given id, if still in the ring.
func (s *Store) Get(id string) (model.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.buf) - 1; i >= 0; i-- {
		if s.buf[i].ID == id {
			return s.buf[i], true
		}
	}
	return model.Alert{}, false
}

// Acknowledge marks an alert acknowledged in place.
func (s *Store) Acknowledge(id, by string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.buf) - 1; i >= 0; i-- {
		if s.buf[i].ID == id {
			s.buf[i].Acknowledged = true
			s.buf[i].AcknowledgedBy = by
			return true
		}
	}
	return false
}

// Resolve updates an alert's resolution status in place.
func (s *Store) Resolve(id, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.buf) - 1; i >= 0; i-- {
		if s.buf[i].ID == id {
			s.buf[i].ResolutionStatus = status
			return true
		}
	}
	return false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buf)
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
}
