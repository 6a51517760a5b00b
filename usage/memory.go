package usage

import (
	"context"
	"sync"
	"time"
)

type memoryUser struct {
	period   string
	analyses int
	cost     float64
	requests []time.Time
}

// MemoryStore keeps usage in process. A single mutex serializes all
// updates, which keeps the increment-and-check atomic.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*memoryUser
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*memoryUser)}
}

// user returns the record for userID, resetting counters on period rollover.
// Callers hold s.mu.
func (s *MemoryStore) user(userID, period string) *memoryUser {
	u, ok := s.users[userID]
	if !ok {
		u = &memoryUser{period: period}
		s.users[userID] = u
	}
	if period != "" && u.period != period {
		u.period = period
		u.analyses = 0
		u.cost = 0
	}
	return u
}

func (s *MemoryStore) Usage(_ context.Context, userID, period string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Record{UserID: userID, Period: period}
	if u, ok := s.users[userID]; ok && u.period == period {
		rec.Analyses = u.analyses
		rec.Cost = u.cost
	}
	return rec, nil
}

func (s *MemoryStore) IncrementAnalyses(_ context.Context, userID, period string, limit int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.user(userID, period)
	if limit > 0 && u.analyses >= limit {
		return u.analyses, false, nil
	}
	u.analyses++
	return u.analyses, true, nil
}

func (s *MemoryStore) ReleaseAnalysis(_ context.Context, userID, period string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u := s.user(userID, period); u.analyses > 0 {
		u.analyses--
	}
	return nil
}

func (s *MemoryStore) AddCost(_ context.Context, userID, period string, cost float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user(userID, period).cost += cost
	return nil
}

func (s *MemoryStore) AppendRequest(_ context.Context, userID string, now time.Time, window time.Duration, limit int) (bool, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.user(userID, "")
	u.requests = prune(u.requests, now.Add(-window))
	if limit > 0 && len(u.requests) >= limit {
		return false, oldest(u.requests), nil
	}
	u.requests = append(u.requests, now)
	return true, time.Time{}, nil
}

func (s *MemoryStore) Requests(_ context.Context, userID string, now time.Time, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return 0, nil
	}
	u.requests = prune(u.requests, now.Add(-window))
	return len(u.requests), nil
}

// prune drops timestamps at or before cutoff.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func oldest(ts []time.Time) time.Time {
	var o time.Time
	for i, t := range ts {
		if i == 0 || t.Before(o) {
			o = t
		}
	}
	return o
}
