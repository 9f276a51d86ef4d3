package portfolio

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStateStore keeps risk state in process memory. State is lost on
// restart.
type MemoryStateStore struct {
	mu        sync.RWMutex
	cooldowns map[string]time.Time
	dayBal    map[string]float64 // key = userID + "|" + day
}

// NewMemoryStateStore creates an empty store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		cooldowns: make(map[string]time.Time),
		dayBal:    make(map[string]float64),
	}
}

func (s *MemoryStateStore) Cooldown(_ context.Context, userID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	until, ok := s.cooldowns[userID]
	return until, ok, nil
}

func (s *MemoryStateStore) SetCooldown(_ context.Context, userID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldowns[userID] = until
	return nil
}

func (s *MemoryStateStore) ClearCooldown(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cooldowns, userID)
	return nil
}

func (s *MemoryStateStore) DayStartBalance(_ context.Context, userID, day string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.dayBal[userID+"|"+day]
	return b, ok, nil
}

// SetDayStartBalance stores the snapshot and drops the user's older days.
func (s *MemoryStateStore) SetDayStartBalance(_ context.Context, userID, day string, balance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := userID + "|"
	for k := range s.dayBal {
		if d, ok := strings.CutPrefix(k, prefix); ok && d < day {
			delete(s.dayBal, k)
		}
	}
	s.dayBal[prefix+day] = balance
	return nil
}
