package engine

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterStore manages per-user ingest limiters: user_id -> rate limiter
type RateLimiterStore struct {
	limiters     map[string]*userLimiter
	mu           sync.Mutex
	defaultRate  rate.Limit
	defaultBurst int
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	pinned   bool
}

func NewRateLimiterStore(defaultRate rate.Limit, defaultBurst int) *RateLimiterStore {
	return &RateLimiterStore{
		limiters:     make(map[string]*userLimiter),
		defaultRate:  defaultRate,
		defaultBurst: defaultBurst,
	}
}

func (s *RateLimiterStore) GetLimiter(userID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.limiters[userID]
	if !exists {
		entry = &userLimiter{limiter: rate.NewLimiter(s.defaultRate, s.defaultBurst)}
		s.limiters[userID] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (s *RateLimiterStore) Allow(userID string) bool {
	return s.GetLimiter(userID).Allow()
}

// SetLimiter installs an explicit limit; explicit limits survive Prune.
func (s *RateLimiterStore) SetLimiter(userID string, userRate rate.Limit, userBurst int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limiters[userID] = &userLimiter{
		limiter:  rate.NewLimiter(userRate, userBurst),
		lastSeen: time.Now(),
		pinned:   true,
	}
}

// Prune drops default limiters idle for longer than idle and reports how
// many were removed.
func (s *RateLimiterStore) Prune(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	removed := 0
	for userID, entry := range s.limiters {
		if !entry.pinned && entry.lastSeen.Before(cutoff) {
			delete(s.limiters, userID)
			removed++
		}
	}
	return removed
}

func (s *RateLimiterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}
