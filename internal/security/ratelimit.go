package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a key exceeds its budget.
var ErrRateLimited = errors.New("security: rate limit exceeded")

// RateLimiter is a per-key sliding-window limiter.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string][]time.Time
	now     func() time.Time
}

// NewRateLimiter allows limit events per window for each key. A limit of
// zero or less disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records one event for key, or returns ErrRateLimited.
func (rl *RateLimiter) Allow(key string) error {
	if rl == nil || rl.limit <= 0 {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	events := evict(rl.buckets[key], now.Add(-rl.window))
	if len(events) >= rl.limit {
		rl.buckets[key] = events
		return ErrRateLimited
	}
	rl.buckets[key] = append(events, now)
	return nil
}

// evict drops events older than cutoff. Events are chronological.
func evict(events []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(events) && events[i].Before(cutoff) {
		i++
	}
	return events[i:]
}
