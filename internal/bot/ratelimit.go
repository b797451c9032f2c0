package bot

import (
	"sync"
	"time"
)

// pressLimiter throttles join-button presses per user with a sliding
// window, so one person mashing the button cannot flood the store with
// toggle transactions. State is transient; a restart simply forgets it.
type pressLimiter struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	hits   map[string][]time.Time
}

func newPressLimiter(window time.Duration, limit int) *pressLimiter {
	return &pressLimiter{
		window: window,
		limit:  limit,
		hits:   map[string][]time.Time{},
	}
}

// Allow records one press for the user and reports whether it is within
// the limit for the current window.
func (l *pressLimiter) Allow(userID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	hits := l.hits[userID]
	idx := 0
	for _, hit := range hits {
		if hit.After(cutoff) {
			break
		}
		idx++
	}
	hits = append(hits[idx:], now)
	l.hits[userID] = hits

	if len(l.hits) > 1024 {
		l.prune(cutoff)
	}
	return len(hits) <= l.limit
}

func (l *pressLimiter) prune(cutoff time.Time) {
	for userID, hits := range l.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(l.hits, userID)
		}
	}
}
