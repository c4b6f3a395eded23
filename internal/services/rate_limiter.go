package services

import (
	"sync"
	"time"
)

// RateLimiter is a per-actor sliding window: at most max accepted calls in
// any window. Rejected calls are not recorded.
type RateLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	buckets map[string][]time.Time
	now     func() time.Time
}

func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	if max <= 0 {
		max = 5
	}
	if window <= 0 {
		window = time.Second
	}
	return &RateLimiter{
		max:     max,
		window:  window,
		buckets: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow prunes the actor's bucket to the window, then accepts and records
// the call if fewer than max remain.
func (l *RateLimiter) Allow(actor string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	stamps := l.buckets[actor]
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	stamps = stamps[i:]

	if len(stamps) >= l.max {
		l.buckets[actor] = stamps
		return false
	}
	l.buckets[actor] = append(stamps, now)
	return true
}

// Cleanup forgets the actor.
func (l *RateLimiter) Cleanup(actor string) {
	l.mu.Lock()
	delete(l.buckets, actor)
	l.mu.Unlock()
}

// Sweep drops buckets whose newest call is outside the window. Used by
// long-lived limiters keyed by client IP, where no disconnect signal exists.
func (l *RateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.window)
	removed := 0
	for k, stamps := range l.buckets {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(l.buckets, k)
			removed++
		}
	}
	return removed
}

// Len is the number of tracked actors.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
