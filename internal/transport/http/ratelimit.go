package http

import (
	"sync"
	"time"
)

// rateLimiter is a fixed one-minute window counter for a single connection.
// A nil limiter or a non-positive limit allows everything.
type rateLimiter struct {
	limit int
	now   func() time.Time

	mu          sync.Mutex
	counter     int
	windowStart time.Time
}

func newRateLimiter(limit int) *rateLimiter {
	if limit <= 0 {
		return nil
	}
	return &rateLimiter{limit: limit, now: time.Now}
}

func (r *rateLimiter) allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.windowStart) >= time.Minute {
		r.windowStart = now
		r.counter = 0
	}
	r.counter++
	return r.counter <= r.limit
}
