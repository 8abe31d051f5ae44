package uploadlog

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimiter is a per-key sliding-window rate limiter. Allow counts every
// request; Check and Record let callers count only some, such as failed logins.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	max    int
	window time.Duration
	done   chan struct{}
	once   sync.Once
}

// NewRateLimiter allows max hits per key within window. Stop releases the
// background sweeper.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		hits:   make(map[string][]time.Time),
		max:    max,
		window: window,
		done:   make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// prune drops hits of key outside the window; rl.mu must be held.
func (rl *RateLimiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-rl.window)
	hits := rl.hits[key]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(rl.hits, key)
	} else {
		rl.hits[key] = kept
	}
	return kept
}

// Allow checks if key has not exceeded the limit and records the request.
func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	kept := rl.prune(key, now)
	if len(kept) >= rl.max {
		return false
	}
	rl.hits[key] = append(kept, now)
	return true
}

// Check reports whether key is under the limit without recording a hit.
func (rl *RateLimiter) Check(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.prune(key, time.Now())) < rl.max
}

// Record registers a hit for key.
func (rl *RateLimiter) Record(key string) {
	rl.mu.Lock()
	rl.hits[key] = append(rl.hits[key], time.Now())
	rl.mu.Unlock()
}

// Reset forgets all hits of key.
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	delete(rl.hits, key)
	rl.mu.Unlock()
}

// Middleware rejects requests from an IP over the limit with 429.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rl.Allow(c.RealIP()) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "Too many uploads. Please wait a moment.")
			}
			return next(c)
		}
	}
}

// Stop ends the background sweeper.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-rl.done:
			return
		}
		now := time.Now()
		rl.mu.Lock()
		for key := range rl.hits {
			rl.prune(key, now)
		}
		rl.mu.Unlock()
	}
}
