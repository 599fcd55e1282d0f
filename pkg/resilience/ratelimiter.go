package resilience

import (
	"context"
	"sync"
	"time"
)

// rateWindow tracks calls admitted in the current fixed window for one
// target.
type rateWindow struct {
	mu          sync.Mutex
	limit       int
	calls       int
	windowStart time.Time
}

// RateLimiter enforces a per-target calls-per-second ceiling using a fixed
// 1-second window. Acquire blocks the calling goroutine until the window
// has capacity; it never rejects. This is the system's backpressure
// mechanism for outbound provider calls.
type RateLimiter struct {
	mu       sync.Mutex
	windows  map[string]*rateWindow
	limits   map[string]int
	fallback int
	interval time.Duration
	now      func() time.Time
}

// DefaultRateLimits are the per-service call ceilings applied when no
// explicit limit is configured for a target.
func DefaultRateLimits() map[string]int {
	return map[string]int{
		"compute":    20,
		"database":   10,
		"storage":    30,
		"serverless": 15,
	}
}

// NewRateLimiter creates a limiter with per-target limits. Targets absent
// from the map fall back to fallbackLimit (minimum 1).
func NewRateLimiter(limits map[string]int, fallbackLimit int) *RateLimiter {
	if fallbackLimit <= 0 {
		fallbackLimit = 10
	}
	if limits == nil {
		limits = DefaultRateLimits()
	}
	return &RateLimiter{
		windows:  make(map[string]*rateWindow),
		limits:   limits,
		fallback: fallbackLimit,
		interval: time.Second,
		now:      time.Now,
	}
}

// SetLimit updates the ceiling for a target. Takes effect on the next
// window.
func (r *RateLimiter) SetLimit(target string, limit int) {
	if limit <= 0 {
		return
	}
	r.mu.Lock()
	r.limits[target] = limit
	if w, ok := r.windows[target]; ok {
		w.mu.Lock()
		w.limit = limit
		w.mu.Unlock()
	}
	r.mu.Unlock()
}

// Acquire blocks until the target's current window has capacity, then
// consumes one slot. It returns early only when ctx is cancelled.
func (r *RateLimiter) Acquire(ctx context.Context, target string) error {
	w := r.window(target)

	for {
		w.mu.Lock()
		now := r.now()
		if now.Sub(w.windowStart) >= r.interval {
			w.windowStart = now
			w.calls = 0
		}
		if w.calls < w.limit {
			w.calls++
			w.mu.Unlock()
			return nil
		}
		wait := w.windowStart.Add(r.interval).Sub(now)
		w.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// InWindow reports how many calls have been admitted in the target's
// current window.
func (r *RateLimiter) InWindow(target string) int {
	w := r.window(target)
	w.mu.Lock()
	defer w.mu.Unlock()
	if r.now().Sub(w.windowStart) >= r.interval {
		return 0
	}
	return w.calls
}

func (r *RateLimiter) window(target string) *rateWindow {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[target]
	if !ok {
		limit, found := r.limits[target]
		if !found {
			limit = r.fallback
		}
		w = &rateWindow{limit: limit, windowStart: r.now().Add(-r.interval)}
		r.windows[target] = w
	}
	return w
}
