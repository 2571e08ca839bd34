// Package ratelimit bounds how many queries one user may trigger per
// window. The orchestration layer checks it before invoking the generator;
// the core validator and gateway stay unaware of it.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a per-key sliding-window counter.
type Limiter struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	history map[string][]time.Time
	now     func() time.Time
}

// New creates a limiter allowing max events per window per key. max <= 0
// disables limiting.
func New(max int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		max:     max,
		window:  window,
		history: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records an event for key and reports whether it stays within the
// window budget. Stale entries are dropped on each call.
func (l *Limiter) Allow(key string) bool {
	if l.max <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.history[key][:0]
	for _, t := range l.history[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.max {
		l.history[key] = kept
		return false
	}
	l.history[key] = append(kept, now)
	return true
}
