// Package ratelimit provides the in-process fixed-window limiter used when no Redis is configured.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/metrics"
)

type bucket struct {
	count     int
	expiresAt time.Time
}

// FixedWindow allows at most max events per origin in each window. The window starts with the
// first event seen for an origin and is not sliding: when it expires the count starts over.
type FixedWindow struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	max       int
	window    time.Duration
	clock     clockwork.Clock
	lastSweep time.Time
}

func NewFixedWindow(max int, window time.Duration, clock clockwork.Clock) *FixedWindow {
	return &FixedWindow{
		buckets:   make(map[string]*bucket),
		max:       max,
		window:    window,
		clock:     clock,
		lastSweep: clock.Now(),
	}
}

// Allow records one event for origin and reports whether it fits in the current window.
func (l *FixedWindow) Allow(_ context.Context, origin string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.sweep(now)

	b, ok := l.buckets[origin]
	if !ok || !now.Before(b.expiresAt) {
		l.buckets[origin] = &bucket{count: 1, expiresAt: now.Add(l.window)}
		metrics.RateLimitBuckets.Set(float64(len(l.buckets)))
		metrics.RateLimitDecisions.WithLabelValues("memory", "allowed").Inc()
		return true
	}

	if b.count >= l.max {
		metrics.RateLimitDecisions.WithLabelValues("memory", "denied").Inc()
		return false
	}
	b.count++
	metrics.RateLimitDecisions.WithLabelValues("memory", "allowed").Inc()
	return true
}

// sweep drops expired buckets at most once per window.
func (l *FixedWindow) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	for origin, b := range l.buckets {
		if !now.Before(b.expiresAt) {
			delete(l.buckets, origin)
		}
	}
	l.lastSweep = now
	metrics.RateLimitBuckets.Set(float64(len(l.buckets)))
}

// Len returns the number of tracked origins.
func (l *FixedWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
