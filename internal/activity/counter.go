// Package activity counts relayed events over the trailing hour for the stats endpoint.
package activity

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Window is the span LastHour reports on.
const Window = time.Hour

// Counter is the in-process MessageCounter. Entries older than Window are pruned on every call.
type Counter struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries []time.Time
	seen    map[string]time.Time
}

func NewCounter(clock clockwork.Clock) *Counter {
	return &Counter{clock: clock, seen: make(map[string]time.Time)}
}

// Record counts eventID once at the given time. Recording the same id again is a no-op while it is
// still inside the window.
func (c *Counter) Record(_ context.Context, eventID string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.prune()
	if _, ok := c.seen[eventID]; ok {
		return nil
	}
	c.seen[eventID] = at
	c.entries = append(c.entries, at)
	return nil
}

func (c *Counter) LastHour(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.prune()
	return int64(len(c.entries)), nil
}

func (c *Counter) prune() {
	cutoff := c.clock.Now().Add(-Window)

	kept := c.entries[:0]
	for _, at := range c.entries {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	c.entries = kept

	for id, at := range c.seen {
		if !at.After(cutoff) {
			delete(c.seen, id)
		}
	}
}
