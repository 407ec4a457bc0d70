// Package replay holds the in-process replay cache: the last N serialized events, replayed to every
// newly attached connection.
package replay

import (
	"context"
	"sync"
)

// Cache is a fixed-capacity ring of serialized events. Pushing into a full cache evicts the oldest.
type Cache struct {
	mu    sync.RWMutex
	items [][]byte
	head  int
	size  int
}

// New returns an empty cache holding at most capacity items.
func New(capacity int) *Cache {
	return &Cache{items: make([][]byte, capacity)}
}

func (c *Cache) Push(_ context.Context, item []byte) error {
	stored := append([]byte(nil), item...)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) == 0 {
		return nil
	}
	c.items[(c.head+c.size)%len(c.items)] = stored
	if c.size < len(c.items) {
		c.size++
	} else {
		c.head = (c.head + 1) % len(c.items)
	}
	return nil
}

// ReadAll returns the cached items oldest first. The returned slices are copies.
func (c *Cache) ReadAll(context.Context) ([][]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([][]byte, c.size)
	for i := range c.size {
		out[i] = append([]byte(nil), c.items[(c.head+i)%len(c.items)]...)
	}
	return out, nil
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}
