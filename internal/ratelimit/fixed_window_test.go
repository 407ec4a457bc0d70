package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestFixedWindow_AllowsExactlyMaxPerWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewFixedWindow(3, time.Minute, clock)
	ctx := context.Background()

	for i := range 3 {
		assert.True(t, l.Allow(ctx, "10.0.0.1"), "event %d", i+1)
	}
	assert.False(t, l.Allow(ctx, "10.0.0.1"))
	assert.False(t, l.Allow(ctx, "10.0.0.1"))
}

func TestFixedWindow_ResetsAfterWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewFixedWindow(2, time.Minute, clock)
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "10.0.0.1"))
	assert.True(t, l.Allow(ctx, "10.0.0.1"))
	assert.False(t, l.Allow(ctx, "10.0.0.1"))

	clock.Advance(59 * time.Second)
	assert.False(t, l.Allow(ctx, "10.0.0.1"), "window is fixed, not sliding")

	clock.Advance(time.Second)
	assert.True(t, l.Allow(ctx, "10.0.0.1"))
	assert.True(t, l.Allow(ctx, "10.0.0.1"))
	assert.False(t, l.Allow(ctx, "10.0.0.1"))
}

func TestFixedWindow_OriginsAreIndependent(t *testing.T) {
	l := NewFixedWindow(1, time.Minute, clockwork.NewFakeClock())
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "10.0.0.1"))
	assert.False(t, l.Allow(ctx, "10.0.0.1"))
	assert.True(t, l.Allow(ctx, "10.0.0.2"))
}

func TestFixedWindow_SweepsExpiredBuckets(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewFixedWindow(5, time.Minute, clock)
	ctx := context.Background()

	l.Allow(ctx, "10.0.0.1")
	l.Allow(ctx, "10.0.0.2")
	assert.Equal(t, 2, l.Len())

	clock.Advance(2 * time.Minute)
	l.Allow(ctx, "10.0.0.3")

	assert.Equal(t, 1, l.Len())
}

func TestFixedWindow_ConcurrentAllowNeverExceedsMax(t *testing.T) {
	l := NewFixedWindow(25, time.Minute, clockwork.NewFakeClock())

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow(context.Background(), "10.0.0.1") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(25), allowed.Load())
}
