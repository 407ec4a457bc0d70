package redis

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageCounter_CountsLastHour(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	counter := NewMessageCounter(setupTestClient(t), clock)
	ctx := context.Background()

	require.NoError(t, counter.Record(ctx, "old", clock.Now().Add(-2*time.Hour)))
	require.NoError(t, counter.Record(ctx, "1", clock.Now().Add(-30*time.Minute)))
	require.NoError(t, counter.Record(ctx, "2", clock.Now()))
	require.NoError(t, counter.Record(ctx, "2", clock.Now()))

	n, err := counter.LastHour(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	clock.Advance(45 * time.Minute)
	n, err = counter.LastHour(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
