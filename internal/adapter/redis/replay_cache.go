package redis

import (
	"context"
	"fmt"
	"slices"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const recentMessagesKey = "recent_messages"

// ReplayCache keeps the newest events at the head of a Redis list trimmed to capacity.
type ReplayCache struct {
	rdb      *goredis.Client
	capacity int
	ttl      time.Duration
}

func NewReplayCache(rdb *goredis.Client, capacity int, ttl time.Duration) *ReplayCache {
	return &ReplayCache{rdb: rdb, capacity: capacity, ttl: ttl}
}

func (c *ReplayCache) Push(ctx context.Context, payload []byte) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LPush(ctx, recentMessagesKey, payload)
		pipe.LTrim(ctx, recentMessagesKey, 0, int64(c.capacity-1))
		pipe.Expire(ctx, recentMessagesKey, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push to replay cache: %w", err)
	}
	return nil
}

// ReadAll returns the list oldest first.
func (c *ReplayCache) ReadAll(ctx context.Context) ([][]byte, error) {
	items, err := c.rdb.LRange(ctx, recentMessagesKey, 0, int64(c.capacity-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read replay cache: %w", err)
	}

	out := make([][]byte, len(items))
	for i, item := range items {
		out[i] = []byte(item)
	}
	slices.Reverse(out)
	return out, nil
}
