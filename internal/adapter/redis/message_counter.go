package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const (
	messagesLastHourKey = "messages_last_hour"
	counterWindow       = time.Hour
)

// MessageCounter scores every event id by its unix time in a sorted set and counts the last hour.
type MessageCounter struct {
	rdb   *goredis.Client
	clock clockwork.Clock
}

func NewMessageCounter(rdb *goredis.Client, clock clockwork.Clock) *MessageCounter {
	return &MessageCounter{rdb: rdb, clock: clock}
}

func (c *MessageCounter) Record(ctx context.Context, eventID string, at time.Time) error {
	cutoff := c.clock.Now().Add(-counterWindow).Unix()

	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, messagesLastHourKey, goredis.Z{Score: float64(at.Unix()), Member: eventID})
		pipe.ZRemRangeByScore(ctx, messagesLastHourKey, "-inf", "("+strconv.FormatInt(cutoff, 10))
		pipe.Expire(ctx, messagesLastHourKey, counterWindow)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record message: %w", err)
	}
	return nil
}

func (c *MessageCounter) LastHour(ctx context.Context) (int64, error) {
	cutoff := c.clock.Now().Add(-counterWindow).Unix()

	n, err := c.rdb.ZCount(ctx, messagesLastHourKey, "("+strconv.FormatInt(cutoff, 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}
