package domain

import (
	"context"
	"time"
)

// EventStore is the durable, append-only record of ingested events.
// Insert returns ErrDuplicateEvent when the source id was already stored.
type EventStore interface {
	Insert(ctx context.Context, event Event) error
	Ping(ctx context.Context) error
}

// ReplayCache holds the most recent serialized events, bounded to a fixed capacity.
// ReadAll returns the entries oldest-first.
type ReplayCache interface {
	Push(ctx context.Context, payload []byte) error
	ReadAll(ctx context.Context) ([][]byte, error)
}

// RateLimiter gates outbound sends per origin. Implementations fail open.
type RateLimiter interface {
	Allow(ctx context.Context, origin string) bool
}

// MessageCounter counts ingested messages over the trailing hour.
type MessageCounter interface {
	Record(ctx context.Context, eventID string, at time.Time) error
	LastHour(ctx context.Context) (int64, error)
}
