package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/metrics"
	"github.com/sony/gobreaker"
)

const uniqueViolation = "23505"

const insertMessageSQL = `
INSERT INTO messages (id, source_id, author, author_id, avatar, content, channel_id, guild_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// MessageRepo stores every relayed event once, keyed by its source id. Inserts run through a
// circuit breaker so a dead database fails fast instead of stalling ingestion on each event.
type MessageRepo struct {
	pool *pgxpool.Pool
	cb   *gobreaker.CircuitBreaker
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool, cb: newStoreBreaker("postgres")}
}

func newStoreBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrDuplicateEvent)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerStateChanges.WithLabelValues(name, to.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
}

// Insert returns domain.ErrDuplicateEvent when the source id is already stored.
func (r *MessageRepo) Insert(ctx context.Context, event domain.Event) error {
	_, err := r.cb.Execute(func() (interface{}, error) {
		_, err := r.pool.Exec(ctx, insertMessageSQL,
			uuid.New(),
			event.ID,
			event.Author,
			event.AuthorID,
			event.Avatar,
			event.Content,
			event.ChannelID,
			event.GuildID,
			event.Timestamp,
		)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrDuplicateEvent
		}
		if err != nil {
			return nil, fmt.Errorf("failed to insert message %s: %w", event.ID, err)
		}
		return nil, nil
	})
	return err
}

func (r *MessageRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Count returns the number of stored messages.
func (r *MessageRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, "SELECT count(*) FROM messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}
