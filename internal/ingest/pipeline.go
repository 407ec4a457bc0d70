// Package ingest turns upstream chat messages into broadcasts: filter, persist, cache, count, fan out.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/broadcast"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/metrics"
	"github.com/pscheid92/chatrelay/internal/platform/correlation"
)

const defaultStoreTimeout = 3 * time.Second

// Publisher fans a serialized event out to the attached connections.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) broadcast.Result
}

// Filter selects which upstream messages are relayed. An empty GuildID accepts any guild.
type Filter struct {
	ChannelID string
	GuildID   string
}

type Pipeline struct {
	filter       Filter
	store        domain.EventStore
	cache        domain.ReplayCache
	counter      domain.MessageCounter
	publisher    Publisher
	clock        clockwork.Clock
	storeTimeout time.Duration
}

func NewPipeline(filter Filter, store domain.EventStore, cache domain.ReplayCache, counter domain.MessageCounter, publisher Publisher, clock clockwork.Clock) *Pipeline {
	return &Pipeline{
		filter:       filter,
		store:        store,
		cache:        cache,
		counter:      counter,
		publisher:    publisher,
		clock:        clock,
		storeTimeout: defaultStoreTimeout,
	}
}

// Ingest relays one upstream event. Events outside the configured channel, from bots or without an
// id are rejected with an error wrapping domain.ErrEventRejected. Storage, cache and counter failures
// are logged and never stop the broadcast; a duplicate id is still broadcast once more.
func (p *Pipeline) Ingest(ctx context.Context, event domain.Event) (broadcast.Result, error) {
	if _, ok := correlation.ID(ctx); !ok {
		ctx = correlation.WithID(ctx, correlation.NewID())
	}
	start := p.clock.Now()

	if err := p.accept(event); err != nil {
		metrics.IngestTotal.WithLabelValues("rejected").Inc()
		slog.DebugContext(ctx, "Event ignored", "event_id", event.ID, "reason", err)
		return broadcast.Result{}, err
	}

	p.persist(ctx, event)

	payload, err := json.Marshal(event)
	if err != nil {
		metrics.IngestTotal.WithLabelValues("rejected").Inc()
		return broadcast.Result{}, fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}

	p.remember(ctx, event, payload)

	result := p.publisher.Publish(ctx, payload)

	metrics.IngestTotal.WithLabelValues("broadcast").Inc()
	metrics.IngestDuration.Observe(p.clock.Since(start).Seconds())
	slog.InfoContext(ctx, "Event broadcast",
		"event_id", event.ID,
		"author", event.Author,
		"delivered", result.Delivered,
		"throttled", result.Throttled,
		"failed", result.Failed)
	return result, nil
}

func (p *Pipeline) accept(event domain.Event) error {
	switch {
	case event.ID == "":
		return fmt.Errorf("%w: missing id", domain.ErrEventRejected)
	case event.AuthorIsBot:
		return fmt.Errorf("%w: bot author", domain.ErrEventRejected)
	case event.ChannelID != p.filter.ChannelID:
		return fmt.Errorf("%w: channel %q not relayed", domain.ErrEventRejected, event.ChannelID)
	case p.filter.GuildID != "" && event.GuildID != p.filter.GuildID:
		return fmt.Errorf("%w: guild %q not relayed", domain.ErrEventRejected, event.GuildID)
	}
	return nil
}

func (p *Pipeline) persist(ctx context.Context, event domain.Event) {
	storeCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()

	err := p.store.Insert(storeCtx, event)
	switch {
	case err == nil:
		metrics.PersistTotal.WithLabelValues("stored").Inc()
	case errors.Is(err, domain.ErrDuplicateEvent):
		metrics.PersistTotal.WithLabelValues("duplicate").Inc()
		slog.InfoContext(ctx, "Event already processed", "event_id", event.ID)
	default:
		metrics.PersistTotal.WithLabelValues("error").Inc()
		slog.WarnContext(ctx, "Failed to store event", "event_id", event.ID, "error", err)
	}
}

func (p *Pipeline) remember(ctx context.Context, event domain.Event, payload []byte) {
	cacheCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()

	if err := p.cache.Push(cacheCtx, payload); err != nil {
		metrics.CacheErrorsTotal.WithLabelValues("replay_push").Inc()
		slog.WarnContext(ctx, "Failed to cache event", "event_id", event.ID, "error", err)
	}
	if err := p.counter.Record(cacheCtx, event.ID, p.clock.Now()); err != nil {
		metrics.CacheErrorsTotal.WithLabelValues("counter").Inc()
		slog.WarnContext(ctx, "Failed to count event", "event_id", event.ID, "error", err)
	}
}
