package broadcast

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/metrics"
)

// Result summarises one Publish call.
type Result struct {
	Delivered int
	Throttled int
	Failed    int
}

// Broadcaster fans a serialized event out to every registered connection.
type Broadcaster struct {
	registry *Registry
	limiter  domain.RateLimiter
	clock    clockwork.Clock
}

func NewBroadcaster(registry *Registry, limiter domain.RateLimiter, clock clockwork.Clock) *Broadcaster {
	return &Broadcaster{registry: registry, limiter: limiter, clock: clock}
}

// Publish delivers payload to a snapshot of the registry. The limiter is asked once per origin and
// its answer applies to every connection from that origin. Connections whose origin is over its rate
// limit are skipped without notice. Connections whose send fails are removed once the whole
// snapshot has been visited; no other connection is affected by them.
func (b *Broadcaster) Publish(ctx context.Context, payload []byte) Result {
	start := b.clock.Now()
	connections := b.registry.Connections()

	var result Result
	var failed []*Connection
	allowed := make(map[string]bool)
	for _, conn := range connections {
		ok, seen := allowed[conn.origin]
		if !seen {
			ok = b.limiter.Allow(ctx, conn.origin)
			allowed[conn.origin] = ok
		}
		if !ok {
			result.Throttled++
			continue
		}
		if err := conn.send(payload); err != nil {
			slog.Warn("Failed to send message to client",
				"connection_id", conn.id,
				"origin", conn.origin,
				"error", err)
			failed = append(failed, conn)
			continue
		}
		result.Delivered++
	}

	for _, conn := range failed {
		b.registry.remove(conn.id, disconnectSendFailure)
	}
	result.Failed = len(failed)

	metrics.BroadcastDeliveries.WithLabelValues("delivered").Add(float64(result.Delivered))
	metrics.BroadcastDeliveries.WithLabelValues("throttled").Add(float64(result.Throttled))
	metrics.BroadcastDeliveries.WithLabelValues("failed").Add(float64(result.Failed))
	metrics.BroadcastDuration.Observe(b.clock.Since(start).Seconds())

	slog.Debug("Broadcast completed",
		"recipients", len(connections),
		"delivered", result.Delivered,
		"throttled", result.Throttled,
		"failed", result.Failed)
	return result
}
