package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/metrics"
)

// AdmissionError is returned when a connection is refused. It carries the close frame the
// caller sends before dropping the transport.
type AdmissionError struct {
	Origin string
	Err    error
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("admission refused for %s: %v", e.Origin, e.Err)
}

func (e *AdmissionError) Unwrap() error { return e.Err }

// CloseCode is 1013 (try again later) for every refusal.
func (e *AdmissionError) CloseCode() int { return websocket.CloseTryAgainLater }

func (e *AdmissionError) CloseReason() string {
	switch {
	case errors.Is(e.Err, domain.ErrOriginCapacityExceeded):
		return "Too many connections from IP"
	case errors.Is(e.Err, domain.ErrShuttingDown):
		return "Server shutting down"
	default:
		return "Server overloaded"
	}
}

// Registry is the set of live connections with its per-origin counts. Admission checks and
// insertion happen under one lock, so concurrent admits can never exceed either cap.
type Registry struct {
	mu           sync.RWMutex
	connections  map[domain.ConnectionID]*Connection
	origins      map[string]int
	maxTotal     int
	maxPerOrigin int
	clock        clockwork.Clock
	newID        func() domain.ConnectionID
}

func NewRegistry(maxTotal, maxPerOrigin int, clock clockwork.Clock) *Registry {
	return &Registry{
		connections:  make(map[domain.ConnectionID]*Connection),
		origins:      make(map[string]int),
		maxTotal:     maxTotal,
		maxPerOrigin: maxPerOrigin,
		clock:        clock,
		newID:        func() domain.ConnectionID { return domain.ConnectionID(uuid.NewString()) },
	}
}

// Admit registers transport for origin, or refuses it with an *AdmissionError when the global or
// the per-origin cap is reached. The global cap is checked first.
func (r *Registry) Admit(ctx context.Context, origin string, transport Transport) (*Connection, error) {
	r.mu.Lock()
	if len(r.connections) >= r.maxTotal {
		r.mu.Unlock()
		metrics.AdmissionsTotal.WithLabelValues("global_cap").Inc()
		return nil, &AdmissionError{Origin: origin, Err: domain.ErrGlobalCapacityExceeded}
	}
	if r.origins[origin] >= r.maxPerOrigin {
		r.mu.Unlock()
		metrics.AdmissionsTotal.WithLabelValues("origin_cap").Inc()
		return nil, &AdmissionError{Origin: origin, Err: domain.ErrOriginCapacityExceeded}
	}

	conn := newConnection(ctx, r.newID(), origin, transport, r.clock)
	r.connections[conn.id] = conn
	r.origins[origin]++
	metrics.ConnectionsCurrent.Set(float64(len(r.connections)))
	metrics.ConnectionOrigins.Set(float64(len(r.origins)))
	total, fromOrigin := len(r.connections), r.origins[origin]
	r.mu.Unlock()

	metrics.AdmissionsTotal.WithLabelValues("admitted").Inc()

	slog.Info("WebSocket connection admitted",
		"connection_id", conn.id,
		"origin", origin,
		"total_connections", total,
		"origin_connections", fromOrigin)
	return conn, nil
}

// Remove drops the connection and closes its transport. Removing an unknown or already
// removed id is a no-op.
func (r *Registry) Remove(id domain.ConnectionID) {
	r.remove(id, disconnectRemoved)
}

func (r *Registry) remove(id domain.ConnectionID, d disconnect) bool {
	r.mu.Lock()
	conn, ok := r.connections[id]
	if ok {
		delete(r.connections, id)
		if n := r.origins[conn.origin] - 1; n > 0 {
			r.origins[conn.origin] = n
		} else {
			delete(r.origins, conn.origin)
		}
		metrics.ConnectionsCurrent.Set(float64(len(r.connections)))
		metrics.ConnectionOrigins.Set(float64(len(r.origins)))
	}
	remaining := len(r.connections)
	r.mu.Unlock()

	if !ok {
		return false
	}

	// Closing may wait on the writer, so it happens outside the lock.
	conn.close(d)

	metrics.DisconnectsTotal.WithLabelValues(d.reason).Inc()
	metrics.ConnectionDuration.Observe(r.clock.Since(conn.admittedAt).Seconds())
	slog.Info("WebSocket connection removed",
		"connection_id", id,
		"origin", conn.origin,
		"reason", d.reason,
		"remaining_connections", remaining)
	return true
}

// Get returns the connection registered under id.
func (r *Registry) Get(id domain.ConnectionID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[id]
	return conn, ok
}

// Connections returns a point-in-time copy of the registered connections.
func (r *Registry) Connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		out = append(out, conn)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Snapshot reports the total and the per-origin counts.
func (r *Registry) Snapshot() domain.ConnectionSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byOrigin := make(map[string]int, len(r.origins))
	for origin, n := range r.origins {
		byOrigin[origin] = n
	}
	return domain.ConnectionSnapshot{Total: len(r.connections), ByOrigin: byOrigin}
}

func (r *Registry) closeAll(d disconnect) int {
	closed := 0
	for _, conn := range r.Connections() {
		if r.remove(conn.id, d) {
			closed++
		}
	}
	return closed
}
