package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/metrics"
)

const replayReadTimeout = 2 * time.Second

// Config bounds the hub. All values must be positive and HeartbeatTimeout must not be shorter than
// HeartbeatInterval.
type Config struct {
	MaxConnections          int
	MaxConnectionsPerOrigin int
	HeartbeatInterval       time.Duration
	HeartbeatTimeout        time.Duration
	ShutdownGracePeriod     time.Duration
}

// Hub owns the registry and runs every admitted connection from admission to removal.
type Hub struct {
	registry    *Registry
	broadcaster *Broadcaster
	monitor     *Monitor
	cache       domain.ReplayCache
	clock       clockwork.Clock
	grace       time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	closing bool
	tasks   sync.WaitGroup
}

func NewHub(cfg Config, cache domain.ReplayCache, limiter domain.RateLimiter, clock clockwork.Clock) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	registry := NewRegistry(cfg.MaxConnections, cfg.MaxConnectionsPerOrigin, clock)
	return &Hub{
		registry:    registry,
		broadcaster: NewBroadcaster(registry, limiter, clock),
		monitor:     NewMonitor(clock, cfg.HeartbeatInterval, cfg.HeartbeatTimeout),
		cache:       cache,
		clock:       clock,
		grace:       cfg.ShutdownGracePeriod,
		baseCtx:     ctx,
		cancel:      cancel,
	}
}

// Serve runs one connection until it disconnects, times out or the hub shuts down. A refused
// connection gets a 1013 close frame and Serve returns the *AdmissionError.
func (h *Hub) Serve(origin string, transport Transport) error {
	if !h.track() {
		err := &AdmissionError{Origin: origin, Err: domain.ErrShuttingDown}
		refuse(transport, err, h.clock)
		return err
	}
	defer h.tasks.Done()

	conn, err := h.registry.Admit(h.baseCtx, origin, transport)
	if err != nil {
		var admissionErr *AdmissionError
		if errors.As(err, &admissionErr) {
			slog.Warn("WebSocket connection refused", "origin", origin, "reason", admissionErr.CloseReason())
			refuse(transport, admissionErr, h.clock)
		}
		return err
	}

	replayed, err := h.replay(conn)
	if err != nil {
		slog.WarnContext(conn.ctx, "Replay to new connection failed", "error", err)
		h.registry.remove(conn.id, disconnectSendFailure)
		return nil
	}
	conn.writer.start(replayed)

	frames := make(chan frame)
	readDone := make(chan struct{})
	go conn.pumpFrames(frames, readDone)

	d := h.monitor.run(conn, frames, readDone)
	h.registry.remove(conn.id, d)
	return nil
}

// replay writes the cached events oldest first, directly to the transport. A cache read error is
// logged and treated as an empty cache.
func (h *Hub) replay(conn *Connection) (map[string]struct{}, error) {
	ctx, cancel := context.WithTimeout(conn.ctx, replayReadTimeout)
	items, err := h.cache.ReadAll(ctx)
	cancel()
	if err != nil {
		metrics.CacheErrorsTotal.WithLabelValues("replay_read").Inc()
		slog.ErrorContext(conn.ctx, "Failed to read replay cache", "error", err)
		return nil, nil
	}

	replayed := make(map[string]struct{}, len(items))
	for _, item := range items {
		if err := conn.writer.writeDirect(item); err != nil {
			return nil, fmt.Errorf("replay write: %w", err)
		}
		replayed[string(item)] = struct{}{}
	}
	metrics.ReplayMessagesSent.Add(float64(len(items)))
	return replayed, nil
}

// Publish broadcasts payload to every connection currently registered.
func (h *Hub) Publish(ctx context.Context, payload []byte) Result {
	return h.broadcaster.Publish(ctx, payload)
}

func (h *Hub) Snapshot() domain.ConnectionSnapshot {
	return h.registry.Snapshot()
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

// Closing reports whether Shutdown has started.
func (h *Hub) Closing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

func (h *Hub) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.tasks.Add(1)
	return true
}

// Shutdown stops admitting, tells every connection to close with 1001 and waits for their tasks up
// to the grace period. Connections still alive after that are closed without a close frame.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	total := h.registry.Len()
	slog.Info("Broadcaster shutting down", "total_clients", total)
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.tasks.Wait()
		close(done)
	}()

	timer := h.clock.NewTimer(h.grace)
	defer timer.Stop()

	select {
	case <-done:
		slog.Info("Broadcaster shutdown complete", "disconnected_clients", total)
		return nil
	case <-timer.Chan():
	case <-ctx.Done():
	}

	metrics.ShutdownTimeoutsTotal.Inc()
	forced := h.registry.closeAll(disconnectForced)
	slog.Warn("Broadcaster shutdown grace period exceeded", "grace_period", h.grace, "forced_closes", forced)
	return fmt.Errorf("shutdown grace period of %v exceeded", h.grace)
}

func refuse(transport Transport, err *AdmissionError, clock clockwork.Clock) {
	closeMsg := websocket.FormatCloseMessage(err.CloseCode(), err.CloseReason())
	_ = transport.SetWriteDeadline(clock.Now().Add(writeDeadline))
	_ = transport.WriteMessage(websocket.CloseMessage, closeMsg)
	_ = transport.Close()
}
