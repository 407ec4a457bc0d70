package broadcast

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/metrics"
)

// LivenessState is the heartbeat state of one connection.
type LivenessState int32

const (
	StateActive LivenessState = iota
	StateAwaitingPong
	StateTimedOut
)

func (s LivenessState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateAwaitingPong:
		return "awaiting_pong"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

const (
	pingFrame = "ping"
	pongFrame = "pong"
)

var heartbeatFrame = []byte(`{"type":"heartbeat"}`)

// Monitor runs the per-connection liveness loop. It waits up to interval for an inbound frame; any
// frame refreshes the heartbeat time and a text "ping" is answered with "pong". When the wait expires
// the connection is timed out if nothing arrived for longer than timeout, and probed otherwise.
type Monitor struct {
	clock    clockwork.Clock
	interval time.Duration
	timeout  time.Duration
}

func NewMonitor(clock clockwork.Clock, interval, timeout time.Duration) *Monitor {
	return &Monitor{clock: clock, interval: interval, timeout: timeout}
}

// run blocks until the connection has to be removed and reports how it ended.
func (m *Monitor) run(conn *Connection, frames <-chan frame, readDone <-chan struct{}) disconnect {
	conn.setState(StateActive)

	for {
		timer := m.clock.NewTimer(m.interval)

		select {
		case <-conn.ctx.Done():
			timer.Stop()
			return disconnectShutdown

		case <-readDone:
			timer.Stop()
			conn.setState(StateTimedOut)
			return disconnectClientClosed

		case <-conn.writer.failed():
			timer.Stop()
			conn.setState(StateTimedOut)
			return disconnectSendFailure

		case f := <-frames:
			timer.Stop()
			conn.touch()
			conn.setState(StateActive)
			if f.messageType == websocket.TextMessage && string(f.data) == pingFrame {
				if err := conn.send([]byte(pongFrame)); err != nil {
					conn.setState(StateTimedOut)
					return disconnectSendFailure
				}
				metrics.HeartbeatPongsSent.Inc()
			}

		case <-timer.Chan():
			idle := m.clock.Since(conn.LastHeartbeat())
			if idle > m.timeout {
				conn.setState(StateTimedOut)
				metrics.LivenessTimeouts.Inc()
				slog.InfoContext(conn.ctx, "WebSocket heartbeat timeout",
					"origin", conn.origin,
					"idle", idle)
				return disconnectTimeout
			}
			if err := conn.send(heartbeatFrame); err != nil {
				conn.setState(StateTimedOut)
				return disconnectSendFailure
			}
			conn.setState(StateAwaitingPong)
			metrics.HeartbeatProbesSent.Inc()
		}
	}
}
