package broadcast

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/platform/correlation"
)

// Transport is the server side of one streaming connection. *websocket.Conn satisfies it.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// disconnect describes why a connection leaves the registry and how its transport is closed.
type disconnect struct {
	reason   string
	graceful bool
	code     int
	text     string
}

var (
	disconnectRemoved      = disconnect{reason: "removed"}
	disconnectClientClosed = disconnect{reason: "client_closed"}
	disconnectSendFailure  = disconnect{reason: "send_failure"}
	disconnectTimeout      = disconnect{reason: "timeout", graceful: true, code: websocket.CloseNormalClosure, text: "Heartbeat timeout"}
	disconnectShutdown     = disconnect{reason: "shutdown", graceful: true, code: websocket.CloseGoingAway, text: "Server shutting down"}
	disconnectForced       = disconnect{reason: "shutdown_forced"}
)

// Connection is one admitted subscriber. The registry entry exclusively owns the transport;
// everything else writes through the connection's writer.
type Connection struct {
	id         domain.ConnectionID
	origin     string
	admittedAt time.Time
	clock      clockwork.Clock
	writer     *clientWriter

	ctx    context.Context
	cancel context.CancelFunc

	lastHeartbeat atomic.Int64
	state         atomic.Int32
}

func newConnection(parent context.Context, id domain.ConnectionID, origin string, transport Transport, clock clockwork.Clock) *Connection {
	ctx, cancel := context.WithCancel(correlation.WithConnectionID(parent, string(id)))
	c := &Connection{
		id:         id,
		origin:     origin,
		admittedAt: clock.Now(),
		clock:      clock,
		writer:     newClientWriter(transport, clock),
		ctx:        ctx,
		cancel:     cancel,
	}
	c.touch()
	return c
}

func (c *Connection) ID() domain.ConnectionID { return c.id }

func (c *Connection) Origin() string { return c.origin }

// LastHeartbeat is the last time the peer proved it was alive.
func (c *Connection) LastHeartbeat() time.Time {
	return time.Unix(0, c.lastHeartbeat.Load())
}

// State is the current liveness state of the connection.
func (c *Connection) State() LivenessState {
	return LivenessState(c.state.Load())
}

func (c *Connection) touch() {
	c.lastHeartbeat.Store(c.clock.Now().UnixNano())
}

func (c *Connection) setState(s LivenessState) {
	c.state.Store(int32(s))
}

// send queues a text frame without blocking.
func (c *Connection) send(payload []byte) error {
	return c.writer.enqueue(payload)
}

func (c *Connection) close(d disconnect) {
	c.cancel()
	if d.graceful {
		c.writer.stopGraceful(d.code, d.text)
		return
	}
	c.writer.stop()
}

type frame struct {
	messageType int
	data        []byte
}

// pumpFrames forwards inbound frames to the liveness loop until the transport fails or the
// connection is closed. readDone is closed on exit.
func (c *Connection) pumpFrames(frames chan<- frame, readDone chan<- struct{}) {
	defer close(readDone)
	for {
		messageType, data, err := c.writer.transport.ReadMessage()
		if err != nil {
			return
		}
		select {
		case frames <- frame{messageType: messageType, data: data}:
		case <-c.ctx.Done():
			return
		}
	}
}
