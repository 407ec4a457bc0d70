package broadcast

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/metrics"
)

const (
	writeDeadline     = 5 * time.Second
	messageBufferSize = 32
)

// clientWriter owns every write to one transport. Frames are queued by enqueue and flushed by the run
// goroutine; replay frames are written directly before run starts. writeMu serialises both paths and
// the final close frame.
type clientWriter struct {
	transport     Transport
	clock         clockwork.Clock
	sendChannel   chan []byte
	doneChannel   chan struct{}
	failedChannel chan struct{}
	stopOnce      sync.Once
	failOnce      sync.Once
	writeMu       sync.Mutex
	wg            sync.WaitGroup
}

func newClientWriter(transport Transport, clock clockwork.Clock) *clientWriter {
	return &clientWriter{
		transport:     transport,
		clock:         clock,
		sendChannel:   make(chan []byte, messageBufferSize),
		doneChannel:   make(chan struct{}),
		failedChannel: make(chan struct{}),
	}
}

// start launches the flush goroutine. Queued frames that are byte-equal to an entry of replayed are
// dropped until the first frame that was not part of the replay, so an event published while the
// replay was being written is not delivered twice.
func (cw *clientWriter) start(replayed map[string]struct{}) {
	cw.wg.Add(1)
	go cw.run(replayed)
}

func (cw *clientWriter) run(replayed map[string]struct{}) {
	defer cw.wg.Done()

	for {
		select {
		case msg := <-cw.sendChannel:
			if replayed != nil {
				if _, seen := replayed[string(msg)]; seen {
					continue
				}
				replayed = nil
			}

			start := cw.clock.Now()
			if err := cw.write(websocket.TextMessage, msg); err != nil {
				cw.fail()
				return
			}
			metrics.MessageSendDuration.Observe(cw.clock.Since(start).Seconds())
		case <-cw.doneChannel:
			return
		}
	}
}

// writeDirect writes a text frame synchronously, bypassing the queue.
func (cw *clientWriter) writeDirect(msg []byte) error {
	if err := cw.write(websocket.TextMessage, msg); err != nil {
		cw.fail()
		return err
	}
	return nil
}

func (cw *clientWriter) write(messageType int, msg []byte) error {
	cw.writeMu.Lock()
	defer cw.writeMu.Unlock()

	_ = cw.transport.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
	return cw.transport.WriteMessage(messageType, msg)
}

// enqueue never blocks. A full buffer means the client is not keeping up and is reported as a
// send failure so the caller evicts it.
func (cw *clientWriter) enqueue(msg []byte) error {
	select {
	case <-cw.doneChannel:
		return domain.ErrConnectionClosed
	case <-cw.failedChannel:
		return domain.ErrConnectionClosed
	default:
	}

	select {
	case cw.sendChannel <- msg:
		return nil
	default:
		return domain.ErrSendBufferFull
	}
}

func (cw *clientWriter) fail() {
	cw.failOnce.Do(func() { close(cw.failedChannel) })
}

// failed is closed once a write to the transport has failed.
func (cw *clientWriter) failed() <-chan struct{} {
	return cw.failedChannel
}

// stop closes the transport first so a write blocked on a dead peer returns, then waits for run.
func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.transport.Close()
	})
	cw.wg.Wait()
}

// stopGraceful sends a close frame with code and reason before closing.
func (cw *clientWriter) stopGraceful(code int, reason string) {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)

		// run must exit before the close frame goes out.
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(code, reason)
		_ = cw.write(websocket.CloseMessage, closeMsg)
		_ = cw.transport.Close()
	})
	cw.wg.Wait()
}
