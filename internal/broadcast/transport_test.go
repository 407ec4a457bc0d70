package broadcast

import (
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var errTransportClosed = errors.New("transport closed")

type writtenFrame struct {
	messageType int
	data        []byte
}

// fakeTransport records writes and serves inbound frames from a channel.
type fakeTransport struct {
	mu        sync.Mutex
	writes    []writtenFrame
	writeErr  error
	inbound   chan frame
	written   chan writtenFrame
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan frame),
		written: make(chan writtenFrame, 256),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	select {
	case fr := <-f.inbound:
		return fr.messageType, fr.data, nil
	case <-f.closed:
		return 0, nil, errTransportClosed
	}
}

func (f *fakeTransport) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	select {
	case <-f.closed:
		return errTransportClosed
	default:
	}
	if f.writeErr != nil {
		return f.writeErr
	}

	w := writtenFrame{messageType: messageType, data: append([]byte(nil), data...)}
	f.writes = append(f.writes, w)
	select {
	case f.written <- w:
	default:
	}
	return nil
}

func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) failWrites(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, w := range f.writes {
		if w.messageType == websocket.TextMessage {
			out = append(out, string(w.data))
		}
	}
	return out
}

// send delivers an inbound text frame from the peer.
func (f *fakeTransport) send(t *testing.T, text string) {
	t.Helper()
	select {
	case f.inbound <- frame{messageType: websocket.TextMessage, data: []byte(text)}:
	case <-time.After(2 * time.Second):
		t.Fatalf("inbound frame %q not consumed", text)
	}
}

func nextWrite(t *testing.T, f *fakeTransport) writtenFrame {
	t.Helper()
	select {
	case w := <-f.written:
		return w
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a write")
		return writtenFrame{}
	}
}

func requireNoWrite(t *testing.T, f *fakeTransport, wait time.Duration) {
	t.Helper()
	select {
	case w := <-f.written:
		t.Fatalf("unexpected write %q", w.data)
	case <-time.After(wait):
	}
}

func parseCloseFrame(t *testing.T, w writtenFrame) (int, string) {
	t.Helper()
	require.Equal(t, websocket.CloseMessage, w.messageType)
	require.GreaterOrEqual(t, len(w.data), 2)
	return int(binary.BigEndian.Uint16(w.data[:2])), string(w.data[2:])
}
