package broadcast

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientWriter_DeliversInOrder(t *testing.T) {
	ft := newFakeTransport()
	cw := newClientWriter(ft, clockwork.NewFakeClock())
	cw.start(nil)
	t.Cleanup(cw.stop)

	require.NoError(t, cw.enqueue([]byte("a")))
	require.NoError(t, cw.enqueue([]byte("b")))

	assert.Equal(t, "a", string(nextWrite(t, ft).data))
	assert.Equal(t, "b", string(nextWrite(t, ft).data))
}

func TestClientWriter_SkipsReplayedUntilFirstNewFrame(t *testing.T) {
	ft := newFakeTransport()
	cw := newClientWriter(ft, clockwork.NewFakeClock())

	require.NoError(t, cw.enqueue([]byte("a")))
	require.NoError(t, cw.enqueue([]byte("b")))
	require.NoError(t, cw.enqueue([]byte("a")))
	cw.start(map[string]struct{}{"a": {}})
	t.Cleanup(cw.stop)

	assert.Equal(t, "b", string(nextWrite(t, ft).data))
	// Once a new frame went out, a repeated payload is a new event.
	assert.Equal(t, "a", string(nextWrite(t, ft).data))
}

func TestClientWriter_BufferFull(t *testing.T) {
	cw := newClientWriter(newFakeTransport(), clockwork.NewFakeClock())

	for range messageBufferSize {
		require.NoError(t, cw.enqueue([]byte("x")))
	}
	err := cw.enqueue([]byte("x"))
	assert.ErrorIs(t, err, domain.ErrSendBufferFull)
}

func TestClientWriter_EnqueueAfterStop(t *testing.T) {
	ft := newFakeTransport()
	cw := newClientWriter(ft, clockwork.NewFakeClock())
	cw.start(nil)
	cw.stop()

	assert.ErrorIs(t, cw.enqueue([]byte("x")), domain.ErrConnectionClosed)
	assert.True(t, ft.isClosed())
}

func TestClientWriter_WriteFailureSignalsFailed(t *testing.T) {
	ft := newFakeTransport()
	ft.failWrites(errors.New("broken pipe"))
	cw := newClientWriter(ft, clockwork.NewFakeClock())
	cw.start(nil)
	t.Cleanup(cw.stop)

	require.NoError(t, cw.enqueue([]byte("x")))

	select {
	case <-cw.failed():
	case <-time.After(2 * time.Second):
		t.Fatal("write failure was not reported")
	}
	assert.ErrorIs(t, cw.enqueue([]byte("y")), domain.ErrConnectionClosed)
}

func TestClientWriter_WriteDirectFailureSignalsFailed(t *testing.T) {
	ft := newFakeTransport()
	ft.failWrites(errors.New("broken pipe"))
	cw := newClientWriter(ft, clockwork.NewFakeClock())

	require.Error(t, cw.writeDirect([]byte("x")))
	<-cw.failed()
}

func TestClientWriter_GracefulStopSendsCloseFrame(t *testing.T) {
	ft := newFakeTransport()
	cw := newClientWriter(ft, clockwork.NewFakeClock())
	cw.start(nil)

	cw.stopGraceful(websocket.CloseGoingAway, "Server shutting down")

	code, reason := parseCloseFrame(t, nextWrite(t, ft))
	assert.Equal(t, websocket.CloseGoingAway, code)
	assert.Equal(t, "Server shutting down", reason)
	assert.True(t, ft.isClosed())
}

func TestClientWriter_StopIdempotent(t *testing.T) {
	cw := newClientWriter(newFakeTransport(), clockwork.NewFakeClock())
	cw.start(nil)

	cw.stop()
	cw.stop()
	cw.stopGraceful(websocket.CloseNormalClosure, "ignored")
}

func TestClientWriter_ConcurrentStop(t *testing.T) {
	ft := newFakeTransport()
	cw := newClientWriter(ft, clockwork.NewFakeClock())
	cw.start(nil)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				cw.stop()
			} else {
				cw.stopGraceful(websocket.CloseNormalClosure, "bye")
			}
		}()
	}
	wg.Wait()
	assert.True(t, ft.isClosed())
}
