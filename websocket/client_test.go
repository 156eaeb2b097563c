package websocket

import (
	"errors"
	"sync"
	"testing"
	"time"

	fiberws "github.com/gofiber/contrib/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConn struct {
	mu       sync.Mutex
	frames   []Envelope
	messages []int
	writeErr error
	closed   bool
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.frames = append(f.frames, v.(Envelope))
	return nil
}

func (f *fakeConn) WriteMessage(messageType int, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, messageType)
	return nil
}

func (f *fakeConn) WriteControl(int, []byte, time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error           { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) written() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Envelope(nil), f.frames...)
}

func TestClient_EnqueueRefusesWhenFull(t *testing.T) {
	req := require.New(t)
	c := NewClient("u1", &fakeConn{}, 1, zap.NewNop())

	req.True(c.Enqueue(ErrorEnvelope(CodeValidation, "first")))
	req.False(c.Enqueue(ErrorEnvelope(CodeValidation, "second")))
}

func TestClient_EnqueueRefusesAfterClose(t *testing.T) {
	c := NewClient("u1", &fakeConn{}, 4, zap.NewNop())
	c.Close()
	c.Close()

	require.False(t, c.Enqueue(ErrorEnvelope(CodeValidation, "late")))
	require.Equal(t, StateDisconnected, c.State())
}

func TestClient_WritePumpFlushesAndStops(t *testing.T) {
	req := require.New(t)
	conn := &fakeConn{}
	c := NewClient("u1", conn, 4, zap.NewNop())
	go c.WritePump()

	req.True(c.Enqueue(ErrorEnvelope(CodeValidation, "one")))
	req.Eventually(func() bool { return len(conn.written()) == 1 }, time.Second, 5*time.Millisecond)

	c.Close()
	select {
	case <-c.Stopped():
	case <-time.After(time.Second):
		t.Fatal("write pump did not stop")
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	req.Contains(conn.messages, fiberws.CloseMessage)
}

func TestClient_WritePumpExitsOnWriteError(t *testing.T) {
	conn := &fakeConn{writeErr: errors.New("broken pipe")}
	c := NewClient("u1", conn, 4, zap.NewNop())
	go c.WritePump()

	require.True(t, c.Enqueue(ErrorEnvelope(CodeValidation, "one")))
	select {
	case <-c.Stopped():
	case <-time.After(time.Second):
		t.Fatal("write pump did not stop")
	}
	require.Equal(t, StateDisconnected, c.State())
}

func TestClient_StateOnlyMovesForward(t *testing.T) {
	req := require.New(t)
	c := NewClient("u1", &fakeConn{}, 1, zap.NewNop())
	req.Equal(StateAuthenticated, c.State())

	c.advance(StateJoined)
	c.MarkActive()
	req.Equal(StateActive, c.State())

	c.advance(StateJoined)
	req.Equal(StateActive, c.State())
	req.Equal("active", c.State().String())
}
