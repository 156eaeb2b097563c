package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	fiberws "github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = int64(64 * 1024)
)

// State is the lifecycle position of a connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateJoined
	StateActive
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Conn is the part of a websocket connection the write pump needs.
type Conn interface {
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is one live socket. All writes to the transport go through the
// egress buffer and the single WritePump goroutine.
type Client struct {
	ID     string
	userID string
	conn   Conn
	egress chan Envelope
	state  atomic.Int32
	log    *zap.Logger

	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once
	stopOnce sync.Once
}

// NewClient wraps an authenticated connection for userID.
func NewClient(userID string, conn Conn, buffer int, log *zap.Logger) *Client {
	if buffer < 1 {
		buffer = 1
	}
	id := uuid.NewString()
	c := &Client{
		ID:      id,
		userID:  userID,
		conn:    conn,
		egress:  make(chan Envelope, buffer),
		log:     log.With(zap.String("conn_id", id), zap.String("user_id", userID)),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	c.state.Store(int32(StateAuthenticated))
	return c
}

// UserID is the token subject the connection authenticated as.
func (c *Client) UserID() string { return c.userID }

func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(s State) { c.state.Store(int32(s)) }

// advance moves the state forward only.
func (c *Client) advance(s State) {
	for {
		cur := c.state.Load()
		if State(cur) >= s {
			return
		}
		if c.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// MarkActive records the first accepted send after join.
func (c *Client) MarkActive() { c.advance(StateActive) }

// Enqueue queues env without blocking. A closed client or a full buffer
// refuses the frame.
func (c *Client) Enqueue(env Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.egress <- env:
		return true
	default:
		return false
	}
}

// WritePump drains the egress buffer to the transport and keeps the
// connection alive with pings. It returns, closing the transport, once the
// client is closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
		// unblocks the read loop of the same connection
		_ = c.conn.Close()
		c.stopOnce.Do(func() { close(c.stopped) })
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(fiberws.CloseMessage, nil)
			return
		case env := <-c.egress:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				c.log.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(fiberws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// Close stops the write pump. It is safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		c.setState(StateDisconnected)
		close(c.done)
	})
}

// Done is closed when the client is closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Stopped is closed when WritePump has returned.
func (c *Client) Stopped() <-chan struct{} { return c.stopped }

// ReadConn is the part of a websocket connection the read loop tunes.
type ReadConn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// PrepareReader applies the read limit and the pong driven read deadline.
func PrepareReader(conn ReadConn) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}
