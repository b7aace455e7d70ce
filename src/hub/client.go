package hub

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/orchestra-mcp/notify-harness/src/types"
)

// Pinger is implemented by connections that support keepalive pings.
type Pinger interface {
	Ping() error
}

// Client wraps a push connection for one authenticated user.
type Client struct {
	ID          string
	UserID      string
	conn        types.Conn
	hub         *Hub
	send        chan types.Frame
	connectedAt time.Time
	mu          sync.Mutex
	done        chan struct{}
	closed      bool
}

// NewClient creates a client for userID with a fresh ULID.
func NewClient(userID string, conn types.Conn, h *Hub) *Client {
	return &Client{
		ID:          ulid.Make().String(),
		UserID:      userID,
		conn:        conn,
		hub:         h,
		send:        make(chan types.Frame, h.sendBuffer),
		connectedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

// Info returns metadata about this client.
func (c *Client) Info() types.ClientInfo {
	return types.ClientInfo{
		ID:          c.ID,
		UserID:      c.UserID,
		ConnectedAt: c.connectedAt,
	}
}

// enqueue queues a frame without blocking. It reports false when the
// buffer is full or the client is closed. Only the hub loop calls it.
func (c *Client) enqueue(f types.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

// ReadPump reads client messages and hands them to the hub until the
// connection fails.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		var body any
		if err := c.conn.ReadJSON(&body); err != nil {
			return
		}
		select {
		case c.hub.incoming <- inbound{client: c, body: body}:
		case <-c.hub.done:
			return
		}
	}
}

// WritePump writes queued frames and keepalive pings.
func (c *Client) WritePump(pingEvery time.Duration) {
	defer c.conn.Close()

	var tick <-chan time.Time
	pinger, canPing := c.conn.(Pinger)
	if canPing && pingEvery > 0 {
		ticker := time.NewTicker(pingEvery)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case f, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}
		case <-tick:
			if err := pinger.Ping(); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close signals the client to stop its pumps.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
		close(c.send)
	}
}
