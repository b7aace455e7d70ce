// Package conn manages authenticated push connections and records every
// decoded frame in a message log.
package conn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/orchestra-mcp/notify-harness/config"
	"github.com/orchestra-mcp/notify-harness/src/envelope"
	"github.com/orchestra-mcp/notify-harness/src/msglog"
	"github.com/orchestra-mcp/notify-harness/src/types"
	"github.com/orchestra-mcp/notify-harness/src/waiter"
	"github.com/rs/zerolog"
)

var (
	// ErrAuthRejected means the credential was missing or refused.
	ErrAuthRejected = errors.New("auth rejected")
	// ErrHandshakeTimeout means the server did not acknowledge in time.
	ErrHandshakeTimeout = errors.New("handshake timeout")
	// ErrNetwork wraps transport failures.
	ErrNetwork = errors.New("network error")
	// ErrClosed is returned for operations on a connection that is not open.
	ErrClosed = errors.New("connection not open")
)

// State is the lifecycle state of a Connection.
type State int32

const (
	Disconnected State = iota
	Connecting
	Open
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	default:
		return "disconnected"
	}
}

// Dialer opens connections with a shared configuration.
type Dialer struct {
	cfg    *config.HarnessConfig
	ws     *websocket.Dialer
	logger zerolog.Logger
}

// NewDialer creates a Dialer. The handshake bound comes from
// cfg.HandshakeTimeout.
func NewDialer(cfg *config.HarnessConfig, logger zerolog.Logger) *Dialer {
	return &Dialer{
		cfg: cfg,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: logger.With().Str("component", "conn").Logger(),
	}
}

// Open performs the handshake against address with a bearer credential
// and starts recording inbound frames.
func (d *Dialer) Open(ctx context.Context, address, credential string) (*Connection, error) {
	id := ulid.Make().String()
	c := &Connection{
		ID:         id,
		address:    address,
		credential: credential,
		dialer:     d,
		log:        msglog.New(),
		logger:     d.logger.With().Str("conn_id", id).Logger(),
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// handshake dials and, when configured, consumes the server's connected
// frame. The returned welcome is zero when not awaited.
func (d *Dialer) handshake(ctx context.Context, address, credential string) (*websocket.Conn, envelope.Welcome, error) {
	var welcome envelope.Welcome
	if strings.TrimSpace(credential) == "" {
		return nil, welcome, fmt.Errorf("%w: missing credential", ErrAuthRejected)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.HandshakeTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)

	ws, resp, err := d.ws.DialContext(ctx, address, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, welcome, classify(err, resp)
	}
	if !d.cfg.AwaitWelcome {
		return ws, welcome, nil
	}

	deadline, _ := ctx.Deadline()
	_ = ws.SetReadDeadline(deadline)
	_, data, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return nil, welcome, classify(err, nil)
	}
	_ = ws.SetReadDeadline(time.Time{})

	env, err := envelope.Decode(data)
	if err == nil {
		welcome, err = envelope.DecodeWelcome(env)
	}
	if err != nil {
		ws.Close()
		return nil, welcome, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return ws, welcome, nil
}

func classify(err error, resp *http.Response) error {
	if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		return fmt.Errorf("%w: server answered %d", ErrAuthRejected, resp.StatusCode)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrHandshakeTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if resp != nil {
		return fmt.Errorf("%w: server answered %d: %w", ErrNetwork, resp.StatusCode, err)
	}
	return fmt.Errorf("%w: %w", ErrNetwork, err)
}

// Connection is one logical client identity's push session. Its log
// survives Close and Reconnect; only Log().Clear empties it.
type Connection struct {
	ID string

	address    string
	credential string
	dialer     *Dialer
	log        *msglog.Log
	logger     zerolog.Logger

	mu         sync.Mutex
	state      State
	ws         *websocket.Conn
	session    uint64
	reconnects uint64
	pumpDone   chan struct{}
	welcome    envelope.Welcome

	writeMu sync.Mutex
}

func (c *Connection) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Disconnected {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("connection %s is %s", c.ID, state)
	}
	c.state = Connecting
	session := c.session
	c.mu.Unlock()

	ws, welcome, err := c.dialer.handshake(ctx, c.address, c.credential)

	c.mu.Lock()
	if c.state != Connecting || c.session != session {
		// Closed while the handshake was in flight.
		c.mu.Unlock()
		if ws != nil {
			ws.Close()
		}
		if err != nil {
			return err
		}
		return ErrClosed
	}
	if err != nil {
		c.state = Disconnected
		c.mu.Unlock()
		c.logger.Debug().Err(err).Str("address", c.address).Msg("handshake failed")
		return err
	}
	c.session++
	c.ws = ws
	c.state = Open
	c.welcome = welcome
	done := make(chan struct{})
	c.pumpDone = done
	session = c.session
	c.mu.Unlock()

	c.logger.Info().Str("address", c.address).Msg("connection open")
	go c.readPump(ws, session, done)
	return nil
}

// readPump decodes frames into the log until the transport fails or the
// session is replaced.
func (c *Connection) readPump(ws *websocket.Conn, session uint64, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.transportLost(ws, session, err)
			return
		}

		env, err := envelope.Decode(data)
		if err != nil {
			c.logger.Warn().Err(err).Int("bytes", len(data)).Msg("dropping malformed frame")
			continue
		}

		c.mu.Lock()
		if c.session != session || c.state != Open {
			c.mu.Unlock()
			return
		}
		entry := c.log.Append(env)
		c.mu.Unlock()

		c.logger.Debug().
			Uint64("seq", entry.Seq).
			Str("type", string(env.Type)).
			Str("action", string(env.Payload.Action)).
			Msg("frame recorded")
	}
}

func (c *Connection) transportLost(ws *websocket.Conn, session uint64, err error) {
	c.mu.Lock()
	current := c.session == session && c.state == Open
	if current {
		c.state = Disconnected
		c.ws = nil
	}
	c.mu.Unlock()

	if !current {
		return
	}
	ws.Close()
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Error().Err(err).Msg("connection lost")
		return
	}
	c.logger.Info().Err(err).Msg("connection closed by server")
}

// Close disconnects. Closing a connection that is not open is a no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state == Disconnected {
		c.mu.Unlock()
		return nil
	}
	ws := c.ws
	done := c.pumpDone
	c.state = Disconnected
	c.ws = nil
	c.session++
	c.mu.Unlock()

	if ws == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	if err := ws.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.Debug().Err(err).Msg("transport close")
	}
	if done != nil {
		<-done
	}
	c.logger.Info().Msg("connection closed")
	return nil
}

// Reconnect closes the current transport (if any) and performs a new
// handshake with the same address and credential. The log is kept.
func (c *Connection) Reconnect(ctx context.Context) error {
	if err := c.Close(); err != nil {
		return err
	}
	if err := c.connect(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.reconnects++
	n := c.reconnects
	c.mu.Unlock()
	c.logger.Info().Uint64("reconnects", n).Msg("reconnected")
	return nil
}

// Send writes v as a JSON text frame.
func (c *Connection) Send(v any) error {
	c.mu.Lock()
	ws := c.ws
	open := c.state == Open
	c.mu.Unlock()
	if !open || ws == nil {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if wait := c.dialer.cfg.WriteTimeout; wait > 0 {
		_ = ws.SetWriteDeadline(time.Now().Add(wait))
	}
	if err := ws.WriteJSON(v); err != nil {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return nil
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reconnects returns how many successful reconnects have happened.
func (c *Connection) Reconnects() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects
}

// Welcome returns the identity the server announced, if awaited.
func (c *Connection) Welcome() envelope.Welcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.welcome
}

// Log returns the connection's message log.
func (c *Connection) Log() *msglog.Log { return c.log }

// WaitFor waits on this connection's log; see waiter.For.
func (c *Connection) WaitFor(ctx context.Context, typ types.MessageType, pred waiter.Predicate, timeout time.Duration, opts ...waiter.Option) (types.Envelope, error) {
	return waiter.For(ctx, c.log, typ, pred, timeout, opts...)
}

// WaitForType waits for any envelope of typ.
func (c *Connection) WaitForType(ctx context.Context, typ types.MessageType, timeout time.Duration, opts ...waiter.Option) (types.Envelope, error) {
	return waiter.ForType(ctx, c.log, typ, timeout, opts...)
}

// WaitForAction waits for an envelope of typ with payload.action == action.
func (c *Connection) WaitForAction(ctx context.Context, typ types.MessageType, action types.Action, timeout time.Duration, opts ...waiter.Option) (types.Envelope, error) {
	return waiter.ForAction(ctx, c.log, typ, action, timeout, opts...)
}
