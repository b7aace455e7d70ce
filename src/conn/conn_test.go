package conn

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/orchestra-mcp/notify-harness/config"
	"github.com/orchestra-mcp/notify-harness/src/types"
	"github.com/orchestra-mcp/notify-harness/src/waiter"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

const goodToken = "good-token"

// pushServer is a minimal push endpoint: it checks the bearer token,
// optionally sends a connected frame, answers every inbound message with
// an ack, and lets the test push frames to the newest connection.
type pushServer struct {
	addr    string
	welcome bool
	mu      sync.Mutex
	conns   []*serverConn
}

type serverConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *serverConn) write(frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(frame))
}

func newPushServer(t *testing.T, welcome bool) *pushServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &pushServer{
		addr:    "ws://" + ln.Addr().String() + "/api/ws",
		welcome: welcome,
	}
	upgrader := websocket.FastHTTPUpgrader{
		CheckOrigin: func(*fasthttp.RequestCtx) bool { return true },
	}
	srv := &fasthttp.Server{KeepHijackedConns: true, Handler: func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Request.Header.Peek("Authorization")) != "Bearer "+goodToken {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			return
		}
		_ = upgrader.Upgrade(ctx, s.serve)
	}}
	go func() { _ = srv.Serve(ln) }()

	t.Cleanup(func() {
		ln.Close()
		s.dropAll()
	})
	return s
}

func (s *pushServer) serve(ws *websocket.Conn) {
	defer ws.Close()
	sc := &serverConn{ws: ws}
	if s.welcome {
		if err := sc.write(`{"type":"connected","payload":{"userId":"u1","clientId":"srv-1"}}`); err != nil {
			return
		}
	}

	s.mu.Lock()
	s.conns = append(s.conns, sc)
	s.mu.Unlock()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
		_ = sc.write(`{"type":"ack","payload":"Message received"}`)
	}
}

// waitConns blocks until n connections have been accepted.
func (s *pushServer) waitConns(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.conns) >= n
	}, 2*time.Second, 5*time.Millisecond)
}

// push writes frame to the newest connection.
func (s *pushServer) push(t *testing.T, frame string) {
	t.Helper()
	s.waitConns(t, 1)
	s.mu.Lock()
	sc := s.conns[len(s.conns)-1]
	s.mu.Unlock()
	_ = sc.write(frame)
}

// dropAll closes every server-side connection.
func (s *pushServer) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.ws.SetReadDeadline(time.Now())
		c.ws.Close()
	}
}

func (s *pushServer) acceptedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func testDialer(mutate ...func(*config.HarnessConfig)) *Dialer {
	cfg := config.DefaultHarnessConfig()
	cfg.HandshakeTimeout = 2 * time.Second
	for _, m := range mutate {
		m(cfg)
	}
	return NewDialer(cfg, zerolog.Nop())
}

func openTest(t *testing.T, d *Dialer, addr string) *Connection {
	t.Helper()
	c, err := d.Open(context.Background(), addr, goodToken)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

const createdWork = `{"type":"category_update","payload":{"action":"created","category":{"id":"c1","title":"Work","userId":"u1"}}}`

func TestOpenRecordsFramesInOrder(t *testing.T) {
	srv := newPushServer(t, false)
	c := openTest(t, testDialer(), srv.addr)
	assert.Equal(t, Open, c.State())

	srv.push(t, createdWork)
	srv.push(t, `{"type":"category_update","payload":{"action":"updated","category":{"id":"c1","title":"Work Projects","userId":"u1"}}}`)
	srv.push(t, `{"type":"category_update","payload":{"action":"deleted","categoryId":"c1"}}`)

	_, err := c.WaitForAction(context.Background(), types.CategoryUpdate, types.ActionDeleted, 2*time.Second)
	require.NoError(t, err)

	envs := c.Log().Envelopes()
	require.Len(t, envs, 3)
	assert.Equal(t, types.ActionCreated, envs[0].Payload.Action)
	assert.Equal(t, types.ActionUpdated, envs[1].Payload.Action)
	assert.Equal(t, types.ActionDeleted, envs[2].Payload.Action)
}

func TestMalformedFrameIsSwallowed(t *testing.T) {
	srv := newPushServer(t, false)
	c := openTest(t, testDialer(), srv.addr)

	srv.push(t, `{"type":"category_update","payload":`)
	srv.push(t, `{"type":"category_update","payload":{"action":"exploded"}}`)
	srv.push(t, createdWork)

	env, err := c.WaitForType(context.Background(), types.CategoryUpdate, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Work", env.Payload.Category.Title)

	assert.Equal(t, 1, c.Log().Len())
	assert.Equal(t, Open, c.State())
}

func TestOpenMissingCredential(t *testing.T) {
	srv := newPushServer(t, false)

	_, err := testDialer().Open(context.Background(), srv.addr, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthRejected)
	assert.Equal(t, 0, srv.acceptedCount())
}

func TestOpenInvalidCredential(t *testing.T) {
	srv := newPushServer(t, false)

	_, err := testDialer().Open(context.Background(), srv.addr, "invalid-token")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthRejected)
}

func TestOpenHandshakeTimeout(t *testing.T) {
	// Accept TCP but never answer the upgrade request.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	var held []net.Conn
	var mu sync.Mutex
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			held = append(held, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range held {
			c.Close()
		}
	})

	d := testDialer(func(c *config.HarnessConfig) { c.HandshakeTimeout = 200 * time.Millisecond })
	start := time.Now()
	_, err = d.Open(context.Background(), "ws://"+ln.Addr().String()+"/api/ws", goodToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandshakeTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestOpenNetworkError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = testDialer().Open(context.Background(), "ws://"+addr+"/api/ws", goodToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.NotErrorIs(t, err, ErrAuthRejected)
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := newPushServer(t, false)
	c := openTest(t, testDialer(), srv.addr)

	require.NoError(t, c.Close())
	assert.Equal(t, Disconnected, c.State())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Send(map[string]string{"hello": "world"}), ErrClosed)
}

func TestFramesAfterCloseAreNotRecorded(t *testing.T) {
	srv := newPushServer(t, false)
	c := openTest(t, testDialer(), srv.addr)

	srv.push(t, createdWork)
	_, err := c.WaitForType(context.Background(), types.CategoryUpdate, 2*time.Second)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	srv.push(t, createdWork)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, c.Log().Len())
}

func TestReconnectKeepsLogAndCounts(t *testing.T) {
	srv := newPushServer(t, false)
	c := openTest(t, testDialer(), srv.addr)

	srv.push(t, createdWork)
	_, err := c.WaitForType(context.Background(), types.CategoryUpdate, 2*time.Second)
	require.NoError(t, err)
	mark := c.Log().Mark()

	require.NoError(t, c.Reconnect(context.Background()))
	assert.Equal(t, uint64(1), c.Reconnects())
	assert.Equal(t, Open, c.State())
	srv.waitConns(t, 2)

	srv.push(t, `{"type":"statement_update","payload":{"action":"deleted","statementId":"s1"}}`)
	env, err := c.WaitFor(context.Background(), types.StatementUpdate, waiter.ResourceID("s1"), 2*time.Second, waiter.After(mark))
	require.NoError(t, err)
	assert.Equal(t, types.ActionDeleted, env.Payload.Action)
	assert.Equal(t, 2, c.Log().Len())

	require.NoError(t, c.Reconnect(context.Background()))
	assert.Equal(t, uint64(2), c.Reconnects())
}

func TestServerDropMovesToDisconnected(t *testing.T) {
	srv := newPushServer(t, false)
	c := openTest(t, testDialer(), srv.addr)

	srv.waitConns(t, 1)
	srv.dropAll()

	require.Eventually(t, func() bool {
		return c.State() == Disconnected
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, c.Close())
}

func TestAwaitWelcome(t *testing.T) {
	srv := newPushServer(t, true)
	d := testDialer(func(c *config.HarnessConfig) { c.AwaitWelcome = true })
	c := openTest(t, d, srv.addr)

	w := c.Welcome()
	assert.Equal(t, "u1", w.UserID)
	assert.Equal(t, "srv-1", w.ClientID)
	assert.Equal(t, 0, c.Log().Len())
}

func TestAwaitWelcomeTimesOut(t *testing.T) {
	srv := newPushServer(t, false)
	d := testDialer(func(c *config.HarnessConfig) {
		c.AwaitWelcome = true
		c.HandshakeTimeout = 200 * time.Millisecond
	})

	_, err := d.Open(context.Background(), srv.addr, goodToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandshakeTimeout)
}

func TestSendReceivesAck(t *testing.T) {
	srv := newPushServer(t, false)
	c := openTest(t, testDialer(), srv.addr)

	require.NoError(t, c.Send(map[string]any{"type": "ping", "payload": "hi"}))

	env, err := c.WaitForType(context.Background(), types.Ack, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(env.Raw), "Message received"))
}

func TestSendUsesWriteTimeout(t *testing.T) {
	srv := newPushServer(t, false)
	d := testDialer()
	c := openTest(t, d, srv.addr)

	// Only the handshake is bounded by HandshakeTimeout.
	d.cfg.HandshakeTimeout = time.Nanosecond
	d.cfg.WriteTimeout = 2 * time.Second
	require.NoError(t, c.Send(map[string]any{"type": "ping"}))
	_, err := c.WaitForType(context.Background(), types.Ack, 2*time.Second)
	require.NoError(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "disconnected", Disconnected.String())
}
