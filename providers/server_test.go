package providers

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/orchestra-mcp/notify-harness/config"
	"github.com/orchestra-mcp/notify-harness/src/client"
	"github.com/orchestra-mcp/notify-harness/src/conn"
	"github.com/orchestra-mcp/notify-harness/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"
)

func startTestServer(t *testing.T, mutate func(*config.SocketConfig)) (*Server, *config.HarnessConfig) {
	t.Helper()
	t.Setenv("REDIS_ADDR", "")

	scfg := config.DefaultConfig()
	scfg.Addr = "127.0.0.1:0"
	scfg.JWTSecret = "test-secret"
	scfg.BcryptCost = bcrypt.MinCost
	if mutate != nil {
		mutate(scfg)
	}
	srv := NewServer(scfg, zerolog.Nop())
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })

	hcfg := config.DefaultHarnessConfig()
	hcfg.BaseURL = srv.URL()
	hcfg.AwaitWelcome = true
	hcfg.WaitTimeout = 5 * time.Second
	return srv, hcfg
}

func register(t *testing.T, hcfg *config.HarnessConfig, email string) *client.Client {
	t.Helper()
	api := client.New(hcfg, zerolog.Nop())
	_, err := api.Register(context.Background(), email, "Password123!")
	require.NoError(t, err)
	return api
}

func TestHealthAndAuth(t *testing.T) {
	_, hcfg := startTestServer(t, nil)
	ctx := context.Background()
	api := client.New(hcfg, zerolog.Nop())

	require.NoError(t, api.Health(ctx))

	resp, err := api.Register(ctx, "alice@example.com", "Password123!")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "alice@example.com", resp.User.Email)

	_, err = api.Register(ctx, "alice@example.com", "Password123!")
	assert.Equal(t, fasthttp.StatusConflict, client.StatusOf(err))
	_, err = api.Register(ctx, "bad", "Password123!")
	assert.True(t, client.IsBadRequest(err))

	_, err = api.Login(ctx, "alice@example.com", "wrong")
	assert.True(t, client.IsUnauthorized(err))
	login, err := api.Login(ctx, "alice@example.com", "Password123!")
	require.NoError(t, err)

	profile, err := api.WithToken(login.Token).Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, profile.ID)

	_, err = api.WithToken("").Profile(ctx)
	assert.True(t, client.IsUnauthorized(err))
	_, err = api.WithToken("garbage").ListCategories(ctx)
	assert.True(t, client.IsUnauthorized(err))
}

func TestResourceStatusCodes(t *testing.T) {
	_, hcfg := startTestServer(t, nil)
	ctx := context.Background()
	alice := register(t, hcfg, "alice@example.com")
	bob := register(t, hcfg, "bob@example.com")

	_, err := alice.CreateCategory(ctx, "")
	assert.True(t, client.IsBadRequest(err))

	cat, err := alice.CreateCategory(ctx, "Work")
	require.NoError(t, err)
	list, err := alice.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, cat.ID, list[0].ID)

	_, err = bob.GetCategory(ctx, cat.ID)
	assert.True(t, client.IsForbidden(err))
	_, err = alice.GetCategory(ctx, "missing")
	assert.True(t, client.IsNotFound(err))

	_, err = bob.CreateStatement(ctx, "sneaky", cat.ID)
	assert.True(t, client.IsForbidden(err))
	st, err := alice.CreateStatement(ctx, "hello", cat.ID)
	require.NoError(t, err)
	assert.Equal(t, cat.ID, st.CategoryID)

	sts, err := alice.ListStatements(ctx)
	require.NoError(t, err)
	assert.Len(t, sts, 1)
	empty, err := bob.ListStatements(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, alice.DeleteCategory(ctx, cat.ID))
	got, err := alice.GetStatement(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, cat.ID, got.CategoryID)
}

func TestPushEndpointRejectsBadCredentials(t *testing.T) {
	_, hcfg := startTestServer(t, nil)
	wsURL, err := hcfg.WSURL()
	require.NoError(t, err)
	d := conn.NewDialer(hcfg, zerolog.Nop())

	_, err = d.Open(context.Background(), wsURL, "not-a-token")
	assert.ErrorIs(t, err, conn.ErrAuthRejected)
}

func TestPushDeliversToOwnerOnly(t *testing.T) {
	srv, hcfg := startTestServer(t, nil)
	ctx := context.Background()
	wsURL, err := hcfg.WSURL()
	require.NoError(t, err)
	d := conn.NewDialer(hcfg, zerolog.Nop())

	alice := register(t, hcfg, "alice@example.com")
	bob := register(t, hcfg, "bob@example.com")
	ac, err := d.Open(ctx, wsURL, alice.Token())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ac.Close() })
	bc, err := d.Open(ctx, wsURL, bob.Token())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bc.Close() })

	assert.Equal(t, 2, srv.Hub().ClientCount())

	cat, err := alice.CreateCategory(ctx, "Work")
	require.NoError(t, err)
	env, err := ac.WaitForAction(ctx, types.CategoryUpdate, types.ActionCreated, hcfg.WaitTimeout)
	require.NoError(t, err)
	assert.Equal(t, cat.ID, env.ResourceID())
	assert.Equal(t, ac.Welcome().UserID, env.UserID)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, bc.Log().Len())
}

func TestPushAcksClientMessages(t *testing.T) {
	_, hcfg := startTestServer(t, nil)
	ctx := context.Background()
	wsURL, err := hcfg.WSURL()
	require.NoError(t, err)

	alice := register(t, hcfg, "alice@example.com")
	c, err := conn.NewDialer(hcfg, zerolog.Nop()).Open(ctx, wsURL, alice.Token())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Send(map[string]string{"type": "hello"}))
	_, err = c.WaitForType(ctx, types.Ack, hcfg.WaitTimeout)
	require.NoError(t, err)
}

func TestMaxConnections(t *testing.T) {
	_, hcfg := startTestServer(t, func(c *config.SocketConfig) { c.MaxConnections = 1 })
	ctx := context.Background()
	wsURL, err := hcfg.WSURL()
	require.NoError(t, err)
	d := conn.NewDialer(hcfg, zerolog.Nop())
	alice := register(t, hcfg, "alice@example.com")

	first, err := d.Open(ctx, wsURL, alice.Token())
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close() })

	_, err = d.Open(ctx, wsURL, alice.Token())
	assert.ErrorIs(t, err, conn.ErrNetwork)
}

func TestStopIsIdempotent(t *testing.T) {
	srv, _ := startTestServer(t, nil)
	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop())
	assert.Equal(t, 0, srv.Hub().ClientCount())
}

func TestStopDisconnectsPushClients(t *testing.T) {
	srv, hcfg := startTestServer(t, nil)
	ctx := context.Background()
	wsURL, err := hcfg.WSURL()
	require.NoError(t, err)

	alice := register(t, hcfg, "alice@example.com")
	c, err := conn.NewDialer(hcfg, zerolog.Nop()).Open(ctx, wsURL, alice.Token())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.Equal(t, conn.Open, c.State())

	require.NoError(t, srv.Stop())
	require.Eventually(t, func() bool {
		return c.State() == conn.Disconnected
	}, 3*time.Second, 10*time.Millisecond)
}

func TestPushConnCloseUnblocksRead(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	upgrader := websocket.FastHTTPUpgrader{}
	accepted := make(chan *fasthttpConn, 1)
	readErr := make(chan error, 1)
	srv := &fasthttp.Server{KeepHijackedConns: true, Handler: func(ctx *fasthttp.RequestCtx) {
		_ = upgrader.Upgrade(ctx, func(ws *websocket.Conn) {
			fc := newFasthttpConn(ws, 512, time.Minute, time.Second)
			accepted <- fc
			var body any
			readErr <- fc.ReadJSON(&body)
		})
	}}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	peer, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/api/ws", nil)
	require.NoError(t, err)
	defer peer.Close()

	var fc *fasthttpConn
	select {
	case fc = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade not accepted")
	}
	assert.NoError(t, fc.Close())

	select {
	case err := <-readErr:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("read still blocked after Close")
	}

	// The peer sees the socket go away rather than a read timeout.
	_ = peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = peer.ReadMessage()
	require.Error(t, err)
	var netErr net.Error
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout())
	}
}
