// Package harness owns the per-test state of a notification test: the
// identities it registered, their REST clients and their push
// connections. A Fixture is created in test setup and closed in
// teardown; nothing is shared between fixtures.
package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/orchestra-mcp/notify-harness/config"
	"github.com/orchestra-mcp/notify-harness/src/client"
	"github.com/orchestra-mcp/notify-harness/src/conn"
	"github.com/orchestra-mcp/notify-harness/src/types"
	"github.com/rs/zerolog"
)

// DefaultPassword is used for every registered test identity.
const DefaultPassword = "Password123!"

// ErrFixtureClosed is returned when a closed fixture is asked for more
// identities.
var ErrFixtureClosed = errors.New("fixture closed")

// Identity is one registered user with its credential, REST client and
// push connection.
type Identity struct {
	Email    string
	Password string
	User     types.User
	API      *client.Client
	Conn     *conn.Connection
}

// Token returns the identity's bearer credential.
func (id *Identity) Token() string { return id.API.Token() }

// Fixture creates identities against one server and tears them down
// together.
type Fixture struct {
	cfg    *config.HarnessConfig
	wsURL  string
	api    *client.Client
	dialer *conn.Dialer
	logger zerolog.Logger

	mu         sync.Mutex
	identities []*Identity
	closed     bool
}

// New creates a fixture for the server described by cfg.
func New(cfg *config.HarnessConfig, logger zerolog.Logger) (*Fixture, error) {
	wsURL, err := cfg.WSURL()
	if err != nil {
		return nil, err
	}
	return &Fixture{
		cfg:    cfg,
		wsURL:  wsURL,
		api:    client.New(cfg, logger),
		dialer: conn.NewDialer(cfg, logger),
		logger: logger.With().Str("component", "fixture").Logger(),
	}, nil
}

// Config returns the harness configuration.
func (f *Fixture) Config() *config.HarnessConfig { return f.cfg }

// API returns an unauthenticated REST client.
func (f *Fixture) API() *client.Client { return f.api.WithToken("") }

// WSURL returns the push endpoint address.
func (f *Fixture) WSURL() string { return f.wsURL }

// Dialer returns the fixture's connection dialer.
func (f *Fixture) Dialer() *conn.Dialer { return f.dialer }

// NewUser registers a fresh identity without opening a connection.
func (f *Fixture) NewUser(ctx context.Context) (*Identity, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, ErrFixtureClosed
	}

	email := "user-" + strings.ToLower(ulid.Make().String()) + "@example.com"
	api := f.api.WithToken("")
	resp, err := api.Register(ctx, email, DefaultPassword)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", email, err)
	}
	id := &Identity{Email: email, Password: DefaultPassword, User: resp.User, API: api}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrFixtureClosed
	}
	f.identities = append(f.identities, id)
	f.logger.Debug().Str("user_id", id.User.ID).Msg("identity registered")
	return id, nil
}

// Connect opens the identity's push connection. An identity holds at
// most one connection; use Reconnect on it to cycle the transport.
func (f *Fixture) Connect(ctx context.Context, id *Identity) error {
	if id.Conn != nil {
		return fmt.Errorf("identity %s already connected", id.User.ID)
	}
	c, err := f.dialer.Open(ctx, f.wsURL, id.Token())
	if err != nil {
		return fmt.Errorf("connect %s: %w", id.User.ID, err)
	}
	id.Conn = c
	return nil
}

// NewIdentity registers a user and opens its push connection.
func (f *Fixture) NewIdentity(ctx context.Context) (*Identity, error) {
	id, err := f.NewUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := f.Connect(ctx, id); err != nil {
		return nil, err
	}
	return id, nil
}

// Identities returns the identities created so far.
func (f *Fixture) Identities() []*Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Identity(nil), f.identities...)
}

// Close closes every connection the fixture opened. It is safe to call
// more than once.
func (f *Fixture) Close() error {
	f.mu.Lock()
	ids := f.identities
	f.identities = nil
	f.closed = true
	f.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if id.Conn == nil {
			continue
		}
		if err := id.Conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id.User.ID, err))
		}
	}
	return errors.Join(errs...)
}
