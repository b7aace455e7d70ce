package hub

import (
	"sync"

	"github.com/orchestra-mcp/notify-harness/src/types"
	"github.com/rs/zerolog"
)

// MessageBridge publishes deliveries to other server instances.
// Defined here to avoid circular imports with the bridge package.
type MessageBridge interface {
	Publish(d types.Delivery) error
	Available() bool
}

// Hub manages push clients and routes user-scoped deliveries to them.
// All deliveries pass through the Run loop, so a user's clients see
// envelopes in the order they were submitted.
type Hub struct {
	clients map[string]*Client
	users   map[string]map[string]bool // userID -> set of clientIDs

	register   chan *Client
	unregister chan *Client
	incoming   chan inbound
	deliver    chan types.Delivery
	localCast  chan types.Delivery // deliveries from bridge, no re-publish

	onConnect []func(clientID, userID string)
	onDisconn []func(clientID, userID string)

	sendBuffer int
	welcome    bool

	bridge MessageBridge
	mu     sync.RWMutex
	logger zerolog.Logger
	done   chan struct{}
	once   sync.Once
}

type inbound struct {
	client *Client
	body   any
}

// Options tune per-client behavior.
type Options struct {
	SendBuffer int  // per-client queued frames before the client is dropped
	Welcome    bool // send a connected frame once a client is registered
}

// New creates a new Hub instance.
func New(opts Options, logger zerolog.Logger) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	return &Hub{
		clients:    make(map[string]*Client),
		users:      make(map[string]map[string]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		incoming:   make(chan inbound, 256),
		deliver:    make(chan types.Delivery, 256),
		localCast:  make(chan types.Delivery, 256),
		sendBuffer: opts.SendBuffer,
		welcome:    opts.Welcome,
		logger:     logger.With().Str("component", "hub").Logger(),
		done:       make(chan struct{}),
	}
}

// SetBridge attaches a cross-instance message bridge to the hub.
// When set, deliveries are also forwarded to other instances.
func (h *Hub) SetBridge(b MessageBridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bridge = b
}

// BroadcastToLocal delivers a bridged delivery to local clients only.
// It does not re-publish, preventing loops between instances.
func (h *Hub) BroadcastToLocal(d types.Delivery) {
	select {
	case h.localCast <- d:
	case <-h.done:
	}
}

// Run starts the hub event loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.incoming:
			h.handleMessage(msg)
		case d := <-h.deliver:
			h.publishToBridge(d)
			h.deliverLocal(d)
		case d := <-h.localCast:
			h.deliverLocal(d)
		case <-h.done:
			h.closeAll()
			return
		}
	}
}

// Stop halts the hub event loop and disconnects every client.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Register queues a client for registration.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

// Unregister queues a client for removal.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// OnConnection registers a callback for new connections.
func (h *Hub) OnConnection(cb func(clientID, userID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onConnect = append(h.onConnect, cb)
}

// OnDisconnection registers a callback for disconnections.
func (h *Hub) OnDisconnection(cb func(clientID, userID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDisconn = append(h.onDisconn, cb)
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	if h.users[c.UserID] == nil {
		h.users[c.UserID] = make(map[string]bool)
	}
	h.users[c.UserID][c.ID] = true
	callbacks := append([]func(string, string){}, h.onConnect...)
	h.mu.Unlock()

	h.logger.Info().Str("client_id", c.ID).Str("user_id", c.UserID).Msg("client registered")

	if h.welcome {
		c.enqueue(types.Frame{
			Type:    types.Connected,
			Payload: map[string]string{"userId": c.UserID, "clientId": c.ID},
		})
	}
	for _, cb := range callbacks {
		cb(c.ID, c.UserID)
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	if set := h.users[c.UserID]; set != nil {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(h.users, c.UserID)
		}
	}
	callbacks := append([]func(string, string){}, h.onDisconn...)
	h.mu.Unlock()

	c.Close()
	h.logger.Info().Str("client_id", c.ID).Str("user_id", c.UserID).Msg("client unregistered")

	for _, cb := range callbacks {
		cb(c.ID, c.UserID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.users = make(map[string]map[string]bool)
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
