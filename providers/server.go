// Package providers assembles the reference notification server: the
// REST API, the push endpoint and the optional cross-instance bridge.
package providers

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/orchestra-mcp/notify-harness/config"
	"github.com/orchestra-mcp/notify-harness/src/auth"
	"github.com/orchestra-mcp/notify-harness/src/bridge"
	"github.com/orchestra-mcp/notify-harness/src/hub"
	"github.com/orchestra-mcp/notify-harness/src/service"
	"github.com/orchestra-mcp/notify-harness/src/store"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// Server is a runnable reference server.
type Server struct {
	cfg     *config.SocketConfig
	logger  zerolog.Logger
	hub     *hub.Hub
	service *service.Service
	bridge  bridge.Bridge
	app     *fiber.App
	http    *fasthttp.Server

	mu     sync.Mutex
	ln     net.Listener
	served chan struct{}
	active bool
}

// NewServer creates a server. Nothing is bound until Start.
func NewServer(cfg *config.SocketConfig, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "server").Logger()
	h := hub.New(hub.Options{SendBuffer: cfg.SendBuffer, Welcome: cfg.Welcome}, logger)
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenLifetime())
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		hub:     h,
		service: service.New(store.New(cfg.BcryptCost), issuer, h, logger),
	}

	s.app = fiber.New(fiber.Config{ErrorHandler: s.handleError})
	s.RegisterRoutes(s.app.Group("/api"))

	api := s.app.Handler()
	push := s.PushHandler()
	s.http = &fasthttp.Server{
		Name: "notify-server",
		Handler: func(ctx *fasthttp.RequestCtx) {
			if string(ctx.Path()) == pushPath {
				push(ctx)
				return
			}
			api(ctx)
		},
		ReadBufferSize:  cfg.ReadBufferSize * 4,
		WriteBufferSize: cfg.WriteBufferSize * 4,

		// Push sockets are closed by their client pumps.
		KeepHijackedConns: true,
	}
	return s
}

// Hub exposes the push hub.
func (s *Server) Hub() *hub.Hub { return s.hub }

// Start binds cfg.Addr and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve starts the hub and serves on ln in the background. A server
// serves once; it cannot be restarted after Stop.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.served != nil {
		return errors.New("server already started")
	}

	go s.hub.Run()
	if bridge.Enabled() {
		s.initBridge()
	}

	s.ln = ln
	s.served = make(chan struct{})
	go func() {
		defer close(s.served)
		if err := s.http.Serve(ln); err != nil {
			s.logger.Error().Err(err).Msg("serve failed")
		}
	}()

	s.active = true
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("notification server started")
	return nil
}

// initBridge tries to start the Redis pub/sub bridge.
// If Redis is not reachable, the hub runs in standalone mode.
func (s *Server) initBridge() {
	cfg := bridge.RedisConfigFromEnv()
	rb := bridge.NewRedisBridge(cfg, s.hub, s.logger)

	if err := rb.Start(); err != nil {
		s.logger.Warn().Err(err).Msg("redis bridge unavailable, running standalone")
		_ = rb.Stop()
		return
	}

	s.bridge = rb
	s.hub.SetBridge(rb)
	s.logger.Info().Str("redis_addr", cfg.Addr).Msg("redis bridge connected")
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// URL returns the http base URL of the running server.
func (s *Server) URL() string {
	return "http://" + s.Addr()
}

// Stop closes every push connection, stops the bridge and the listener.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil
	}
	s.active = false

	if s.bridge != nil {
		if err := s.bridge.Stop(); err != nil {
			s.logger.Error().Err(err).Msg("bridge stop error")
		}
		s.bridge = nil
	}
	// The hub stops every client; each write pump closes its socket.
	s.hub.Stop()

	err := s.ln.Close()
	<-s.served
	s.logger.Info().Msg("notification server stopped")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close listener: %w", err)
	}
	return nil
}
