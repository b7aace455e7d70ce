package providers

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/orchestra-mcp/notify-harness/src/auth"
	"github.com/orchestra-mcp/notify-harness/src/hub"
	"github.com/orchestra-mcp/notify-harness/src/store"
	"github.com/valyala/fasthttp"
)

const (
	pushPath  = "/api/ws"
	userIDKey = "userID"
)

// RegisterRoutes registers the REST API on the /api group. The push
// upgrade is served by PushHandler because Fiber does not expose the
// *fasthttp.RequestCtx the upgrader needs.
func (s *Server) RegisterRoutes(api fiber.Router) {
	api.Get("/health", s.handleHealth)
	api.Post("/register", s.handleRegister)
	api.Post("/login", s.handleLogin)
	api.Post("/auth/register", s.handleRegister)
	api.Post("/auth/login", s.handleLogin)

	api.Get("/profile", s.requireAuth(s.handleProfile))
	api.Get("/ws/info", s.requireAuth(s.handleInfo))
	api.Get("/ws/clients", s.requireAuth(s.handleClients))

	api.Get("/categories", s.requireAuth(s.listCategories))
	api.Post("/categories", s.requireAuth(s.createCategory))
	api.Get("/categories/:id", s.requireAuth(s.getCategory))
	api.Put("/categories/:id", s.requireAuth(s.updateCategory))
	api.Delete("/categories/:id", s.requireAuth(s.deleteCategory))

	api.Get("/statements", s.requireAuth(s.listStatements))
	api.Post("/statements", s.requireAuth(s.createStatement))
	api.Get("/statements/:id", s.requireAuth(s.getStatement))
	api.Put("/statements/:id", s.requireAuth(s.updateStatement))
	api.Delete("/statements/:id", s.requireAuth(s.deleteStatement))
}

// requireAuth resolves the bearer token into the caller's user id
// before running next.
func (s *Server) requireAuth(next fiber.Handler) fiber.Handler {
	return func(c fiber.Ctx) error {
		token, err := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		userID, err := s.service.Authenticate(token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, auth.ErrInvalidToken.Error())
		}
		c.Locals(userIDKey, userID)
		return next(c)
	}
}

func callerID(c fiber.Ctx) string {
	id, _ := c.Locals(userIDKey).(string)
	return id
}

// handleError renders every failure as {"error": "..."}.
func (s *Server) handleError(c fiber.Ctx, err error) error {
	status := statusFor(err)
	msg := err.Error()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		msg = fe.Message
	}
	if status >= fiber.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		msg = "internal server error"
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, store.ErrInvalid):
		return fiber.StatusBadRequest
	case errors.Is(err, store.ErrBadPassword), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrMissingToken):
		return fiber.StatusUnauthorized
	case errors.Is(err, store.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func bindJSON(c fiber.Ctx, out any) error {
	if err := json.Unmarshal(c.Body(), out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type categoryBody struct {
	Title string `json:"title"`
}

type statementBody struct {
	Text       string `json:"text"`
	CategoryID string `json:"categoryId"`
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleRegister(c fiber.Ctx) error {
	var in credentials
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	token, user, err := s.service.Register(in.Email, in.Password)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"token": token, "user": user})
}

func (s *Server) handleLogin(c fiber.Ctx) error {
	var in credentials
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	token, user, err := s.service.Login(in.Email, in.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"token": token, "user": user})
}

func (s *Server) handleProfile(c fiber.Ctx) error {
	user, err := s.service.Profile(callerID(c))
	if err != nil {
		return err
	}
	return c.JSON(user)
}

func (s *Server) listCategories(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"categories": s.service.Categories(callerID(c))})
}

func (s *Server) getCategory(c fiber.Ctx) error {
	cat, err := s.service.Category(callerID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(cat)
}

func (s *Server) createCategory(c fiber.Ctx) error {
	var in categoryBody
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	cat, err := s.service.CreateCategory(callerID(c), in.Title)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(cat)
}

func (s *Server) updateCategory(c fiber.Ctx) error {
	var in categoryBody
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	cat, err := s.service.UpdateCategory(callerID(c), c.Params("id"), in.Title)
	if err != nil {
		return err
	}
	return c.JSON(cat)
}

func (s *Server) deleteCategory(c fiber.Ctx) error {
	if err := s.service.DeleteCategory(callerID(c), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Category deleted successfully"})
}

func (s *Server) listStatements(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"statements": s.service.Statements(callerID(c))})
}

func (s *Server) getStatement(c fiber.Ctx) error {
	st, err := s.service.Statement(callerID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(st)
}

func (s *Server) createStatement(c fiber.Ctx) error {
	var in statementBody
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	st, err := s.service.CreateStatement(callerID(c), in.Text, in.CategoryID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(st)
}

func (s *Server) updateStatement(c fiber.Ctx) error {
	var in statementBody
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	st, err := s.service.UpdateStatement(callerID(c), c.Params("id"), in.Text, in.CategoryID)
	if err != nil {
		return err
	}
	return c.JSON(st)
}

func (s *Server) deleteStatement(c fiber.Ctx) error {
	if err := s.service.DeleteStatement(callerID(c), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Statement deleted successfully"})
}

// PushHandler returns a raw fasthttp handler for push upgrades. The
// bearer token is checked before the upgrade so a rejected client sees
// a plain 401 response.
func (s *Server) PushHandler() fasthttp.RequestHandler {
	upgrader := websocket.FastHTTPUpgrader{
		ReadBufferSize:  s.cfg.ReadBufferSize,
		WriteBufferSize: s.cfg.WriteBufferSize,
		CheckOrigin:     func(*fasthttp.RequestCtx) bool { return true },
	}

	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			writeRawError(ctx, fasthttp.StatusUpgradeRequired, "WebSocket upgrade required")
			return
		}

		token, err := auth.BearerToken(string(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization)))
		if err != nil {
			writeRawError(ctx, fasthttp.StatusUnauthorized, err.Error())
			return
		}
		userID, err := s.service.Authenticate(token)
		if err != nil {
			writeRawError(ctx, fasthttp.StatusUnauthorized, auth.ErrInvalidToken.Error())
			return
		}
		if s.cfg.MaxConnections > 0 && s.hub.ClientCount() >= s.cfg.MaxConnections {
			writeRawError(ctx, fasthttp.StatusServiceUnavailable, "too many connections")
			return
		}

		h := s.hub
		err = upgrader.Upgrade(ctx, func(ws *websocket.Conn) {
			conn := newFasthttpConn(ws, s.cfg.ReadLimit, s.cfg.PongWait(), s.cfg.WriteWait())
			client := hub.NewClient(userID, conn, h)
			h.Register(client)
			go client.WritePump(s.cfg.PingPeriod())
			client.ReadPump()
		})
		if err != nil {
			s.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

func writeRawError(ctx *fasthttp.RequestCtx, status int, msg string) {
	body, _ := json.Marshal(map[string]string{"error": msg})
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// fasthttpConn wraps fasthttp/websocket.Conn to satisfy types.Conn and
// hub.Pinger. Every write carries a deadline and every pong extends
// the read deadline.
type fasthttpConn struct {
	conn      *websocket.Conn
	writeWait time.Duration
	pongWait  time.Duration
}

func newFasthttpConn(ws *websocket.Conn, readLimit int64, pongWait, writeWait time.Duration) *fasthttpConn {
	if readLimit > 0 {
		ws.SetReadLimit(readLimit)
	}
	if pongWait > 0 {
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
	}
	return &fasthttpConn{conn: ws, writeWait: writeWait, pongWait: pongWait}
}

func (f *fasthttpConn) WriteJSON(v any) error {
	if f.writeWait > 0 {
		_ = f.conn.SetWriteDeadline(time.Now().Add(f.writeWait))
	}
	return f.conn.WriteJSON(v)
}

func (f *fasthttpConn) ReadJSON(v any) error { return f.conn.ReadJSON(v) }

func (f *fasthttpConn) Ping() error {
	return f.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(f.writeWait))
}

// Close unblocks a pending read before closing the socket, so the read
// pump exits and the upgrade handler returns.
func (f *fasthttpConn) Close() error {
	_ = f.conn.SetReadDeadline(time.Now())
	return f.conn.Close()
}
