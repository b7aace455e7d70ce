package providers

import (
	"github.com/gofiber/fiber/v3"
)

// handleInfo describes the push endpoint and its load.
func (s *Server) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoint":  pushPath,
		"clients":   s.hub.ClientCount(),
		"users":     s.hub.UserCount(),
		"bridged":   s.bridged(),
	})
}

func (s *Server) bridged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bridge != nil && s.bridge.Available()
}

// handleClients lists the caller's own push connections.
func (s *Server) handleClients(c fiber.Ctx) error {
	infos := s.hub.UserClientInfos(callerID(c))
	return c.JSON(fiber.Map{
		"clients": infos,
		"count":   len(infos),
	})
}
