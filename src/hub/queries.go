package hub

import (
	"github.com/orchestra-mcp/notify-harness/src/types"
)

// ConnectedClients returns a list of connected client IDs.
func (h *Hub) ConnectedClients() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// ClientInfo returns info for a connected client, or nil.
func (h *Hub) ClientInfo(clientID string) *types.ClientInfo {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	info := client.Info()
	return &info
}

// UserClients returns the number of connections a user holds.
func (h *Hub) UserClients(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// UserCount returns the number of users with at least one connection.
func (h *Hub) UserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// UserClientInfos returns metadata for every connection of userID.
func (h *Hub) UserClientInfos(userID string) []types.ClientInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	infos := make([]types.ClientInfo, 0, len(h.users[userID]))
	for id := range h.users[userID] {
		if c, ok := h.clients[id]; ok {
			infos = append(infos, c.Info())
		}
	}
	return infos
}
