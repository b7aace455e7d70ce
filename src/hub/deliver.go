package hub

import (
	"github.com/orchestra-mcp/notify-harness/src/types"
)

// handleMessage answers every client message with an ack.
func (h *Hub) handleMessage(msg inbound) {
	h.logger.Debug().Str("client_id", msg.client.ID).Msg("client message")
	if !msg.client.enqueue(types.Frame{Type: types.Ack, Payload: "Message received"}) {
		h.logger.Warn().Str("client_id", msg.client.ID).Msg("ack dropped")
	}
}

// deliverLocal queues a frame for every local client of the user. A
// client whose buffer is full is dropped rather than blocking the loop.
func (h *Hub) deliverLocal(d types.Delivery) {
	h.mu.RLock()
	set := h.users[d.UserID]
	targets := make([]*Client, 0, len(set))
	for id := range set {
		if c, ok := h.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(d.Frame) {
			h.logger.Warn().Str("client_id", c.ID).Str("user_id", d.UserID).Msg("send buffer full, dropping client")
			h.removeClient(c)
		}
	}
}

// publishToBridge forwards a delivery to the bridge if one is attached.
func (h *Hub) publishToBridge(d types.Delivery) {
	h.mu.RLock()
	b := h.bridge
	h.mu.RUnlock()

	if b == nil || !b.Available() {
		return
	}
	if err := b.Publish(d); err != nil {
		h.logger.Error().Err(err).Msg("bridge publish failed")
	}
}

// SendToUser submits env for every connection of userID, here and, via
// the bridge, on other instances.
func (h *Hub) SendToUser(userID string, env types.Envelope) {
	d := types.Delivery{UserID: userID, Frame: env.Frame()}
	select {
	case h.deliver <- d:
	case <-h.done:
	}
}
