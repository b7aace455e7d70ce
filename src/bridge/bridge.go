package bridge

import "github.com/orchestra-mcp/notify-harness/src/types"

// Bridge relays user deliveries between server instances so a user's
// connections on any node receive the same notifications.
type Bridge interface {
	// Publish sends a delivery to all other instances.
	Publish(d types.Delivery) error

	// Start begins listening for deliveries from other instances.
	Start() error

	// Stop shuts down the bridge connection.
	Stop() error

	// Available reports whether the bridge is connected and operational.
	Available() bool
}

// BroadcastTarget is implemented by the Hub to receive deliveries from the bridge.
type BroadcastTarget interface {
	BroadcastToLocal(d types.Delivery)
}
