package providers

import (
	"github.com/orchestra-mcp/notify-harness/src/bridge"
	"github.com/orchestra-mcp/notify-harness/src/hub"
	"github.com/orchestra-mcp/notify-harness/src/service"
	"github.com/orchestra-mcp/notify-harness/src/types"
)

// Compile-time interface assertions.
var (
	_ types.Conn             = (*fasthttpConn)(nil)
	_ hub.Pinger             = (*fasthttpConn)(nil)
	_ hub.MessageBridge      = (*bridge.RedisBridge)(nil)
	_ bridge.Bridge          = (*bridge.RedisBridge)(nil)
	_ bridge.BroadcastTarget = (*hub.Hub)(nil)
	_ service.Notifier       = (*hub.Hub)(nil)
)
