package relay

import "time"

// Security/performance limits.
const (
	// Max bytes per websocket frame read (hard limit). The relay ignores
	// inbound frame content, but still bounds what it will buffer.
	maxFrameBytes = 64 << 10 // 64 KiB
)

const (
	// Heartbeat defaults (overridable via GatewayConfig).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection inbound frame rate limits (frames per window).
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second
)
