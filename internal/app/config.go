package app

import (
	"time"

	"relay/internal/relay"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Max bytes accepted for an API request body.
	MaxBodyBytes int

	// Directory served at "/" for the bundled web client. Empty disables it.
	StaticDir string

	// How long a name survives after its connection drops.
	DisconnectGrace time.Duration

	// WebSocket gateway policy.
	WSOriginRequired    bool
	WSAllowedOrigins    []string
	WSDevInsecure       bool
	WSWriteTimeout      time.Duration
	WSSendQueue         int
	WSHeartbeatInterval time.Duration
	WSHeartbeatTimeout  time.Duration
	WSRateEvents        int
	WSRateWindow        time.Duration

	// CORS policy for the REST endpoints the browser client calls.
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
//
// Security defaults: Origin is required and only localhost is allowed,
// secure-by-default for dev. Deployments set RELAY_WS_ALLOWED_ORIGINS.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("RELAY_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("RELAY_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("RELAY_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("RELAY_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("RELAY_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("RELAY_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("RELAY_HTTP_MAX_HEADER_BYTES", 1<<20),

		MaxBodyBytes: EnvInt("RELAY_HTTP_MAX_BODY_BYTES", 16<<10),

		StaticDir: EnvString("RELAY_STATIC_DIR", "static"),

		DisconnectGrace: EnvDuration("RELAY_DISCONNECT_GRACE", relay.DefaultDisconnectGrace),

		WSOriginRequired:    EnvBool("RELAY_WS_ORIGIN_REQUIRED", true),
		WSAllowedOrigins:    EnvCSV("RELAY_WS_ALLOWED_ORIGINS", "http://localhost,http://127.0.0.1"),
		WSDevInsecure:       EnvBool("RELAY_WS_DEV_INSECURE", false),
		WSWriteTimeout:      EnvDuration("RELAY_WS_WRITE_TIMEOUT", 5*time.Second),
		WSSendQueue:         EnvInt("RELAY_WS_SEND_QUEUE", 256),
		WSHeartbeatInterval: EnvDuration("RELAY_WS_HEARTBEAT_INTERVAL", 25*time.Second),
		WSHeartbeatTimeout:  EnvDuration("RELAY_WS_HEARTBEAT_TIMEOUT", 5*time.Second),
		WSRateEvents:        EnvInt("RELAY_WS_RATE_EVENTS", 120),
		WSRateWindow:        EnvDuration("RELAY_WS_RATE_WINDOW", 10*time.Second),

		CORSAllowedOrigins:   EnvCSV("RELAY_CORS_ALLOWED_ORIGINS", "http://localhost:*,http://127.0.0.1:*"),
		CORSAllowCredentials: EnvBool("RELAY_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("RELAY_CORS_MAX_AGE_SECONDS", 600),
	}
}
