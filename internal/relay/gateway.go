package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	defaultSendQueueSize = 256
	minSendQueueSize     = 32

	defaultWriteTimeout = 5 * time.Second
	closeGrace          = 1 * time.Second

	maxPingFailures = 3
)

// GatewayConfig carries the tunables for the WebSocket gateway.
// Zero values fall back to safe defaults.
type GatewayConfig struct {
	// Origin policy. When OriginRequired is true, browser-less requests
	// without an Origin header are rejected. AllowedOrigins is matched by
	// full origin or by host.
	OriginRequired bool
	AllowedOrigins []string

	// DevInsecure disables TLS verification inside websocket.Accept.
	// Dev-only knob; it is not an origin policy.
	DevInsecure bool

	WriteTimeout  time.Duration
	SendQueueSize int

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	RateEvents int
	RateWindow time.Duration
}

// Gateway is the WebSocket entrypoint of the relay.
//
// Lifecycle per connection: Connecting (token resolution + upgrade) ->
// Open (registered in the registry, frames pumped) -> Closed (unregistered,
// transport closed). There are no transitions out of Closed.
type Gateway struct {
	log     *slog.Logger
	reg     *Registry
	metrics *Metrics

	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks.
	// Accept() authorizes same-host origins by default; cross-origin
	// requires OriginPatterns.
	originPatterns []string

	devInsecure bool

	writeTimeout  time.Duration
	sendQueueSize int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// NewGateway constructs a gateway with defaults applied.
func NewGateway(log *slog.Logger, reg *Registry, metrics *Metrics, cfg GatewayConfig) *Gateway {
	if log == nil {
		log = slog.Default()
	}

	g := &Gateway{
		log:     log,
		reg:     reg,
		metrics: metrics,

		originRequired: cfg.OriginRequired,
		allowedOrigins: cfg.AllowedOrigins,
		devInsecure:    cfg.DevInsecure,

		writeTimeout:  cfg.WriteTimeout,
		sendQueueSize: cfg.SendQueueSize,

		heartbeatEvery:   cfg.HeartbeatInterval,
		heartbeatTimeout: cfg.HeartbeatTimeout,

		rateEvents: cfg.RateEvents,
		rateWindow: cfg.RateWindow,
	}

	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.allowedOrigins)

	if g.writeTimeout <= 0 {
		g.writeTimeout = defaultWriteTimeout
	}
	if g.sendQueueSize < minSendQueueSize {
		g.sendQueueSize = defaultSendQueueSize
	}
	if g.heartbeatEvery <= 0 {
		g.heartbeatEvery = heartbeatInterval
	}
	if g.heartbeatTimeout <= 0 {
		g.heartbeatTimeout = heartbeatTimeout
	}

	return g
}

// ServeHTTP adapter so the gateway can be mounted as http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request at /messages/{token} to a WebSocket
// session and runs the delivery loop until the connection closes.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.PathValue("token"))
	client, ok := g.reg.ResolveToken(token)
	if !ok {
		g.log.Info("ws.reject.token", "remote", r.RemoteAddr)
		http.Error(w, "unknown token", http.StatusNotFound)
		return
	}

	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	connID, err := NewConnID(time.Now().UTC())
	if err != nil {
		g.log.Error("ws.conn_id.fail", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = ws.Close(websocket.StatusNormalClosure, "bye") }()

	ws.SetReadLimit(maxFrameBytes)

	conn := NewConn(connID, client.Name, g.sendQueueSize)

	if _, err := g.reg.Register(token, conn); err != nil {
		// The reservation was released between resolution and registration.
		g.log.Info("ws.reject.register", "err", err, "conn_id", connID)
		_ = ws.Close(websocket.StatusPolicyViolation, "registration failed")
		return
	}

	g.metrics.connOpened()
	g.log.Info("ws.open", "name", client.Name, "conn_id", connID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// shutdown is idempotent. The registry is updated before the transport
	// closes so a concurrent Send observes the recipient offline rather
	// than pushing into a dead queue.
	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason CloseReason) {
		closeOnce.Do(func() {
			g.reg.Unregister(client.Name, conn)
			conn.Close(reason)
			_ = ws.Close(code, string(conn.Reason()))
			cancel()

			g.metrics.connClosed()
			g.log.Info("ws.close", "name", client.Name, "conn_id", connID, "reason", conn.Reason())
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-conn.Done():
				// Supersession closes conn from the registry side; relay
				// the recorded reason onto the wire.
				if conn.Reason() == ReasonSuperseded {
					shutdown(websocket.StatusGoingAway, ReasonSuperseded)
				}
				return
			case msg := <-conn.Send:
				if err := writeMessage(ctx, ws, msg, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "conn_id", connID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, ReasonTransport)
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-conn.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := ws.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "conn_id", connID, "failures", failures, "err", err)
					if failures >= maxPingFailures {
						shutdown(websocket.StatusGoingAway, ReasonHeartbeat)
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	// The relay's wire contract is server-to-client only: inbound frames
	// are drained to keep control-frame handling alive and to notice the
	// peer closing, but their content is ignored.
	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

readLoop:
	for {
		_, _, err := ws.Read(ctx)
		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, ReasonPeerClosed)
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, ReasonShutdown)
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, ReasonTransport)
			default:
				g.log.Info("ws.read.fail", "conn_id", connID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, ReasonTransport)
			}
			break readLoop
		}

		if !rl.Allow(time.Now().UTC()) {
			shutdown(websocket.StatusPolicyViolation, ReasonTransport)
			break readLoop
		}
	}

	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(closeGrace):
	}
}

// ---- frame IO ----

func writeMessage(parent context.Context, ws *websocket.Conn, msg Message, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return errors.New("origin not allowed: " + origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host using
	// filepath.Match patterns. Keep this strict: only hosts extracted from
	// the allowlist are accepted, except for an explicit "*" entry.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		if strings.TrimSpace(a) == "*" {
			// An explicit wildcard must reach Accept too, otherwise the
			// upgrade is rejected after enforceOrigin already passed it.
			return []string{"*"}
		}
		h := originHostOnly(a)
		if h == "" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	// Stable in-file sort (avoid importing sort just for this).
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out
}
