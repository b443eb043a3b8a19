package relay

import (
	"log/slog"
	"strings"
)

// Router accepts send requests and forwards them to the recipient's
// connection. There is no fan-out and no queueing beyond the recipient's
// bounded send channel: a send either lands on a live connection or fails.
type Router struct {
	log     *slog.Logger
	reg     *Registry
	metrics *Metrics
}

// NewRouter constructs a Router over the given registry.
func NewRouter(log *slog.Logger, reg *Registry, metrics *Metrics) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{log: log, reg: reg, metrics: metrics}
}

// Send validates and forwards one message.
//
// Validation order is part of the contract:
//  1. empty body is rejected before any registry access,
//  2. the sender token must resolve (ErrUnauthorized),
//  3. the recipient must have an active connection (ErrRecipientOffline).
//
// Exactly one push happens per successful send. A recipient whose queue is
// full or whose connection is mid-teardown is reported offline: at this
// boundary a stalled consumer is indistinguishable from a dead one.
func (rt *Router) Send(token, to, body string) error {
	if strings.TrimSpace(body) == "" {
		rt.metrics.sendRejected("empty_body")
		return ErrEmptyBody
	}

	sender, ok := rt.reg.ResolveToken(token)
	if !ok {
		rt.metrics.sendRejected("unauthorized")
		return ErrUnauthorized
	}

	conn := rt.reg.Lookup(to)
	if conn == nil {
		rt.metrics.sendRejected("recipient_offline")
		return ErrRecipientOffline
	}

	if !conn.TryPush(Message{From: sender.Name, Body: body}) {
		rt.metrics.sendRejected("recipient_offline")
		return ErrRecipientOffline
	}

	rt.metrics.messageRelayed()
	rt.log.Debug("router.send", "from", sender.Name, "to", conn.Name, "conn_id", conn.ID)
	return nil
}
