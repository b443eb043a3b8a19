package relay

import "sync"

// CloseReason explains why a connection ended.
type CloseReason string

// Close reasons (stable for logs and close frames).
const (
	ReasonSuperseded CloseReason = "superseded"
	ReasonPeerClosed CloseReason = "peer_closed"
	ReasonTransport  CloseReason = "transport_error"
	ReasonHeartbeat  CloseReason = "heartbeat_failed"
	ReasonShutdown   CloseReason = "server_shutdown"
)

// Conn is the delivery channel for one live connection.
//
// Design notes:
// - Send is intentionally NOT closed by the server to avoid panics from
//   concurrent router pushes racing a teardown.
// - done is used to signal goroutines to stop.
// - Close is idempotent; the first reason wins.
type Conn struct {
	ID   string
	Name string
	Send chan Message

	done      chan struct{}
	closeOnce sync.Once
	reason    CloseReason
}

// NewConn constructs a Conn with a bounded send queue.
func NewConn(id, name string, sendQueueSize int) *Conn {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Conn{
		ID:   id,
		Name: name,
		Send: make(chan Message, sendQueueSize),
		done: make(chan struct{}),
	}
}

// Done returns a channel that is closed when the connection is shutting down.
func (c *Conn) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals teardown with the given reason (idempotent).
// It does NOT close Send; pushers must select on Done instead.
func (c *Conn) Close(reason CloseReason) {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		c.reason = reason
		close(c.done)
	})
}

// Reason reports why the connection closed.
// Only valid after Done() is observed closed.
func (c *Conn) Reason() CloseReason {
	select {
	case <-c.Done():
		return c.reason
	default:
		return ""
	}
}

// TryPush enqueues a message without blocking.
// It reports false when the connection is shutting down or its queue is full.
func (c *Conn) TryPush(m Message) bool {
	if c == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- m:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}
