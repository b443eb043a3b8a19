package relay

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultDisconnectGrace is how long a name survives after its connection
// drops before the reservation is released. Reconnecting within the window
// cancels the release.
const DefaultDisconnectGrace = 10 * time.Second

// Registry is the authoritative mapping from client name to active
// connection, plus the token directory that authenticates registrations.
//
// Concurrency: one mutex owns all maps. Every mutation (reserve, register,
// unregister, release) is atomic with respect to concurrent lookups, which
// preserves the single-active-connection invariant.
type Registry struct {
	log     *slog.Logger
	grace   time.Duration
	metrics *Metrics

	mu      sync.Mutex
	entries map[string]*entry // normalized name -> entry
	tokens  map[string]string // token -> normalized name
	order   []string          // normalized names in reservation order
}

type entry struct {
	client  Client
	conn    *Conn // nil while offline (inside the grace window)
	release *time.Timer
}

// NewRegistry constructs a Registry. A non-positive grace releases names
// immediately on unregister.
func NewRegistry(log *slog.Logger, grace time.Duration, metrics *Metrics) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:     log,
		grace:   grace,
		metrics: metrics,
		entries: make(map[string]*entry),
		tokens:  make(map[string]string),
	}
}

// NormalizeName performs case-insensitive canonicalization of a client name.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Reserve claims a name and mints its session token.
// The display name keeps the caller's casing; the key is normalized.
func (r *Registry) Reserve(name string) (Client, error) {
	display := strings.TrimSpace(name)
	norm := NormalizeName(name)
	if norm == "" {
		return Client{}, ErrNameInvalid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[norm]; ok {
		return Client{}, ErrNameTaken
	}

	c := Client{Name: display, Token: NewToken()}
	r.entries[norm] = &entry{client: c}
	r.tokens[c.Token] = norm
	r.order = append(r.order, norm)

	r.metrics.clientReserved()
	r.log.Info("registry.reserve", "name", display)
	return c, nil
}

// ResolveToken maps a session token back to its client identity.
func (r *Registry) ResolveToken(token string) (Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	norm, ok := r.tokens[token]
	if !ok {
		return Client{}, false
	}
	e := r.entries[norm]
	if e == nil {
		return Client{}, false
	}
	return e.client, true
}

// Register binds a live connection to the token's name, replacing any prior
// connection for that name (last-writer-wins). The superseded connection is
// closed with ReasonSuperseded. A pending grace release is cancelled.
func (r *Registry) Register(token string, conn *Conn) (Client, error) {
	r.mu.Lock()

	norm, ok := r.tokens[token]
	if !ok {
		r.mu.Unlock()
		return Client{}, ErrTokenInvalid
	}
	e := r.entries[norm]
	if e == nil {
		r.mu.Unlock()
		return Client{}, ErrTokenInvalid
	}

	if e.release != nil {
		e.release.Stop()
		e.release = nil
	}

	prev := e.conn
	e.conn = conn
	client := e.client
	r.mu.Unlock()

	// Close the superseded connection after releasing the lock: its gateway
	// teardown calls back into Unregister.
	if prev != nil {
		prev.Close(ReasonSuperseded)
		r.metrics.connSuperseded()
		r.log.Info("registry.supersede", "name", client.Name, "old_conn_id", prev.ID, "new_conn_id", conn.ID)
	}

	return client, nil
}

// Lookup returns the active connection for a name, or nil.
func (r *Registry) Lookup(name string) *Conn {
	norm := NormalizeName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entries[norm]
	if e == nil {
		return nil
	}
	return e.conn
}

// Unregister removes the binding only if conn is still the current one,
// then arms the grace timer that eventually releases the name. A superseded
// connection calling Unregister is a no-op.
func (r *Registry) Unregister(name string, conn *Conn) {
	norm := NormalizeName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entries[norm]
	if e == nil || e.conn != conn {
		return
	}
	e.conn = nil

	if r.grace <= 0 {
		r.releaseLocked(norm)
		return
	}

	if e.release != nil {
		e.release.Stop()
	}
	e.release = time.AfterFunc(r.grace, func() { r.releaseExpired(norm) })
}

// ListActive returns reserved clients in reservation order.
// A client inside its disconnect grace window is still listed.
func (r *Registry) ListActive() []Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Client, 0, len(r.order))
	for _, norm := range r.order {
		if e := r.entries[norm]; e != nil {
			out = append(out, e.client)
		}
	}
	return out
}

// releaseExpired runs from the grace timer. A reconnect that raced the
// timer wins: an entry with a live connection is left alone.
func (r *Registry) releaseExpired(norm string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entries[norm]
	if e == nil || e.conn != nil {
		return
	}
	r.releaseLocked(norm)
}

func (r *Registry) releaseLocked(norm string) {
	e := r.entries[norm]
	if e == nil {
		return
	}
	delete(r.entries, norm)
	delete(r.tokens, e.client.Token)
	for i, n := range r.order {
		if n == norm {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.metrics.clientReleased()
	r.log.Info("registry.release", "name", e.client.Name)
}
