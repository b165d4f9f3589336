// Package push tracks live websocket channels and delivers counter and
// per-user updates to them. Delivery is best-effort: a failed write removes
// the connection and is never retried.
package push

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ever_greater/internal/metrics"
)

// Conn is the write side of a push channel. *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// client is one live channel. userID is guarded by the registry mutex; the
// per-client mutex serializes writes, since gorilla/websocket permits only
// one concurrent writer per connection.
type client struct {
	conn   Conn
	userID uint // 0 while unbound
	mu     sync.Mutex
}

func (c *client) send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Registry is the lifecycle-scoped set of open push channels. Constructed at
// startup, torn down at shutdown, shared between request handlers and the
// aggregator, and safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*client
}

func NewRegistry() *Registry {
	return &Registry{clients: map[string]*client{}}
}

// Add registers an open, unbound channel and returns its handle.
func (r *Registry) Add(conn Conn) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.clients[id] = &client{conn: conn}
	r.mu.Unlock()
	metrics.OpenConnections.Inc()
	return id
}

// Bind associates the channel with a user. Rebinding overwrites the prior
// binding. Returns false if the channel is already gone.
func (r *Registry) Bind(id string, userID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return false
	}
	c.userID = userID
	return true
}

// Remove deregisters and closes the channel. Safe to call twice; a removed
// channel accepts no further operations.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	c, ok := r.clients[id]
	delete(r.clients, id)
	r.mu.Unlock()
	if ok {
		_ = c.conn.Close()
		metrics.OpenConnections.Dec()
	}
}

// Send writes one frame to a single channel, removing it on failure.
func (r *Registry) Send(id string, v interface{}) {
	r.mu.RLock()
	c, ok := r.clients[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	if err := c.send(v); err != nil {
		logrus.WithFields(logrus.Fields{"conn_id": id, "error": err.Error()}).Debug("push send failed, dropping connection")
		r.Remove(id)
	}
}

// BoundUserIDs returns the distinct user IDs currently bound to at least one
// open channel.
func (r *Registry) BoundUserIDs() []uint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[uint]bool{}
	var ids []uint
	for _, c := range r.clients {
		if c.userID != 0 && !seen[c.userID] {
			seen[c.userID] = true
			ids = append(ids, c.userID)
		}
	}
	return ids
}

// Len reports the number of open channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll tears down every channel. Called once during orderly shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = map[string]*client{}
	r.mu.Unlock()
	for range clients {
		metrics.OpenConnections.Dec()
	}
	for _, c := range clients {
		_ = c.conn.Close()
	}
}

// snapshot returns the channels to target for a broadcast or user delivery
// without holding the lock across writes.
func (r *Registry) snapshot(userID uint, all bool) map[string]*client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	targets := map[string]*client{}
	for id, c := range r.clients {
		if all || c.userID == userID {
			targets[id] = c
		}
	}
	return targets
}
