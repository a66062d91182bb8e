package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/avdeenkov/roomcast/internal/chat"
)

// Hub owns the table of live WebSocket connections keyed by connection id
// and implements chat.Sender on top of it. Delivery is a non-blocking
// enqueue onto the client's buffered send channel; a client whose buffer is
// full is evicted so one stalled reader cannot wedge a fan-out.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	router  *chat.Router
	wg      sync.WaitGroup
	log     zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// AttachRouter binds the routing core the hub dispatches inbound events to.
// Must be called before the first Register.
func (h *Hub) AttachRouter(r *chat.Router) {
	h.router = r
}

// Register adds a client to the table, starts its pumps, and announces the
// new connection to the routing core.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Debug().Str("conn_id", c.id).Str("addr", c.addr).Int("total", count).Msg("client registered")

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()

	h.router.HandleConnect(c.id)
}

// Unregister removes a client and tells the routing core the connection is
// gone. Safe to call more than once for the same client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, present := h.clients[c.id]
	delete(h.clients, c.id)
	count := len(h.clients)
	h.mu.Unlock()

	c.closeSend()

	if present {
		h.log.Debug().Str("conn_id", c.id).Int("total", count).Msg("client unregistered")
	}

	c.notifyOnce.Do(func() {
		h.router.HandleDisconnect(c.id)
	})
}

// Send delivers one event to one connection. Unknown connections are
// ignored; a connection with a full buffer is evicted.
func (h *Hub) Send(connID string, ev chat.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("type", ev.Type).Msg("failed to marshal event")
		return
	}

	h.mu.RLock()
	c := h.clients[connID]
	h.mu.RUnlock()
	if c == nil {
		return
	}

	if !enqueue(c, payload) {
		h.evict(c)
	}
}

// SendAll delivers one event to every live connection.
func (h *Hub) SendAll(ev chat.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("type", ev.Type).Msg("failed to marshal event")
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	var stalled []*Client
	for _, c := range clients {
		if !enqueue(c, payload) {
			stalled = append(stalled, c)
		}
	}
	for _, c := range stalled {
		h.evict(c)
	}
}

// enqueue attempts a non-blocking send to the client's channel. The channel
// may already be closed, hence the recover.
func enqueue(c *Client, payload []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// evict drops a client whose send buffer filled up. Closing the channel
// stops the write pump, which closes the connection; the read pump then
// fails and runs the normal Unregister path. The routing core is not
// notified here because evictions can happen mid-dispatch while it holds
// its lock.
func (h *Hub) evict(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()

	c.closeSend()
	h.log.Warn().Str("conn_id", c.id).Str("addr", c.addr).Msg("client evicted: send buffer full")
}

// Shutdown closes every client connection and waits for the pump goroutines
// to finish, or gives up after timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn().Err(err).Str("conn_id", c.id).Msg("error closing client connection")
		}
	}
	h.log.Info().Int("clients", len(clients)).Msg("closed client connections")

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown complete")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timeout; some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
