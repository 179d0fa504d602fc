package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/wricardo/tiltlink/game/relay"
)

var (
	ErrClientNotFound = errors.New("client not found")
	ErrClientSlow     = errors.New("client send buffer full")
)

// EventHandler receives the events of one connection. Calls come from the
// connection's read goroutine only.
type EventHandler interface {
	HandleEvent(event string, data json.RawMessage)
	Disconnect()
}

// ConnectFunc returns the handler for a newly accepted connection
type ConnectFunc func(connID string) EventHandler

// Hub maintains the set of connected clients and delivers envelopes to them
type Hub struct {
	// Connected clients by connection id
	clients map[string]*Client
	mu      sync.RWMutex

	// Clients to drop, queued by Deliver when a send buffer is full
	unregister chan *Client

	upgrader   websocket.Upgrader
	origins    map[string]bool
	sendBuffer int
}

// HubOption configures a Hub
type HubOption func(*Hub)

// WithAllowedOrigins restricts browser origins allowed to connect.
// An empty list (or "*") allows every origin.
func WithAllowedOrigins(origins []string) HubOption {
	return func(h *Hub) {
		for _, origin := range origins {
			if origin == "*" {
				h.origins = make(map[string]bool)
				return
			}
			h.origins[origin] = true
		}
	}
}

// WithSendBuffer sets the per-client outbound queue length
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// NewHub creates a new WebSocket hub
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:    make(map[string]*Client),
		unregister: make(chan *Client, 256),
		origins:    make(map[string]bool),
		sendBuffer: 256,
	}
	for _, opt := range opts {
		opt(h)
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Run drops slow clients until ctx is cancelled, then closes every client
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// ServeWS upgrades the request and attaches the connection to a handler
// obtained from connect.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, connect ConnectFunc) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	id := uuid.NewString()
	client := &Client{
		id:      id,
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, h.sendBuffer),
		handler: connect(id),
	}

	// Registration is synchronous so replies to the very first event
	// find the client.
	h.registerClient(client)

	go client.writePump()
	go client.readPump()
}

// Deliver queues env for the client with connID without blocking
func (h *Hub) Deliver(connID string, env relay.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", env.Event, err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[connID]
	if !ok {
		return ErrClientNotFound
	}

	select {
	case client.send <- data:
		return nil
	default:
		select {
		case h.unregister <- client:
		default:
		}
		return ErrClientSlow
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// registerClient adds a client to the hub
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.id] = client
	total := len(h.clients)
	h.mu.Unlock()

	log.Debug().Str("conn", client.id).Int("clients", total).Msg("client registered")
}

// unregisterClient removes a client and closes its send queue. It is safe
// to call more than once.
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	current, ok := h.clients[client.id]
	if !ok || current != client {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.id)
	close(client.send)
	remaining := len(h.clients)
	h.mu.Unlock()

	log.Debug().Str("conn", client.id).Int("clients", remaining).Msg("client unregistered")
}

// closeAll unregisters every client; their write pumps send a close frame
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.send)
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return h.origins[origin]
}
