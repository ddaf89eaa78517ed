// Package hub fans dashboard state out to websocket clients.
//
// One goroutine (Run) owns the client set; clients register, unregister and
// receive broadcasts through channels. Slow clients whose send buffer fills
// up are dropped rather than stalling everyone else.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-coach/pkg/protocol"
	"github.com/teslashibe/go-coach/pkg/state"
)

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	name   string
	logger *slog.Logger

	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	// latest is replayed to clients when they connect.
	latestMu sync.RWMutex
	latest   []byte

	mu      sync.RWMutex
	running bool

	// quit is closed when Run returns.
	quit     chan struct{}
	quitOnce sync.Once
}

// New creates a Hub. A nil logger uses slog.Default().
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("hub", name),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It returns when ctx is done, closing every
// client's send channel.
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.running = false
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.mu.Unlock()
		h.quitOnce.Do(func() { close(h.quit) })
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()

			if msg := h.Latest(); msg != nil {
				client.send <- msg
			}
			h.logger.Debug("client connected", "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client disconnected", "clients", count)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("dropped slow client")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues msg for every client. The message is also remembered
// for clients that connect later.
func (h *Hub) Broadcast(msg []byte) {
	h.latestMu.Lock()
	h.latest = msg
	h.latestMu.Unlock()

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastJSON encodes v and broadcasts it.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// Latest returns the most recently broadcast message.
func (h *Hub) Latest() []byte {
	h.latestMu.RLock()
	defer h.latestMu.RUnlock()
	return h.latest
}

// Follow broadcasts every snapshot published by store, wrapped in a state
// message, until ctx is done.
func (h *Hub) Follow(ctx context.Context, store *state.Store) {
	snaps, cancel := store.Subscribe(state.DefaultSubscriberBuffer)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			msg, err := protocol.NewStateMessage(snap)
			if err != nil {
				h.logger.Warn("encode snapshot", "error", err)
				continue
			}
			if err := h.BroadcastJSON(msg); err != nil {
				h.logger.Warn("encode snapshot", "error", err)
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}
