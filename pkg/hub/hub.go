package hub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-parallax/internal/log"
	"github.com/teslashibe/go-parallax/pkg/tracking"
)

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Name for logging
	name   string
	logger *slog.Logger

	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns so late clients do not block
	done chan struct{}

	// Guards clients and running for readers outside Run
	mu      sync.RWMutex
	running bool

	dropped uint64
}

// New creates a new Hub
func New(name string) *Hub {
	return &Hub{
		name:       name,
		logger:     log.Component(nil, "hub").With("hub", name),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop until ctx is done. A hub runs once.
// This should be called in a goroutine
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()

	defer func() {
		close(h.done)
		h.mu.Lock()
		h.running = false
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.mu.Unlock()
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
			h.logger.Info("client connected", "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", "clients", count)

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// deliver hands msg to every subscribed client. A client whose buffer is
// full skips droppable messages and is disconnected for anything else.
func (h *Hub) deliver(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.accepts(msg) {
			continue
		}
		select {
		case client.send <- msg:
		default:
			if msg.Droppable {
				client.skipped++
				continue
			}
			close(client.send)
			delete(h.clients, client)
			h.logger.Warn("dropped slow client", "kind", msg.Kind)
		}
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.mu.Lock()
		h.dropped++
		dropped := h.dropped
		h.mu.Unlock()
		// One line per hundred drops is enough at 30 FPS
		if dropped%100 == 1 {
			h.logger.Warn("broadcast channel full, dropping messages", "dropped", dropped)
		}
	}
}

// BroadcastJSON encodes v in an Envelope and broadcasts it
func (h *Hub) BroadcastJSON(kind string, v any) error {
	msg, err := NewEnvelope(kind, v)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// BroadcastBinary broadcasts binary data (camera preview frames)
func (h *Hub) BroadcastBinary(data []byte) {
	if h.ClientCount() == 0 {
		return
	}
	h.Broadcast(NewBinaryMessage(data))
}

// Publish implements tracking.Publisher. Frames are not encoded when
// nobody is listening.
func (h *Hub) Publish(out tracking.Output) {
	if h.ClientCount() == 0 {
		return
	}
	if err := h.BroadcastJSON(KindPose, out); err != nil {
		h.logger.Error("encode pose", "error", err, "frame", out.Frame)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}
