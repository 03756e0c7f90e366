package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/xelth-com/dsrelay/internal/models"
)

// Event types pushed to clients
const (
	EventMessage = "message"
	EventJoined  = "joined"
)

var (
	ErrNoSocket   = errors.New("socket not connected")
	ErrBufferFull = errors.New("socket send buffer full")
)

// Event is the frame written to a push channel
type Event struct {
	Type     string                     `json:"type"`
	Envelope *models.EncryptionEnvelope `json:"envelope,omitempty"`
	Account  string                     `json:"account,omitempty"`
}

// Hub maintains the set of live push channels keyed by socket id
type Hub struct {
	// Registered clients map: SocketID -> Client
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// Guards clients and every write to or close of a client's send channel
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string]*Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.SocketID] = client
			h.mu.Unlock()
			log.Printf("🔌 Push channel open: %s (%s)", client.SocketID, client.Account)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.SocketID]; ok {
				delete(h.clients, client.SocketID)
				close(client.send)
				log.Printf("📴 Push channel closed: %s (%s)", client.SocketID, client.Account)
			}
			h.mu.Unlock()

		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Connected reports whether socketID has a live client
func (h *Hub) Connected(socketID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[socketID]
	return ok
}

// Send pushes an envelope. It never blocks on a slow client.
func (h *Hub) Send(socketID string, env models.EncryptionEnvelope) error {
	return h.Signal(socketID, Event{Type: EventMessage, Envelope: &env})
}

// Signal pushes an arbitrary event to a socket
func (h *Hub) Signal(socketID string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[socketID]
	if !ok {
		return ErrNoSocket
	}
	select {
	case client.send <- payload:
		return nil
	default:
		return ErrBufferFull
	}
}
