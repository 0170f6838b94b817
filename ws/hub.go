// Package ws fans newly sent messages out to connected clients. Delivery is
// filtered by receiver identity only: a sender never gets its own message back
// through the hub, its client relies on the optimistic local insert.
package ws

import (
	"encoding/json"
	"log"
	"sync"

	"studo/models"
)

// Envelope is the frame written to subscribers.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	FrameConnected = "connected"
	FrameMessage   = "message"
)

type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	publish    chan models.Message
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		publish:    make(chan models.Message),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("ws: client registered for %s, total %d", client.email, h.count())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("ws: client unregistered for %s, total %d", client.email, h.count())

		case message := <-h.publish:
			h.deliver(message)
		}
	}
}

// Publish hands a persisted message to the hub for fan-out. Called by the
// send pipeline after a successful insert.
func (h *Hub) Publish(message models.Message) {
	h.publish <- message
}

// Connected reports whether at least one client is subscribed for the given
// identity. The send pipeline uses this to decide on a web-push fallback.
func (h *Hub) Connected(email string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.email == email {
			return true
		}
	}
	return false
}

func (h *Hub) deliver(message models.Message) {
	payload, err := json.Marshal(message)
	if err != nil {
		log.Printf("ws: marshal message: %v", err)
		return
	}
	frame, err := json.Marshal(Envelope{Type: FrameMessage, Payload: payload})
	if err != nil {
		log.Printf("ws: marshal envelope: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if client.email != message.Receiver {
			continue
		}
		select {
		case client.send <- frame:
		default:
			// Slow consumer, drop the connection.
			close(client.send)
			delete(h.clients, client)
		}
	}
}

func (h *Hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
