// Package ws streams notification jobs to WebSocket clients. Each client
// watches one subscriber's deliveries, or the firehose when no subscriber
// is named.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/figwatch/figwatch/internal/notify"
)

// BroadcastMessage packages a payload for a subscriber-scoped broadcast.
type BroadcastMessage struct {
	SubscriberID string
	Payload      []byte
}

// Hub manages active clients and subscriber-scoped broadcasts.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan BroadcastMessage
}

// NewHub builds a new Hub. Run must be started before Deliver is used.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan BroadcastMessage),
	}
}

// Run starts the hub loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				if !client.wants(message.SubscriberID) {
					continue
				}
				select {
				case client.Send <- message.Payload:
				default:
					// Slow client. Drop it rather than stall the loop.
					delete(h.clients, client)
					close(client.Send)
				}
			}
		}
	}
}

// Deliver implements notify.Notifier: the job is pushed, JSON-encoded, to
// every client watching its subscriber and to every firehose client.
// Dropped slow clients are not delivery failures.
func (h *Hub) Deliver(ctx context.Context, job notify.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	select {
	case h.broadcast <- BroadcastMessage{SubscriberID: job.SubscriberID, Payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Broadcast sends a payload to the subscriber's clients and the firehose.
func (h *Hub) Broadcast(subscriberID string, payload []byte) {
	h.broadcast <- BroadcastMessage{SubscriberID: subscriberID, Payload: payload}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

// Client represents a websocket connection.
type Client struct {
	Conn *websocket.Conn
	Hub  *Hub
	Send chan []byte

	mu         sync.RWMutex
	subscriber string
}

// NewClient returns a client ready for registration. An empty subscriber
// means the firehose: the client sees every delivery.
func NewClient(hub *Hub, conn *websocket.Conn, subscriber string) *Client {
	return &Client{
		Conn:       conn,
		Hub:        hub,
		Send:       make(chan []byte, 256),
		subscriber: subscriber,
	}
}

// Subscriber returns the subscriber the client is watching.
func (c *Client) Subscriber() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscriber
}

// SetSubscriber re-scopes the client.
func (c *Client) SetSubscriber(subscriber string) {
	c.mu.Lock()
	c.subscriber = subscriber
	c.mu.Unlock()
}

func (c *Client) wants(subscriberID string) bool {
	watching := c.Subscriber()
	return watching == "" || watching == subscriberID
}
