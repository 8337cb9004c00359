package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/exo273/backend-pos/internal/logger"
)

// broadcastEnvelope pairs a serialized message with its target channel
type broadcastEnvelope struct {
	channel string
	payload []byte
}

// Hub fans messages out to WebSocket clients grouped by logical
// channel. All client set mutations happen on the Run goroutine, so no
// locking is needed around the maps.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastEnvelope
	logger     *logger.Logger
}

// NewHub creates a broadcast hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastEnvelope, 256),
		logger:     log,
	}
}

// Run processes registration and broadcast events until stop is closed
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case client := <-h.register:
			if h.clients[client.channel] == nil {
				h.clients[client.channel] = make(map[*Client]struct{})
			}
			h.clients[client.channel][client] = struct{}{}
			h.logger.Debug("ws_client_connected",
				fmt.Sprintf("Client joined channel %s", client.channel),
				"", map[string]interface{}{
					"channel":     client.channel,
					"subscribers": len(h.clients[client.channel]),
				})

		case client := <-h.unregister:
			if subscribers, ok := h.clients[client.channel]; ok {
				if _, ok := subscribers[client]; ok {
					delete(subscribers, client)
					close(client.send)
				}
			}

		case envelope := <-h.broadcast:
			for client := range h.clients[envelope.channel] {
				select {
				case client.send <- envelope.payload:
				default:
					// Slow client, drop it rather than stall the hub
					delete(h.clients[envelope.channel], client)
					close(client.send)
				}
			}

		case <-stop:
			for _, subscribers := range h.clients {
				for client := range subscribers {
					close(client.send)
				}
			}
			return
		}
	}
}

// Broadcast sends a message to every subscriber of a channel. Delivery
// is best-effort: when the hub's queue is full the message is dropped
// and the caller never blocks.
func (h *Hub) Broadcast(channel string, message interface{}) {
	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("ws_marshal_failed", "Failed to marshal broadcast message", "", err,
			map[string]interface{}{"channel": channel})
		return
	}

	select {
	case h.broadcast <- broadcastEnvelope{channel: channel, payload: payload}:
	default:
		h.logger.Error("ws_broadcast_dropped", "Broadcast queue full, message dropped", "", nil,
			map[string]interface{}{"channel": channel})
	}
}
