package realtime

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/exo273/backend-pos/internal/logger"
	"github.com/exo273/backend-pos/internal/models"
)

// Snapshotter supplies the active-orders snapshot pushed to a kitchen
// display client right after it connects.
type Snapshotter interface {
	ActiveOrders(ctx context.Context) ([]models.OrderSnapshot, error)
}

// Handler upgrades HTTP requests to WebSocket subscriptions
type Handler struct {
	hub      *Hub
	snapshot Snapshotter
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a WebSocket handler over the hub
func NewHandler(hub *Hub, snapshot Snapshotter, log *logger.Logger) *Handler {
	return &Handler{
		hub:      hub,
		snapshot: snapshot,
		logger:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Display clients connect from separate origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetupRoutes registers the WebSocket endpoints on a mux
func (h *Handler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/kds", h.serveChannel(models.ChannelKDS))
	mux.HandleFunc("GET /ws/orders", h.serveChannel(models.ChannelOrders))
	mux.HandleFunc("GET /ws/tables", h.serveChannel(models.ChannelTables))
}

func (h *Handler) serveChannel(channel string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := logger.GenerateRequestID()

		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Error("ws_upgrade_failed", "Failed to upgrade connection", requestID, err,
				map[string]interface{}{"channel": channel})
			return
		}

		client := &Client{
			hub:     h.hub,
			channel: channel,
			conn:    conn,
			send:    make(chan []byte, 64),
		}
		h.hub.register <- client

		if channel == models.ChannelKDS {
			h.sendInitialOrders(r.Context(), client, requestID)
		}

		go client.writePump()
		go client.readPump()
	}
}

// sendInitialOrders queues the current active orders so a fresh KDS
// client renders the full board without waiting for the next mutation.
func (h *Handler) sendInitialOrders(ctx context.Context, client *Client, requestID string) {
	orders, err := h.snapshot.ActiveOrders(ctx)
	if err != nil {
		h.logger.Error("ws_snapshot_failed", "Failed to build initial orders snapshot", requestID, err, nil)
		return
	}

	payload, err := json.Marshal(models.InitialOrdersMessage{
		Type:   "initial_orders",
		Orders: orders,
	})
	if err != nil {
		h.logger.Error("ws_marshal_failed", "Failed to marshal initial orders", requestID, err, nil)
		return
	}

	select {
	case client.send <- payload:
	default:
	}
}
