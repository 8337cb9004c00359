package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exo273/backend-pos/internal/logger"
	"github.com/exo273/backend-pos/internal/models"
)

func startTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(logger.New("realtime-test"))
	stop := make(chan struct{})
	go hub.Run(stop)
	t.Cleanup(func() { close(stop) })
	return hub
}

func subscribe(hub *Hub, channel string) *Client {
	client := &Client{
		hub:     hub,
		channel: channel,
		send:    make(chan []byte, 8),
	}
	hub.register <- client
	return client
}

func receive(t *testing.T, client *Client) []byte {
	t.Helper()
	select {
	case payload := <-client.send:
		return payload
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
		return nil
	}
}

func TestBroadcast_ReachesChannelSubscribers(t *testing.T) {
	hub := startTestHub(t)
	kds := subscribe(hub, models.ChannelKDS)
	orders := subscribe(hub, models.ChannelOrders)

	hub.Broadcast(models.ChannelKDS, models.OrderUpdateMessage{
		Type:        "order_update",
		OrderID:     1,
		OrderNumber: "ORD-X",
		Status:      "pending",
	})

	var msg models.OrderUpdateMessage
	require.NoError(t, json.Unmarshal(receive(t, kds), &msg))
	assert.Equal(t, "order_update", msg.Type)
	assert.Equal(t, int64(1), msg.OrderID)

	// Other channels stay silent
	select {
	case payload := <-orders.send:
		t.Fatalf("orders channel received unexpected message: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcast_MultipleSubscribers(t *testing.T) {
	hub := startTestHub(t)
	first := subscribe(hub, models.ChannelTables)
	second := subscribe(hub, models.ChannelTables)

	hub.Broadcast(models.ChannelTables, models.TableStatusUpdateMessage{
		Type:        "table_status_update",
		TableNumber: "T7",
		Status:      "available",
	})

	for _, client := range []*Client{first, second} {
		var msg models.TableStatusUpdateMessage
		require.NoError(t, json.Unmarshal(receive(t, client), &msg))
		assert.Equal(t, "T7", msg.TableNumber)
	}
}

func TestBroadcast_DropsSlowClient(t *testing.T) {
	hub := startTestHub(t)

	slow := &Client{hub: hub, channel: models.ChannelKDS, send: make(chan []byte)}
	hub.register <- slow
	healthy := subscribe(hub, models.ChannelKDS)

	// The slow client's unbuffered queue is never drained; the hub must
	// disconnect it instead of stalling.
	hub.Broadcast(models.ChannelKDS, models.OrderUpdateMessage{Type: "order_update", OrderID: 1})
	hub.Broadcast(models.ChannelKDS, models.OrderUpdateMessage{Type: "order_update", OrderID: 2})

	receive(t, healthy)
	receive(t, healthy)

	select {
	case _, open := <-slow.send:
		assert.False(t, open, "slow client's send channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("slow client was not dropped")
	}
}

func TestBroadcast_UnmarshalableMessageIsDropped(t *testing.T) {
	hub := startTestHub(t)
	client := subscribe(hub, models.ChannelKDS)

	hub.Broadcast(models.ChannelKDS, func() {})

	select {
	case payload := <-client.send:
		t.Fatalf("received unexpected message: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnregister_ClosesSendChannel(t *testing.T) {
	hub := startTestHub(t)
	client := subscribe(hub, models.ChannelOrders)

	hub.unregister <- client

	select {
	case _, open := <-client.send:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("send channel was not closed on unregister")
	}
}
