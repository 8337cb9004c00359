package models

// Logical broadcast channels for connected display clients
const (
	ChannelKDS    = "kds"
	ChannelOrders = "orders"
	ChannelTables = "tables"
)

// KDSItem is one order line as shown on the kitchen display
type KDSItem struct {
	ID           int64  `json:"id"`
	MenuItemName string `json:"menu_item_name"`
	Quantity     int    `json:"quantity"`
	Notes        string `json:"notes"`
}

// OrderSnapshot is the full order view sent to the kitchen display
type OrderSnapshot struct {
	OrderID     int64     `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Status      string    `json:"status"`
	Items       []KDSItem `json:"items"`
	Table       *string   `json:"table"`
	CreatedAt   string    `json:"created_at"`
}

// InitialOrdersMessage is sent to a KDS client right after it connects
type InitialOrdersMessage struct {
	Type   string          `json:"type"`
	Orders []OrderSnapshot `json:"orders"`
}

// OrderUpdateMessage is broadcast to the KDS on every relevant mutation
type OrderUpdateMessage struct {
	Type        string    `json:"type"`
	OrderID     int64     `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Status      string    `json:"status"`
	Items       []KDSItem `json:"items"`
	Table       *string   `json:"table"`
	CreatedAt   string    `json:"created_at"`
}

// OrderCreatedMessage notifies POS frontends of a new order
type OrderCreatedMessage struct {
	Type        string  `json:"type"`
	OrderID     int64   `json:"order_id"`
	OrderNumber string  `json:"order_number"`
	Table       *string `json:"table"`
	Total       string  `json:"total"`
}

// OrderStatusChangedMessage notifies POS frontends of a transition
type OrderStatusChangedMessage struct {
	Type        string `json:"type"`
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	OldStatus   string `json:"old_status"`
	NewStatus   string `json:"new_status"`
}

// PaymentReceivedMessage notifies POS frontends of a payment
type PaymentReceivedMessage struct {
	Type          string `json:"type"`
	OrderID       int64  `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	PaymentID     int64  `json:"payment_id"`
	Amount        string `json:"amount"`
	PaymentMethod string `json:"payment_method"`
}

// TableStatusUpdateMessage notifies the floor board of a table change
type TableStatusUpdateMessage struct {
	Type        string `json:"type"`
	TableID     int64  `json:"table_id"`
	TableNumber string `json:"table_number"`
	Zone        string `json:"zone"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
}
