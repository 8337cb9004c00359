package models

// Event types exchanged with the operations service over RabbitMQ
const (
	EventProductStockUpdated = "PRODUCT_STOCK_UPDATED"
	EventRecipeUpdated       = "RECIPE_UPDATED"
	EventOrderPaid           = "ORDEN_PAGADA"
)

// Routing keys on the restaurant_events topic exchange
const (
	RoutingKeyOrderPaid    = "pos.order.paid"
	RoutingPatternProducts = "operations.product.*"
	RoutingPatternRecipes  = "operations.recipe.*"
)

// InboundEvent is the envelope of messages consumed from the
// operations service; only event_type is read before dispatch.
type InboundEvent struct {
	EventType string `json:"event_type"`
}

// ProductData carries the authoritative product fields from operations
type ProductData struct {
	Name          string  `json:"name"`
	SKU           string  `json:"sku"`
	UnitCost      float64 `json:"unit_cost"`
	CurrentStock  float64 `json:"current_stock"`
	UnitOfMeasure string  `json:"unit_of_measure"`
	IsActive      bool    `json:"is_active"`
}

// ProductStockUpdatedEvent mirrors a product change in operations
type ProductStockUpdatedEvent struct {
	EventType   string      `json:"event_type"`
	ProductID   int64       `json:"product_id"`
	ProductData ProductData `json:"product_data"`
}

// RecipeData carries the authoritative recipe fields from operations
type RecipeData struct {
	Name           string  `json:"name"`
	ProductionCost float64 `json:"production_cost"`
	YieldQuantity  float64 `json:"yield_quantity"`
	YieldUnit      string  `json:"yield_unit"`
	IsActive       bool    `json:"is_active"`
}

// RecipeUpdatedEvent mirrors a recipe change in operations
type RecipeUpdatedEvent struct {
	EventType  string     `json:"event_type"`
	RecipeID   int64      `json:"recipe_id"`
	RecipeData RecipeData `json:"recipe_data"`
}

// ProductDeduction is one product stock deduction in a settlement event
type ProductDeduction struct {
	ProductID int64   `json:"product_id"`
	Quantity  float64 `json:"quantity"`
}

// RecipeDeduction is one recipe stock deduction in a settlement event
type RecipeDeduction struct {
	RecipeID int64   `json:"recipe_id"`
	Quantity float64 `json:"quantity"`
}

// StockDeductions groups the deductions of a paid order by leaf kind
type StockDeductions struct {
	Products []ProductDeduction `json:"products"`
	Recipes  []RecipeDeduction  `json:"recipes"`
}

// OrderPaidEvent is published to operations when an order settles, so
// it can deduct stock for everything the order consumed.
type OrderPaidEvent struct {
	EventType       string          `json:"event_type"`
	OrderID         int64           `json:"order_id"`
	OrderNumber     string          `json:"order_number"`
	Timestamp       *string         `json:"timestamp"`
	StockDeductions StockDeductions `json:"stock_deductions"`
}
