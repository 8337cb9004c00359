package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/exo273/backend-pos/internal/logger"
	"github.com/exo273/backend-pos/internal/models"
)

// NewItem is a validated request to add one line to an order
type NewItem struct {
	MenuItemID int64
	Quantity   int
	Notes      string
}

// NewPayment is a validated request to record one payment
type NewPayment struct {
	Method               models.PaymentMethod
	Amount               decimal.Decimal
	Status               models.PaymentStatus
	ConvenioCode         string
	ConvenioName         string
	TransactionReference string
	Notes                string
}

// UnpaidOrder is one row of the unpaid-orders report
type UnpaidOrder struct {
	OrderID     int64   `json:"order_id"`
	OrderNumber string  `json:"order_number"`
	Table       *string `json:"table"`
	Total       string  `json:"total"`
	Paid        string  `json:"paid"`
	Remaining   string  `json:"remaining"`
	Status      string  `json:"status"`
}

// Storage is the persistence contract the order service orchestrates.
// Implementations run each mutating method in its own transaction with
// the order row locked, so concurrent mutations of one order serialize.
type Storage interface {
	CreateOrder(ctx context.Context, order *models.Order, items []NewItem) (*models.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	DeleteOrder(ctx context.Context, orderID int64) error
	AddItem(ctx context.Context, orderID int64, item NewItem) (*models.Order, error)
	RemoveItem(ctx context.Context, orderID, itemID int64) (*models.Order, error)
	ChangeStatus(ctx context.Context, orderID int64, to models.OrderStatus) (*models.Order, models.OrderStatus, error)
	AddPayment(ctx context.Context, orderID int64, payment NewPayment) (*models.Order, *models.Payment, error)
	ClaimSettlement(ctx context.Context, orderID int64) (bool, error)
	ReleaseSettlement(ctx context.Context, orderID int64) error
	DeductionLines(ctx context.Context, orderID int64) ([]DeductionLine, error)
	UnpublishedSettlementOrders(ctx context.Context) ([]int64, error)
	ReleaseTableIfIdle(ctx context.Context, orderID, tableID int64) (*models.Table, bool, error)
	GetTable(ctx context.Context, tableID int64) (*models.Table, error)
	ActiveOrders(ctx context.Context) ([]models.OrderSnapshot, error)
	UnpaidOrders(ctx context.Context) ([]UnpaidOrder, error)
}

// EventPublisher publishes outbound domain events to the bus
type EventPublisher interface {
	PublishEvent(ctx context.Context, routingKey string, event interface{}) error
}

// Broadcaster fans a message out to the subscribers of one logical
// channel. Delivery is best-effort and must never block the caller.
type Broadcaster interface {
	Broadcast(channel string, message interface{})
}

// Service owns the order lifecycle: creation, item mutations, status
// transitions, payment accounting and settlement.
type Service struct {
	storage     Storage
	publisher   EventPublisher
	broadcaster Broadcaster
	logger      *logger.Logger
}

// NewService creates an order service
func NewService(storage Storage, publisher EventPublisher, broadcaster Broadcaster, log *logger.Logger) *Service {
	return &Service{
		storage:     storage,
		publisher:   publisher,
		broadcaster: broadcaster,
		logger:      log,
	}
}

// CanAddItems reports whether items may be added in the given status
func CanAddItems(status models.OrderStatus) bool {
	return status == models.StatusPending || status == models.StatusPreparing
}

// CanRemoveItems reports whether items may be removed in the given status
func CanRemoveItems(status models.OrderStatus) bool {
	return status == models.StatusPending
}

// GenerateOrderNumber builds a unique order number. The timestamp keeps
// numbers roughly sortable; the uuid fragment prevents collisions for
// orders created within the same second.
func GenerateOrderNumber() string {
	return fmt.Sprintf("ORD-%s-%s", time.Now().UTC().Format("20060102150405"), uuid.NewString()[:8])
}

// CreateOrderRequest carries the fields of a new order
type CreateOrderRequest struct {
	TableID       *int64           `json:"table_id"`
	CustomerName  string           `json:"customer_name"`
	CustomerPhone string           `json:"customer_phone"`
	Notes         string           `json:"notes"`
	Items         []NewItemRequest `json:"items"`
}

// NewItemRequest is the wire shape of one requested order line
type NewItemRequest struct {
	MenuItemID int64  `json:"menu_item_id"`
	Quantity   int    `json:"quantity"`
	Notes      string `json:"notes"`
}

// Validate checks the request at the boundary
func (r *CreateOrderRequest) Validate() error {
	if len(r.Items) == 0 {
		return models.ValidationError{Field: "items", Message: "at least one item is required"}
	}
	for i, item := range r.Items {
		if item.MenuItemID <= 0 {
			return models.ValidationError{Field: fmt.Sprintf("items[%d].menu_item_id", i), Message: "is required"}
		}
		if item.Quantity < 1 {
			return models.ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Message: "must be at least 1"}
		}
	}
	return nil
}

// CreateOrder creates a pending order with its initial items, occupies
// the table when one is given and notifies the displays.
func (s *Service) CreateOrder(ctx context.Context, req *CreateOrderRequest, requestID string) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	order := &models.Order{
		OrderNumber:   GenerateOrderNumber(),
		TableID:       req.TableID,
		Status:        models.StatusPending,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Notes:         req.Notes,
	}

	items := make([]NewItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, NewItem{MenuItemID: item.MenuItemID, Quantity: item.Quantity, Notes: item.Notes})
	}

	created, err := s.storage.CreateOrder(ctx, order, items)
	if err != nil {
		return nil, err
	}

	s.logger.Info("order_created",
		fmt.Sprintf("Created order %s", created.OrderNumber),
		requestID, map[string]interface{}{
			"order_id":     created.ID,
			"order_number": created.OrderNumber,
			"total":        created.Total.StringFixed(2),
		})

	tableNumber := s.tableNumber(ctx, created.TableID)
	s.broadcaster.Broadcast(models.ChannelOrders, models.OrderCreatedMessage{
		Type:        "order_created",
		OrderID:     created.ID,
		OrderNumber: created.OrderNumber,
		Table:       tableNumber,
		Total:       created.Total.StringFixed(2),
	})
	s.broadcastKDS(created, tableNumber)
	s.broadcastTable(ctx, created.TableID)

	return created, nil
}

// GetOrder fetches one order with its items and payments
func (s *Service) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	return s.storage.GetOrder(ctx, orderID)
}

// DeleteOrder removes an order, allowed only while it is still pending
func (s *Service) DeleteOrder(ctx context.Context, orderID int64, requestID string) error {
	order, err := s.storage.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.StatusPending {
		return models.ValidationError{Field: "status", Message: "only pending orders can be deleted"}
	}

	if err := s.storage.DeleteOrder(ctx, orderID); err != nil {
		return err
	}

	if order.TableID != nil {
		if table, released, err := s.storage.ReleaseTableIfIdle(ctx, orderID, *order.TableID); err == nil && released {
			s.broadcastTableStatus(table)
		}
	}

	s.logger.Info("order_deleted", fmt.Sprintf("Deleted order %s", order.OrderNumber), requestID, map[string]interface{}{
		"order_id": orderID,
	})
	return nil
}

// AddItem appends a line to an order and recomputes its totals.
// Allowed while the order is pending or preparing.
func (s *Service) AddItem(ctx context.Context, orderID int64, req *NewItemRequest, requestID string) (*models.Order, error) {
	if req.MenuItemID <= 0 {
		return nil, models.ValidationError{Field: "menu_item_id", Message: "is required"}
	}
	if req.Quantity < 1 {
		return nil, models.ValidationError{Field: "quantity", Message: "must be at least 1"}
	}

	order, err := s.storage.AddItem(ctx, orderID, NewItem{MenuItemID: req.MenuItemID, Quantity: req.Quantity, Notes: req.Notes})
	if err != nil {
		return nil, err
	}

	s.broadcastKDS(order, s.tableNumber(ctx, order.TableID))
	return order, nil
}

// RemoveItem deletes a line from an order and recomputes its totals.
// Allowed only while the order is pending.
func (s *Service) RemoveItem(ctx context.Context, orderID, itemID int64, requestID string) (*models.Order, error) {
	order, err := s.storage.RemoveItem(ctx, orderID, itemID)
	if err != nil {
		return nil, err
	}

	s.broadcastKDS(order, s.tableNumber(ctx, order.TableID))
	return order, nil
}

// ChangeStatus moves an order through its state machine, stamping
// timestamps on first entry and notifying the displays.
func (s *Service) ChangeStatus(ctx context.Context, orderID int64, to models.OrderStatus, requestID string) (*models.Order, error) {
	if !models.ValidStatus(to) {
		return nil, models.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", to)}
	}

	order, oldStatus, err := s.storage.ChangeStatus(ctx, orderID, to)
	if err != nil {
		return nil, err
	}

	s.logger.Info("order_status_changed",
		fmt.Sprintf("Order %s moved from %s to %s", order.OrderNumber, oldStatus, to),
		requestID, map[string]interface{}{
			"order_id":   order.ID,
			"old_status": string(oldStatus),
			"new_status": string(to),
		})

	s.broadcaster.Broadcast(models.ChannelOrders, models.OrderStatusChangedMessage{
		Type:        "order_status_changed",
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		OldStatus:   string(oldStatus),
		NewStatus:   string(to),
	})

	switch {
	case models.IsActiveStatus(to):
		s.broadcastKDS(order, s.tableNumber(ctx, order.TableID))
	case to == models.StatusDelivered:
		if order.TableID != nil {
			if table, released, err := s.storage.ReleaseTableIfIdle(ctx, orderID, *order.TableID); err == nil && released {
				s.broadcastTableStatus(table)
			}
		}
	}

	return order, nil
}

// PaymentRequest is the wire shape of a new payment
type PaymentRequest struct {
	Method               string `json:"payment_method"`
	Amount               string `json:"amount"`
	Status               string `json:"status"`
	ConvenioCode         string `json:"convenio_code"`
	ConvenioName         string `json:"convenio_name"`
	TransactionReference string `json:"transaction_reference"`
	Notes                string `json:"notes"`
}

// AddPayment records a payment against an order. A completed payment
// that settles the order triggers exactly one ORDEN_PAGADA event.
func (s *Service) AddPayment(ctx context.Context, orderID int64, req *PaymentRequest, requestID string) (*models.Payment, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, models.ValidationError{Field: "amount", Message: "must be a decimal number"}
	}

	status := models.PaymentStatus(req.Status)
	if req.Status == "" {
		status = models.PaymentCompleted
	}
	switch status {
	case models.PaymentPending, models.PaymentCompleted, models.PaymentFailed:
	default:
		return nil, models.ValidationError{Field: "status", Message: fmt.Sprintf("unknown payment status %q", req.Status)}
	}

	payment := NewPayment{
		Method:               models.PaymentMethod(req.Method),
		Amount:               amount.Round(2),
		Status:               status,
		ConvenioCode:         req.ConvenioCode,
		ConvenioName:         req.ConvenioName,
		TransactionReference: req.TransactionReference,
		Notes:                req.Notes,
	}

	order, stored, err := s.storage.AddPayment(ctx, orderID, payment)
	if err != nil {
		return nil, err
	}

	s.broadcaster.Broadcast(models.ChannelOrders, models.PaymentReceivedMessage{
		Type:          "payment_received",
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		PaymentID:     stored.ID,
		Amount:        stored.Amount.StringFixed(2),
		PaymentMethod: string(stored.Method),
	})

	if stored.Status == models.PaymentCompleted && order.IsFullyPaid() {
		if err := s.emitSettlement(ctx, order, requestID); err != nil {
			return nil, err
		}
	}

	return stored, nil
}

// emitSettlement publishes the ORDEN_PAGADA event once per order. The
// settlement flag is claimed atomically before publishing and released
// again on failure, so the caller's retry can redeliver without ever
// emitting twice for the same order.
func (s *Service) emitSettlement(ctx context.Context, order *models.Order, requestID string) error {
	claimed, err := s.storage.ClaimSettlement(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to claim settlement for order %d: %w", order.ID, err)
	}
	if !claimed {
		s.logger.Debug("settlement_already_published",
			fmt.Sprintf("Order %s settlement already published", order.OrderNumber),
			requestID, map[string]interface{}{"order_id": order.ID})
		return nil
	}

	lines, err := s.storage.DeductionLines(ctx, order.ID)
	if err != nil {
		s.releaseSettlement(ctx, order.ID, requestID)
		return fmt.Errorf("failed to collect stock deductions for order %d: %w", order.ID, err)
	}

	event := BuildOrderPaidEvent(order, lines)
	if err := s.publisher.PublishEvent(ctx, models.RoutingKeyOrderPaid, event); err != nil {
		s.releaseSettlement(ctx, order.ID, requestID)
		return fmt.Errorf("failed to publish settlement event for order %d: %w", order.ID, err)
	}

	s.logger.Info("settlement_published",
		fmt.Sprintf("Published ORDEN_PAGADA for order %s", order.OrderNumber),
		requestID, map[string]interface{}{
			"order_id":     order.ID,
			"order_number": order.OrderNumber,
			"products":     len(event.StockDeductions.Products),
			"recipes":      len(event.StockDeductions.Recipes),
		})
	return nil
}

func (s *Service) releaseSettlement(ctx context.Context, orderID int64, requestID string) {
	if err := s.storage.ReleaseSettlement(ctx, orderID); err != nil {
		s.logger.Error("settlement_release_failed",
			"Failed to release settlement claim, order may require manual republish",
			requestID, err, map[string]interface{}{"order_id": orderID})
	}
}

// RepublishSettlements emits the settlement event for every fully paid
// order that still has no published settlement. A publish failure
// releases the claim, so the next sweep picks the order up again; this
// is the retry path for settlements whose first publish failed.
func (s *Service) RepublishSettlements(ctx context.Context, requestID string) (int, error) {
	ids, err := s.storage.UnpublishedSettlementOrders(ctx)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, id := range ids {
		order, err := s.storage.GetOrder(ctx, id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			return published, err
		}
		if order.SettlementPublished || !order.IsFullyPaid() {
			continue
		}
		if err := s.emitSettlement(ctx, order, requestID); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}

// ActiveOrders returns the KDS view of all pending/preparing orders.
// Also used as the initial snapshot for newly connected KDS clients.
func (s *Service) ActiveOrders(ctx context.Context) ([]models.OrderSnapshot, error) {
	return s.storage.ActiveOrders(ctx)
}

// UnpaidOrders returns orders whose completed payments do not cover the total
func (s *Service) UnpaidOrders(ctx context.Context) ([]UnpaidOrder, error) {
	return s.storage.UnpaidOrders(ctx)
}

func (s *Service) tableNumber(ctx context.Context, tableID *int64) *string {
	if tableID == nil {
		return nil
	}
	table, err := s.storage.GetTable(ctx, *tableID)
	if err != nil {
		return nil
	}
	return &table.Number
}

func (s *Service) broadcastKDS(order *models.Order, tableNumber *string) {
	items := make([]models.KDSItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, models.KDSItem{
			ID:           item.ID,
			MenuItemName: item.MenuItemName,
			Quantity:     item.Quantity,
			Notes:        item.Notes,
		})
	}

	s.broadcaster.Broadcast(models.ChannelKDS, models.OrderUpdateMessage{
		Type:        "order_update",
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		Items:       items,
		Table:       tableNumber,
		CreatedAt:   order.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Service) broadcastTable(ctx context.Context, tableID *int64) {
	if tableID == nil {
		return
	}
	table, err := s.storage.GetTable(ctx, *tableID)
	if err != nil {
		return
	}
	s.broadcastTableStatus(table)
}

func (s *Service) broadcastTableStatus(table *models.Table) {
	if table == nil {
		return
	}
	s.broadcaster.Broadcast(models.ChannelTables, models.TableStatusUpdateMessage{
		Type:        "table_status_update",
		TableID:     table.ID,
		TableNumber: table.Number,
		Zone:        table.Zone,
		Status:      string(table.Status),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}
