package order

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exo273/backend-pos/internal/logger"
	"github.com/exo273/backend-pos/internal/models"
)

type fakeStorage struct {
	order         *models.Order
	orderItems    []models.OrderItem
	table         *models.Table
	lines         []DeductionLine
	claimResult   bool
	claimErr      error
	claimCalls    int
	releaseCalls  int
	releasedTable bool
	beforeDelete  func()
}

func (f *fakeStorage) CreateOrder(ctx context.Context, order *models.Order, items []NewItem) (*models.Order, error) {
	f.order = order
	order.ID = 1
	return order, nil
}

func (f *fakeStorage) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	if f.order == nil {
		return nil, models.ErrNotFound
	}
	return f.order, nil
}

// DeleteOrder re-checks the status under the lock like the repository
// does, so a transition racing the caller's read is caught here.
func (f *fakeStorage) DeleteOrder(ctx context.Context, orderID int64) error {
	if f.beforeDelete != nil {
		f.beforeDelete()
	}
	if f.order.Status != models.StatusPending {
		return models.ValidationError{Field: "status", Message: "only pending orders can be deleted"}
	}
	return nil
}

func (f *fakeStorage) AddItem(ctx context.Context, orderID int64, item NewItem) (*models.Order, error) {
	return f.order, nil
}

func (f *fakeStorage) RemoveItem(ctx context.Context, orderID, itemID int64) (*models.Order, error) {
	return f.order, nil
}

func (f *fakeStorage) ChangeStatus(ctx context.Context, orderID int64, to models.OrderStatus) (*models.Order, models.OrderStatus, error) {
	old := f.order.Status
	if !models.CanTransition(old, to) {
		return nil, "", models.ValidationError{Field: "status", Message: "invalid transition"}
	}
	f.order.Status = to
	// The repository reloads the item set inside the transaction
	f.order.Items = f.orderItems
	return f.order, old, nil
}

func (f *fakeStorage) AddPayment(ctx context.Context, orderID int64, payment NewPayment) (*models.Order, *models.Payment, error) {
	if err := models.ValidatePayment(payment.Method, payment.Amount, payment.ConvenioCode, f.order.RemainingAmount()); err != nil {
		return nil, nil, err
	}
	stored := &models.Payment{
		ID:      int64(len(f.order.Payments) + 1),
		OrderID: orderID,
		Method:  payment.Method,
		Amount:  payment.Amount,
		Status:  payment.Status,
	}
	f.order.Payments = append(f.order.Payments, *stored)
	return f.order, stored, nil
}

// ClaimSettlement models the conditional flag flip: claimable exactly
// once until released.
func (f *fakeStorage) ClaimSettlement(ctx context.Context, orderID int64) (bool, error) {
	f.claimCalls++
	if f.claimErr != nil {
		return false, f.claimErr
	}
	if !f.claimResult {
		return false, nil
	}
	f.claimResult = false
	return true, nil
}

func (f *fakeStorage) ReleaseSettlement(ctx context.Context, orderID int64) error {
	f.releaseCalls++
	f.claimResult = true
	return nil
}

func (f *fakeStorage) UnpublishedSettlementOrders(ctx context.Context) ([]int64, error) {
	if f.order != nil && f.claimResult && f.order.IsFullyPaid() {
		return []int64{f.order.ID}, nil
	}
	return nil, nil
}

func (f *fakeStorage) DeductionLines(ctx context.Context, orderID int64) ([]DeductionLine, error) {
	return f.lines, nil
}

func (f *fakeStorage) ReleaseTableIfIdle(ctx context.Context, orderID, tableID int64) (*models.Table, bool, error) {
	f.releasedTable = true
	return f.table, f.table != nil, nil
}

func (f *fakeStorage) GetTable(ctx context.Context, tableID int64) (*models.Table, error) {
	if f.table == nil {
		return nil, models.ErrNotFound
	}
	return f.table, nil
}

func (f *fakeStorage) ActiveOrders(ctx context.Context) ([]models.OrderSnapshot, error) {
	return nil, nil
}

func (f *fakeStorage) UnpaidOrders(ctx context.Context) ([]UnpaidOrder, error) {
	return nil, nil
}

type fakePublisher struct {
	publishErr error
	routingKey string
	events     []interface{}
}

func (f *fakePublisher) PublishEvent(ctx context.Context, routingKey string, event interface{}) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.routingKey = routingKey
	f.events = append(f.events, event)
	return nil
}

type fakeBroadcaster struct {
	messages map[string][]interface{}
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{messages: make(map[string][]interface{})}
}

func (f *fakeBroadcaster) Broadcast(channel string, message interface{}) {
	f.messages[channel] = append(f.messages[channel], message)
}

func newTestService(storage *fakeStorage, publisher *fakePublisher, broadcaster *fakeBroadcaster) *Service {
	return NewService(storage, publisher, broadcaster, logger.New("order-test"))
}

func pendingOrder(total string) *models.Order {
	return &models.Order{
		ID:          1,
		OrderNumber: "ORD-20250314120000-abcd1234",
		Status:      models.StatusPending,
		Total:       decimal.RequireFromString(total),
	}
}

func TestCreateOrder_RequiresItems(t *testing.T) {
	svc := newTestService(&fakeStorage{}, &fakePublisher{}, newFakeBroadcaster())

	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{}, "req-1")

	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestCreateOrder_RejectsZeroQuantity(t *testing.T) {
	svc := newTestService(&fakeStorage{}, &fakePublisher{}, newFakeBroadcaster())

	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		Items: []NewItemRequest{{MenuItemID: 1, Quantity: 0}},
	}, "req-1")

	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestCreateOrder_BroadcastsToOrdersAndKDS(t *testing.T) {
	broadcaster := newFakeBroadcaster()
	svc := newTestService(&fakeStorage{}, &fakePublisher{}, broadcaster)

	order, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		Items: []NewItemRequest{{MenuItemID: 1, Quantity: 2}},
	}, "req-1")

	require.NoError(t, err)
	assert.NotEmpty(t, order.OrderNumber)
	require.Len(t, broadcaster.messages[models.ChannelOrders], 1)
	require.Len(t, broadcaster.messages[models.ChannelKDS], 1)

	created := broadcaster.messages[models.ChannelOrders][0].(models.OrderCreatedMessage)
	assert.Equal(t, "order_created", created.Type)
	assert.Equal(t, order.OrderNumber, created.OrderNumber)
}

func TestChangeStatus_RejectsUnknownStatus(t *testing.T) {
	storage := &fakeStorage{order: pendingOrder("100.00")}
	svc := newTestService(storage, &fakePublisher{}, newFakeBroadcaster())

	_, err := svc.ChangeStatus(context.Background(), 1, "shipped", "req-1")

	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestChangeStatus_RejectsInvalidTransition(t *testing.T) {
	order := pendingOrder("100.00")
	order.Status = models.StatusDelivered
	svc := newTestService(&fakeStorage{order: order}, &fakePublisher{}, newFakeBroadcaster())

	_, err := svc.ChangeStatus(context.Background(), 1, models.StatusPreparing, "req-1")

	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestChangeStatus_BroadcastsTransition(t *testing.T) {
	broadcaster := newFakeBroadcaster()
	svc := newTestService(&fakeStorage{order: pendingOrder("100.00")}, &fakePublisher{}, broadcaster)

	order, err := svc.ChangeStatus(context.Background(), 1, models.StatusPreparing, "req-1")

	require.NoError(t, err)
	assert.Equal(t, models.StatusPreparing, order.Status)

	require.Len(t, broadcaster.messages[models.ChannelOrders], 1)
	msg := broadcaster.messages[models.ChannelOrders][0].(models.OrderStatusChangedMessage)
	assert.Equal(t, "pending", msg.OldStatus)
	assert.Equal(t, "preparing", msg.NewStatus)

	// Preparing orders stay on the kitchen display
	assert.Len(t, broadcaster.messages[models.ChannelKDS], 1)
}

func TestChangeStatus_DeliveredReleasesTable(t *testing.T) {
	tableID := int64(7)
	order := pendingOrder("100.00")
	order.Status = models.StatusReady
	order.TableID = &tableID

	storage := &fakeStorage{
		order: order,
		table: &models.Table{ID: tableID, Number: "T7", Zone: "terrace", Status: models.TableAvailable},
	}
	broadcaster := newFakeBroadcaster()
	svc := newTestService(storage, &fakePublisher{}, broadcaster)

	_, err := svc.ChangeStatus(context.Background(), 1, models.StatusDelivered, "req-1")

	require.NoError(t, err)
	assert.True(t, storage.releasedTable)
	require.Len(t, broadcaster.messages[models.ChannelTables], 1)
	msg := broadcaster.messages[models.ChannelTables][0].(models.TableStatusUpdateMessage)
	assert.Equal(t, "available", msg.Status)
	assert.Equal(t, "T7", msg.TableNumber)
}

func TestAddPayment_DefaultsToCompleted(t *testing.T) {
	storage := &fakeStorage{order: pendingOrder("100.00"), claimResult: true}
	svc := newTestService(storage, &fakePublisher{}, newFakeBroadcaster())

	payment, err := svc.AddPayment(context.Background(), 1, &PaymentRequest{
		Method: "cash",
		Amount: "40.00",
	}, "req-1")

	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, payment.Status)
}

func TestAddPayment_RejectsBadAmount(t *testing.T) {
	storage := &fakeStorage{order: pendingOrder("100.00")}
	svc := newTestService(storage, &fakePublisher{}, newFakeBroadcaster())

	_, err := svc.AddPayment(context.Background(), 1, &PaymentRequest{
		Method: "cash",
		Amount: "forty",
	}, "req-1")

	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestAddPayment_RejectsOverpayment(t *testing.T) {
	storage := &fakeStorage{order: pendingOrder("100.00")}
	svc := newTestService(storage, &fakePublisher{}, newFakeBroadcaster())

	_, err := svc.AddPayment(context.Background(), 1, &PaymentRequest{
		Method: "cash",
		Amount: "100.01",
	}, "req-1")

	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestAddPayment_PartialDoesNotSettle(t *testing.T) {
	storage := &fakeStorage{order: pendingOrder("100.00"), claimResult: true}
	publisher := &fakePublisher{}
	svc := newTestService(storage, publisher, newFakeBroadcaster())

	_, err := svc.AddPayment(context.Background(), 1, &PaymentRequest{
		Method: "cash",
		Amount: "40.00",
	}, "req-1")

	require.NoError(t, err)
	assert.Zero(t, storage.claimCalls)
	assert.Empty(t, publisher.events)
}

func TestAddPayment_FullPaymentPublishesSettlement(t *testing.T) {
	storage := &fakeStorage{
		order:       pendingOrder("100.00"),
		claimResult: true,
		lines: []DeductionLine{
			{Ref: models.ProductRef(5), ComponentQty: decimal.RequireFromString("0.2"), ItemQty: 2},
		},
	}
	publisher := &fakePublisher{}
	broadcaster := newFakeBroadcaster()
	svc := newTestService(storage, publisher, broadcaster)

	_, err := svc.AddPayment(context.Background(), 1, &PaymentRequest{
		Method: "card",
		Amount: "100.00",
	}, "req-1")

	require.NoError(t, err)
	assert.Equal(t, 1, storage.claimCalls)
	assert.Zero(t, storage.releaseCalls)
	assert.Equal(t, models.RoutingKeyOrderPaid, publisher.routingKey)
	require.Len(t, publisher.events, 1)

	event := publisher.events[0].(models.OrderPaidEvent)
	assert.Equal(t, models.EventOrderPaid, event.EventType)
	require.Len(t, event.StockDeductions.Products, 1)
	assert.InDelta(t, 0.4, event.StockDeductions.Products[0].Quantity, 1e-9)

	require.Len(t, broadcaster.messages[models.ChannelOrders], 1)
	received := broadcaster.messages[models.ChannelOrders][0].(models.PaymentReceivedMessage)
	assert.Equal(t, "payment_received", received.Type)
}

func TestAddPayment_AlreadyClaimedPublishesNothing(t *testing.T) {
	storage := &fakeStorage{order: pendingOrder("100.00"), claimResult: false}
	publisher := &fakePublisher{}
	svc := newTestService(storage, publisher, newFakeBroadcaster())

	_, err := svc.AddPayment(context.Background(), 1, &PaymentRequest{
		Method: "cash",
		Amount: "100.00",
	}, "req-1")

	require.NoError(t, err)
	assert.Equal(t, 1, storage.claimCalls)
	assert.Empty(t, publisher.events)
}

func TestAddPayment_PublishFailureReleasesClaim(t *testing.T) {
	storage := &fakeStorage{order: pendingOrder("100.00"), claimResult: true}
	publisher := &fakePublisher{publishErr: errors.New("broker unavailable")}
	svc := newTestService(storage, publisher, newFakeBroadcaster())

	_, err := svc.AddPayment(context.Background(), 1, &PaymentRequest{
		Method: "cash",
		Amount: "100.00",
	}, "req-1")

	require.Error(t, err)
	assert.Equal(t, 1, storage.claimCalls)
	assert.Equal(t, 1, storage.releaseCalls)
}

func TestChangeStatus_KDSBroadcastCarriesItems(t *testing.T) {
	storage := &fakeStorage{
		order: pendingOrder("100.00"),
		orderItems: []models.OrderItem{
			{ID: 1, MenuItemName: "Burger", Quantity: 2, Notes: "no onions"},
			{ID: 2, MenuItemName: "Fries", Quantity: 1},
		},
	}
	broadcaster := newFakeBroadcaster()
	svc := newTestService(storage, &fakePublisher{}, broadcaster)

	_, err := svc.ChangeStatus(context.Background(), 1, models.StatusPreparing, "req-1")

	require.NoError(t, err)
	require.Len(t, broadcaster.messages[models.ChannelKDS], 1)
	msg := broadcaster.messages[models.ChannelKDS][0].(models.OrderUpdateMessage)
	require.Len(t, msg.Items, 2, "kitchen display update must carry the full item set")
	assert.Equal(t, "Burger", msg.Items[0].MenuItemName)
	assert.Equal(t, 2, msg.Items[0].Quantity)
	assert.Equal(t, "no onions", msg.Items[0].Notes)
}

func TestRepublishSettlements_RecoversAfterPublishFailure(t *testing.T) {
	storage := &fakeStorage{
		order:       pendingOrder("100.00"),
		claimResult: true,
		lines: []DeductionLine{
			{Ref: models.ProductRef(5), ComponentQty: decimal.RequireFromString("0.2"), ItemQty: 1},
		},
	}
	publisher := &fakePublisher{publishErr: errors.New("broker unavailable")}
	svc := newTestService(storage, publisher, newFakeBroadcaster())

	_, err := svc.AddPayment(context.Background(), 1, &PaymentRequest{
		Method: "cash",
		Amount: "100.00",
	}, "req-1")
	require.Error(t, err)
	require.Equal(t, 1, storage.releaseCalls)

	// Broker recovers; the sweep must emit the event exactly once
	publisher.publishErr = nil

	published, err := svc.RepublishSettlements(context.Background(), "req-2")
	require.NoError(t, err)
	assert.Equal(t, 1, published)
	require.Len(t, publisher.events, 1)
	event := publisher.events[0].(models.OrderPaidEvent)
	assert.Equal(t, models.EventOrderPaid, event.EventType)

	published, err = svc.RepublishSettlements(context.Background(), "req-3")
	require.NoError(t, err)
	assert.Zero(t, published)
	assert.Len(t, publisher.events, 1)
}

func TestRepublishSettlements_NothingPending(t *testing.T) {
	storage := &fakeStorage{order: pendingOrder("100.00"), claimResult: true}
	publisher := &fakePublisher{}
	svc := newTestService(storage, publisher, newFakeBroadcaster())

	published, err := svc.RepublishSettlements(context.Background(), "req-1")

	require.NoError(t, err)
	assert.Zero(t, published)
	assert.Empty(t, publisher.events)
}

func TestDeleteOrder_ConcurrentTransitionRejected(t *testing.T) {
	order := pendingOrder("100.00")
	storage := &fakeStorage{order: order}
	// A status change commits between the service's read and the delete
	storage.beforeDelete = func() { order.Status = models.StatusPreparing }
	svc := newTestService(storage, &fakePublisher{}, newFakeBroadcaster())

	err := svc.DeleteOrder(context.Background(), 1, "req-1")

	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestDeleteOrder_OnlyPending(t *testing.T) {
	order := pendingOrder("100.00")
	order.Status = models.StatusPreparing
	svc := newTestService(&fakeStorage{order: order}, &fakePublisher{}, newFakeBroadcaster())

	err := svc.DeleteOrder(context.Background(), 1, "req-1")

	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestGenerateOrderNumber(t *testing.T) {
	first := GenerateOrderNumber()
	second := GenerateOrderNumber()

	assert.True(t, strings.HasPrefix(first, "ORD-"))
	assert.NotEqual(t, first, second)
}
