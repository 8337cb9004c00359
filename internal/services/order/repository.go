package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/exo273/backend-pos/internal/database"
	"github.com/exo273/backend-pos/internal/models"
)

// Repository is the pgx implementation of Storage. Every mutating
// method locks the order row FOR UPDATE inside its transaction, so two
// concurrent mutations of the same order serialize and each one sees
// the totals the previous one committed.
type Repository struct {
	db *database.DB
}

// NewRepository creates an order repository
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// CreateOrder inserts the order and its initial items in one
// transaction, snapshotting each item's unit price from the menu and
// occupying the table when one is given.
func (r *Repository) CreateOrder(ctx context.Context, order *models.Order, items []NewItem) (*models.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, database.InsertOrderSQL,
		order.OrderNumber, order.TableID, order.CustomerName, order.CustomerPhone, order.Notes,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}
	order.Status = models.StatusPending

	for _, item := range items {
		if _, err := insertOrderItem(ctx, tx, order, item); err != nil {
			return nil, err
		}
	}

	if err := refreshOrderTotals(ctx, tx, order); err != nil {
		return nil, err
	}

	if order.TableID != nil {
		if _, err := tx.Exec(ctx, database.UpdateTableStatusSQL, string(models.TableOccupied), *order.TableID); err != nil {
			return nil, fmt.Errorf("failed to occupy table %d: %w", *order.TableID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}
	return order, nil
}

// GetOrder fetches one order with its items and payments
func (r *Repository) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order := &models.Order{}
	err := r.db.QueryRow(ctx, database.GetOrderSQL, orderID).Scan(
		&order.ID, &order.OrderNumber, &order.TableID, &order.Status,
		&order.CustomerName, &order.CustomerPhone, &order.Notes,
		&order.Subtotal, &order.Tax, &order.Total, &order.SettlementPublished,
		&order.CreatedAt, &order.StartedAt, &order.CompletedAt, &order.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %d: %w", orderID, err)
	}

	order.Items, err = scanOrderItems(ctx, r.db, orderID)
	if err != nil {
		return nil, err
	}
	order.Payments, err = r.payments(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// DeleteOrder removes an order; items and payments cascade. The status
// check happens under the row lock, so a transition committing between
// the caller's read and the delete can never orphan a live order.
func (r *Repository) DeleteOrder(ctx context.Context, orderID int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.StatusPending {
		return models.ValidationError{Field: "status", Message: "only pending orders can be deleted"}
	}

	if _, err := tx.Exec(ctx, database.DeleteOrderSQL, orderID); err != nil {
		return fmt.Errorf("failed to delete order %d: %w", orderID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit order deletion: %w", err)
	}
	return nil
}

// AddItem appends a line to a pending or preparing order and refreshes
// the order totals in the same transaction.
func (r *Repository) AddItem(ctx context.Context, orderID int64, item NewItem) (*models.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanAddItems(order.Status) {
		return nil, models.ValidationError{Field: "status", Message: fmt.Sprintf("cannot add items to a %s order", order.Status)}
	}

	if _, err := insertOrderItem(ctx, tx, order, item); err != nil {
		return nil, err
	}
	if err := refreshOrderTotals(ctx, tx, order); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit item addition: %w", err)
	}
	return order, nil
}

// RemoveItem deletes a line from a pending order and refreshes totals
func (r *Repository) RemoveItem(ctx context.Context, orderID, itemID int64) (*models.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanRemoveItems(order.Status) {
		return nil, models.ValidationError{Field: "status", Message: fmt.Sprintf("cannot remove items from a %s order", order.Status)}
	}

	tag, err := tx.Exec(ctx, database.DeleteOrderItemSQL, itemID, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete order item %d: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, models.ErrNotFound
	}

	if err := refreshOrderTotals(ctx, tx, order); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit item removal: %w", err)
	}
	return order, nil
}

// ChangeStatus validates the transition against the state machine and
// applies it, stamping started_at and completed_at on first entry.
func (r *Repository) ChangeStatus(ctx context.Context, orderID int64, to models.OrderStatus) (*models.Order, models.OrderStatus, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, "", err
	}

	oldStatus := order.Status
	if !models.CanTransition(oldStatus, to) {
		return nil, "", models.ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("cannot transition from %s to %s", oldStatus, to),
		}
	}

	err = tx.QueryRow(ctx, database.UpdateOrderStatusSQL, string(to), orderID).
		Scan(&order.StartedAt, &order.CompletedAt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to update order %d status: %w", orderID, err)
	}
	order.Status = to

	// The kitchen display broadcast carries the full item set
	order.Items, err = scanOrderItems(ctx, tx, orderID)
	if err != nil {
		return nil, "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("failed to commit status change: %w", err)
	}
	return order, oldStatus, nil
}

// AddPayment validates the payment against the order's remaining
// balance under the row lock and inserts it. The returned order carries
// the payment list including the new one.
func (r *Repository) AddPayment(ctx context.Context, orderID int64, payment NewPayment) (*models.Order, *models.Payment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if order.Status == models.StatusCancelled {
		return nil, nil, models.ValidationError{Field: "status", Message: "cannot pay a cancelled order"}
	}

	var paid decimal.Decimal
	if err := tx.QueryRow(ctx, database.SumCompletedPaymentsSQL, orderID).Scan(&paid); err != nil {
		return nil, nil, fmt.Errorf("failed to sum payments for order %d: %w", orderID, err)
	}

	remaining := order.Total.Sub(paid)
	if err := models.ValidatePayment(payment.Method, payment.Amount, payment.ConvenioCode, remaining); err != nil {
		return nil, nil, err
	}

	stored := &models.Payment{
		OrderID:              orderID,
		Method:               payment.Method,
		Amount:               payment.Amount,
		Status:               payment.Status,
		ConvenioCode:         payment.ConvenioCode,
		ConvenioName:         payment.ConvenioName,
		TransactionReference: payment.TransactionReference,
		Notes:                payment.Notes,
	}
	err = tx.QueryRow(ctx, database.InsertPaymentSQL,
		orderID, string(payment.Method), payment.Amount, string(payment.Status),
		payment.ConvenioCode, payment.ConvenioName, payment.TransactionReference, payment.Notes,
	).Scan(&stored.ID, &stored.CreatedAt, &stored.CompletedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit payment: %w", err)
	}

	order.Payments, err = r.payments(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, stored, nil
}

// ClaimSettlement atomically flips the settlement flag. Returns false
// when another publisher already claimed it.
func (r *Repository) ClaimSettlement(ctx context.Context, orderID int64) (bool, error) {
	tag, err := r.db.Exec(ctx, database.ClaimSettlementSQL, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to claim settlement for order %d: %w", orderID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseSettlement clears the settlement flag after a failed publish
func (r *Repository) ReleaseSettlement(ctx context.Context, orderID int64) error {
	_, err := r.db.Exec(ctx, database.ReleaseSettlementSQL, orderID)
	if err != nil {
		return fmt.Errorf("failed to release settlement for order %d: %w", orderID, err)
	}
	return nil
}

// DeductionLines walks the composition edges of everything the order
// consumed, one row per (order item, component) pair.
func (r *Repository) DeductionLines(ctx context.Context, orderID int64) ([]DeductionLine, error) {
	rows, err := r.db.Query(ctx, database.GetDeductionLinesSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load deduction lines for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var lines []DeductionLine
	for rows.Next() {
		var line DeductionLine
		var kind string
		if err := rows.Scan(&kind, &line.Ref.ExternalID, &line.ComponentQty, &line.ItemQty); err != nil {
			return nil, err
		}
		line.Ref.Kind = models.ComponentKind(kind)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// UnpublishedSettlementOrders lists fully paid orders whose settlement
// event has not been published yet, feeding the republish sweep.
func (r *Repository) UnpublishedSettlementOrders(ctx context.Context) ([]int64, error) {
	return r.orderIDs(ctx, database.GetUnpublishedSettlementIDsSQL)
}

// ReleaseTableIfIdle frees the table when no other active order holds
// it. Returns the table and whether it was released.
func (r *Repository) ReleaseTableIfIdle(ctx context.Context, orderID, tableID int64) (*models.Table, bool, error) {
	var siblings int
	if err := r.db.QueryRow(ctx, database.CountSiblingActiveOrdersSQL, tableID, orderID).Scan(&siblings); err != nil {
		return nil, false, fmt.Errorf("failed to count active orders for table %d: %w", tableID, err)
	}
	if siblings > 0 {
		return nil, false, nil
	}

	table := &models.Table{ID: tableID, Status: models.TableAvailable}
	err := r.db.QueryRow(ctx, database.UpdateTableStatusSQL, string(models.TableAvailable), tableID).
		Scan(&table.Zone, &table.Number)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, models.ErrNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to release table %d: %w", tableID, err)
	}
	return table, true, nil
}

// GetTable fetches one table
func (r *Repository) GetTable(ctx context.Context, tableID int64) (*models.Table, error) {
	table := &models.Table{}
	err := r.db.QueryRow(ctx, database.GetTableSQL, tableID).Scan(
		&table.ID, &table.Zone, &table.Number, &table.Capacity,
		&table.Status, &table.IsActive, &table.CreatedAt, &table.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get table %d: %w", tableID, err)
	}
	return table, nil
}

// ActiveOrders builds the KDS snapshot of pending and preparing orders
func (r *Repository) ActiveOrders(ctx context.Context) ([]models.OrderSnapshot, error) {
	ids, err := r.orderIDs(ctx, database.GetActiveOrderIDsSQL)
	if err != nil {
		return nil, err
	}

	snapshots := make([]models.OrderSnapshot, 0, len(ids))
	for _, id := range ids {
		order, err := r.GetOrder(ctx, id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			return nil, err
		}

		items := make([]models.KDSItem, 0, len(order.Items))
		for _, item := range order.Items {
			items = append(items, models.KDSItem{
				ID:           item.ID,
				MenuItemName: item.MenuItemName,
				Quantity:     item.Quantity,
				Notes:        item.Notes,
			})
		}

		var table *string
		if order.TableID != nil {
			if t, err := r.GetTable(ctx, *order.TableID); err == nil {
				table = &t.Number
			}
		}

		snapshots = append(snapshots, models.OrderSnapshot{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Status:      string(order.Status),
			Items:       items,
			Table:       table,
			CreatedAt:   order.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return snapshots, nil
}

// UnpaidOrders returns non-cancelled orders whose completed payments
// fall short of the total.
func (r *Repository) UnpaidOrders(ctx context.Context) ([]UnpaidOrder, error) {
	ids, err := r.orderIDs(ctx, database.GetUnpaidOrderIDsSQL)
	if err != nil {
		return nil, err
	}

	unpaid := make([]UnpaidOrder, 0)
	for _, id := range ids {
		order, err := r.GetOrder(ctx, id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if order.IsFullyPaid() {
			continue
		}

		var table *string
		if order.TableID != nil {
			if t, err := r.GetTable(ctx, *order.TableID); err == nil {
				table = &t.Number
			}
		}

		unpaid = append(unpaid, UnpaidOrder{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Table:       table,
			Total:       order.Total.StringFixed(2),
			Paid:        order.TotalPaid().StringFixed(2),
			Remaining:   order.RemainingAmount().StringFixed(2),
			Status:      string(order.Status),
		})
	}
	return unpaid, nil
}

// queryer abstracts over the pool and an open transaction for reads
type queryer interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func lockOrder(ctx context.Context, tx pgx.Tx, orderID int64) (*models.Order, error) {
	order := &models.Order{}
	err := tx.QueryRow(ctx, database.GetOrderForUpdateSQL, orderID).Scan(
		&order.ID, &order.OrderNumber, &order.TableID, &order.Status,
		&order.CustomerName, &order.CustomerPhone, &order.Notes,
		&order.Subtotal, &order.Tax, &order.Total, &order.SettlementPublished,
		&order.CreatedAt, &order.StartedAt, &order.CompletedAt, &order.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock order %d: %w", orderID, err)
	}
	return order, nil
}

// insertOrderItem snapshots the menu item's current price into the new
// line. Unavailable menu items are rejected.
func insertOrderItem(ctx context.Context, tx pgx.Tx, order *models.Order, item NewItem) (*models.OrderItem, error) {
	var name string
	var price decimal.Decimal
	var available bool
	err := tx.QueryRow(ctx, database.GetMenuItemForOrderSQL, item.MenuItemID).Scan(&name, &price, &available)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ValidationError{Field: "menu_item_id", Message: fmt.Sprintf("menu item %d does not exist", item.MenuItemID)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get menu item %d: %w", item.MenuItemID, err)
	}
	if !available {
		return nil, models.ValidationError{Field: "menu_item_id", Message: fmt.Sprintf("menu item %q is not available", name)}
	}

	line := &models.OrderItem{
		OrderID:      order.ID,
		MenuItemID:   item.MenuItemID,
		MenuItemName: name,
		Quantity:     item.Quantity,
		UnitPrice:    price,
		Subtotal:     price.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2),
		Notes:        item.Notes,
	}
	err = tx.QueryRow(ctx, database.InsertOrderItemSQL,
		order.ID, line.MenuItemID, line.Quantity, line.UnitPrice, line.Subtotal, line.Notes,
	).Scan(&line.ID, &line.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert order item: %w", err)
	}
	return line, nil
}

// refreshOrderTotals reloads the item set inside the transaction and
// writes the derived subtotal, tax and total back onto the order row.
func refreshOrderTotals(ctx context.Context, tx pgx.Tx, order *models.Order) error {
	items, err := scanOrderItems(ctx, tx, order.ID)
	if err != nil {
		return err
	}
	order.Items = items

	order.Subtotal, order.Tax, order.Total = models.ComputeTotals(items)
	_, err = tx.Exec(ctx, database.UpdateOrderTotalsSQL, order.Subtotal, order.Tax, order.Total, order.ID)
	if err != nil {
		return fmt.Errorf("failed to update totals for order %d: %w", order.ID, err)
	}
	return nil
}

func scanOrderItems(ctx context.Context, q queryer, orderID int64) ([]models.OrderItem, error) {
	rows, err := q.Query(ctx, database.GetOrderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items of order %d: %w", orderID, err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.MenuItemID, &item.MenuItemName,
			&item.Quantity, &item.UnitPrice, &item.Subtotal, &item.Notes, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *Repository) payments(ctx context.Context, orderID int64) ([]models.Payment, error) {
	rows, err := r.db.Query(ctx, database.GetPaymentsByOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments of order %d: %w", orderID, err)
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var p models.Payment
		var method, status string
		if err := rows.Scan(&p.ID, &p.OrderID, &method, &p.Amount, &status,
			&p.ConvenioCode, &p.ConvenioName, &p.TransactionReference, &p.Notes,
			&p.CreatedAt, &p.CompletedAt); err != nil {
			return nil, err
		}
		p.Method = models.PaymentMethod(method)
		p.Status = models.PaymentStatus(status)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *Repository) orderIDs(ctx context.Context, sql string) ([]int64, error) {
	rows, err := r.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
