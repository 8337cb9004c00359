package database

// Mirrored catalog queries
const (
	UpsertMirroredProductSQL = `
		INSERT INTO mirrored_products (original_id, name, sku, unit_cost, current_stock, unit_of_measure, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (original_id) DO UPDATE SET
			name = EXCLUDED.name,
			sku = EXCLUDED.sku,
			unit_cost = EXCLUDED.unit_cost,
			current_stock = EXCLUDED.current_stock,
			unit_of_measure = EXCLUDED.unit_of_measure,
			is_active = EXCLUDED.is_active,
			last_synced_at = NOW()
		RETURNING id, unit_cost, last_synced_at, created_at, (xmax = 0) AS was_created`

	UpsertMirroredRecipeSQL = `
		INSERT INTO mirrored_recipes (original_id, name, production_cost, yield_quantity, yield_unit, cost_per_unit, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (original_id) DO UPDATE SET
			name = EXCLUDED.name,
			production_cost = EXCLUDED.production_cost,
			yield_quantity = EXCLUDED.yield_quantity,
			yield_unit = EXCLUDED.yield_unit,
			cost_per_unit = EXCLUDED.cost_per_unit,
			is_active = EXCLUDED.is_active,
			last_synced_at = NOW()
		RETURNING id, cost_per_unit, last_synced_at, created_at, (xmax = 0) AS was_created`

	GetMirroredProductSQL = `
		SELECT id, original_id, name, sku, unit_cost, current_stock, unit_of_measure, is_active, last_synced_at, created_at
		FROM mirrored_products WHERE original_id = $1`

	GetMirroredRecipeSQL = `
		SELECT id, original_id, name, production_cost, yield_quantity, yield_unit, cost_per_unit, is_active, last_synced_at, created_at
		FROM mirrored_recipes WHERE original_id = $1`
)

// Menu composition queries
const (
	InsertMenuCategorySQL = `
		INSERT INTO menu_categories (name, description, display_order, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	GetMenuItemSQL = `
		SELECT id, category_id, name, description, price, cached_cost, image_url, is_available,
		       display_order, preparation_time, created_at, updated_at
		FROM menu_items WHERE id = $1`

	InsertMenuItemSQL = `
		INSERT INTO menu_items (category_id, name, description, price, is_available, display_order, preparation_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, cached_cost, created_at, updated_at`

	InsertComponentSQL = `
		INSERT INTO menu_item_components (menu_item_id, component_kind, external_id, quantity, cached_unit_cost)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	DeleteComponentSQL = `
		DELETE FROM menu_item_components WHERE id = $1 AND menu_item_id = $2`

	GetComponentsByMenuItemSQL = `
		SELECT id, menu_item_id, component_kind, external_id, quantity, cached_unit_cost, created_at, updated_at
		FROM menu_item_components WHERE menu_item_id = $1
		ORDER BY id`

	UpdateComponentCostsByLeafSQL = `
		UPDATE menu_item_components
		SET cached_unit_cost = $1, updated_at = NOW()
		WHERE component_kind = $2 AND external_id = $3
		RETURNING menu_item_id`

	RecalculateMenuItemCostSQL = `
		UPDATE menu_items
		SET cached_cost = COALESCE((
			SELECT ROUND(SUM(cached_unit_cost * quantity), 2)
			FROM menu_item_components
			WHERE menu_item_id = menu_items.id
		), 0), updated_at = NOW()
		WHERE id = $1
		RETURNING cached_cost`

	ListMenuItemIDsSQL = `SELECT id FROM menu_items ORDER BY id`
)

// Order queries
const (
	InsertOrderSQL = `
		INSERT INTO orders (order_number, table_id, status, customer_name, customer_phone, notes)
		VALUES ($1, $2, 'pending', $3, $4, $5)
		RETURNING id, created_at, updated_at`

	GetOrderForUpdateSQL = `
		SELECT id, order_number, table_id, status, customer_name, customer_phone, notes,
		       subtotal, tax, total, settlement_published, created_at, started_at, completed_at, updated_at
		FROM orders WHERE id = $1
		FOR UPDATE`

	GetOrderSQL = `
		SELECT id, order_number, table_id, status, customer_name, customer_phone, notes,
		       subtotal, tax, total, settlement_published, created_at, started_at, completed_at, updated_at
		FROM orders WHERE id = $1`

	UpdateOrderTotalsSQL = `
		UPDATE orders SET subtotal = $1, tax = $2, total = $3, updated_at = NOW()
		WHERE id = $4`

	UpdateOrderStatusSQL = `
		UPDATE orders
		SET status = $1,
		    started_at = CASE WHEN $1 = 'preparing' AND started_at IS NULL THEN NOW() ELSE started_at END,
		    completed_at = CASE WHEN $1 = 'delivered' AND completed_at IS NULL THEN NOW() ELSE completed_at END,
		    updated_at = NOW()
		WHERE id = $2
		RETURNING started_at, completed_at`

	ClaimSettlementSQL = `
		UPDATE orders SET settlement_published = TRUE, updated_at = NOW()
		WHERE id = $1 AND settlement_published = FALSE`

	ReleaseSettlementSQL = `
		UPDATE orders SET settlement_published = FALSE, updated_at = NOW()
		WHERE id = $1`

	DeleteOrderSQL = `DELETE FROM orders WHERE id = $1 AND status = 'pending'`

	InsertOrderItemSQL = `
		INSERT INTO order_items (order_id, menu_item_id, quantity, unit_price, subtotal, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	DeleteOrderItemSQL = `
		DELETE FROM order_items WHERE id = $1 AND order_id = $2`

	GetOrderItemsSQL = `
		SELECT oi.id, oi.order_id, oi.menu_item_id, mi.name, oi.quantity, oi.unit_price, oi.subtotal, oi.notes, oi.created_at
		FROM order_items oi
		JOIN menu_items mi ON mi.id = oi.menu_item_id
		WHERE oi.order_id = $1
		ORDER BY oi.id`

	GetActiveOrderIDsSQL = `
		SELECT id FROM orders
		WHERE status IN ('pending', 'preparing')
		ORDER BY created_at`

	GetUnpaidOrderIDsSQL = `
		SELECT id FROM orders
		WHERE status IN ('pending', 'preparing', 'ready', 'delivered')
		ORDER BY created_at`

	GetUnpublishedSettlementIDsSQL = `
		SELECT o.id FROM orders o
		WHERE o.settlement_published = FALSE
		  AND o.status <> 'cancelled'
		  AND o.total > 0
		  AND (
			SELECT COALESCE(SUM(p.amount), 0) FROM payments p
			WHERE p.order_id = o.id AND p.status = 'completed'
		  ) >= o.total
		ORDER BY o.created_at`

	CountSiblingActiveOrdersSQL = `
		SELECT COUNT(*) FROM orders
		WHERE table_id = $1 AND id <> $2 AND status IN ('pending', 'preparing', 'ready')`

	GetMenuItemForOrderSQL = `
		SELECT name, price, is_available FROM menu_items WHERE id = $1`

	GetDeductionLinesSQL = `
		SELECT mic.component_kind, mic.external_id, mic.quantity, oi.quantity
		FROM order_items oi
		JOIN menu_item_components mic ON mic.menu_item_id = oi.menu_item_id
		WHERE oi.order_id = $1
		ORDER BY oi.id, mic.id`
)

// Payment queries
const (
	InsertPaymentSQL = `
		INSERT INTO payments (order_id, payment_method, amount, status, convenio_code, convenio_name, transaction_reference, notes, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CASE WHEN $4 = 'completed' THEN NOW() ELSE NULL END)
		RETURNING id, created_at, completed_at`

	GetPaymentsByOrderSQL = `
		SELECT id, order_id, payment_method, amount, status, convenio_code, convenio_name, transaction_reference, notes, created_at, completed_at
		FROM payments WHERE order_id = $1
		ORDER BY id`

	SumCompletedPaymentsSQL = `
		SELECT COALESCE(SUM(amount), 0) FROM payments
		WHERE order_id = $1 AND status = 'completed'`
)

// Table queries
const (
	GetTableSQL = `
		SELECT id, zone, number, capacity, status, is_active, created_at, updated_at
		FROM tables WHERE id = $1`

	UpdateTableStatusSQL = `
		UPDATE tables SET status = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING zone, number`
)
