package menu

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/exo273/backend-pos/internal/database"
	"github.com/exo273/backend-pos/internal/models"
)

// Repository persists the menu composition graph
type Repository struct {
	db *database.DB
}

// NewRepository creates a menu repository
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// CreateCategory inserts a menu category
func (r *Repository) CreateCategory(ctx context.Context, category *models.MenuCategory) error {
	err := r.db.QueryRow(ctx, database.InsertMenuCategorySQL,
		category.Name, category.Description, category.DisplayOrder, category.IsActive,
	).Scan(&category.ID, &category.CreatedAt, &category.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert menu category: %w", err)
	}
	return nil
}

// CreateMenuItem inserts a menu item with an empty component set
func (r *Repository) CreateMenuItem(ctx context.Context, item *models.MenuItem) error {
	err := r.db.QueryRow(ctx, database.InsertMenuItemSQL,
		item.CategoryID, item.Name, item.Description, item.Price,
		item.IsAvailable, item.DisplayOrder, item.PreparationTime,
	).Scan(&item.ID, &item.CachedCost, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert menu item: %w", err)
	}
	return nil
}

// GetMenuItem fetches one menu item
func (r *Repository) GetMenuItem(ctx context.Context, id int64) (*models.MenuItem, error) {
	item := &models.MenuItem{}
	err := r.db.QueryRow(ctx, database.GetMenuItemSQL, id).Scan(
		&item.ID, &item.CategoryID, &item.Name, &item.Description,
		&item.Price, &item.CachedCost, &item.ImageURL, &item.IsAvailable,
		&item.DisplayOrder, &item.PreparationTime, &item.CreatedAt, &item.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get menu item %d: %w", id, err)
	}
	return item, nil
}

// Components lists the component edges of one menu item
func (r *Repository) Components(ctx context.Context, menuItemID int64) ([]models.MenuItemComponent, error) {
	rows, err := r.db.Query(ctx, database.GetComponentsByMenuItemSQL, menuItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list components of menu item %d: %w", menuItemID, err)
	}
	defer rows.Close()

	var components []models.MenuItemComponent
	for rows.Next() {
		var c models.MenuItemComponent
		var kind string
		if err := rows.Scan(&c.ID, &c.MenuItemID, &kind, &c.Ref.ExternalID,
			&c.Quantity, &c.CachedUnitCost, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Ref.Kind = models.ComponentKind(kind)
		components = append(components, c)
	}
	return components, rows.Err()
}

// AddComponent inserts a component edge and recalculates the owning
// menu item inside one transaction, so the cached cost never reflects
// a partial component set.
func (r *Repository) AddComponent(ctx context.Context, component *models.MenuItemComponent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, database.InsertComponentSQL,
		component.MenuItemID, string(component.Ref.Kind), component.Ref.ExternalID,
		component.Quantity, component.CachedUnitCost,
	).Scan(&component.ID, &component.CreatedAt, &component.UpdatedAt)
	if isUniqueViolation(err) {
		return models.ValidationError{
			Field:   "component",
			Message: "menu item already has this component",
		}
	}
	if err != nil {
		return fmt.Errorf("failed to insert component: %w", err)
	}

	var cachedCost decimal.Decimal
	if err := tx.QueryRow(ctx, database.RecalculateMenuItemCostSQL, component.MenuItemID).Scan(&cachedCost); err != nil {
		return fmt.Errorf("failed to recalculate menu item %d: %w", component.MenuItemID, err)
	}

	return tx.Commit(ctx)
}

// RemoveComponent deletes a component edge and recalculates the owner
func (r *Repository) RemoveComponent(ctx context.Context, menuItemID, componentID int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, database.DeleteComponentSQL, componentID, menuItemID)
	if err != nil {
		return fmt.Errorf("failed to delete component %d: %w", componentID, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	var cachedCost decimal.Decimal
	if err := tx.QueryRow(ctx, database.RecalculateMenuItemCostSQL, menuItemID).Scan(&cachedCost); err != nil {
		return fmt.Errorf("failed to recalculate menu item %d: %w", menuItemID, err)
	}

	return tx.Commit(ctx)
}

// isUniqueViolation reports whether err is a PostgreSQL unique
// constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Recalculate recomputes one menu item's cached cost as the exact sum
// of its components. The write is a single atomic statement.
func (r *Repository) Recalculate(ctx context.Context, menuItemID int64) (decimal.Decimal, error) {
	var cachedCost decimal.Decimal
	err := r.db.QueryRow(ctx, database.RecalculateMenuItemCostSQL, menuItemID).Scan(&cachedCost)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, models.ErrNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to recalculate menu item %d: %w", menuItemID, err)
	}
	return cachedCost, nil
}

// ListMenuItemIDs returns all menu item ids, for full recalculation
func (r *Repository) ListMenuItemIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, database.ListMenuItemIDsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list menu items: %w", err)
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

// CascadeLeafCost implements catalog.Graph. One transaction updates the
// cached unit cost of every component referencing the leaf and then
// recalculates each owning menu item, so all affected items reflect the
// same upstream snapshot. A transactional advisory lock serializes
// concurrent cascades for the same (kind, external id) pair.
func (r *Repository) CascadeLeafCost(ctx context.Context, kind models.ComponentKind, externalID int64, unitCost decimal.Decimal) ([]int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))",
		fmt.Sprintf("leaf:%s:%d", kind, externalID))
	if err != nil {
		return nil, fmt.Errorf("failed to acquire leaf lock: %w", err)
	}

	rows, err := tx.Query(ctx, database.UpdateComponentCostsByLeafSQL, unitCost, string(kind), externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to update component costs: %w", err)
	}

	seen := make(map[int64]struct{})
	var affected []int64
	for rows.Next() {
		var menuItemID int64
		if err := rows.Scan(&menuItemID); err != nil {
			rows.Close()
			return nil, err
		}
		if _, ok := seen[menuItemID]; !ok {
			seen[menuItemID] = struct{}{}
			affected = append(affected, menuItemID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var cachedCost decimal.Decimal
	for _, menuItemID := range affected {
		if err := tx.QueryRow(ctx, database.RecalculateMenuItemCostSQL, menuItemID).Scan(&cachedCost); err != nil {
			return nil, fmt.Errorf("failed to recalculate menu item %d: %w", menuItemID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit cascade: %w", err)
	}

	return affected, nil
}
