package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/exo273/backend-pos/internal/database"
	"github.com/exo273/backend-pos/internal/logger"
	"github.com/exo273/backend-pos/internal/models"
)

// Store holds the mirrored catalog: local copies of products and
// recipes owned by the operations service, keyed by their original id.
// Records are written only by inbound event processing. Deactivation is
// the only form of removal; historical orders keep their references.
type Store struct {
	db     *database.DB
	logger *logger.Logger
}

// NewStore creates a mirrored catalog store
func NewStore(db *database.DB, log *logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: log,
	}
}

// UpsertProduct creates or overwrites the mirror record for a product.
// The upsert is idempotent: replaying the same event yields the same
// row. Returns the stored record and whether it was newly created.
func (s *Store) UpsertProduct(ctx context.Context, originalID int64, data models.ProductData) (*models.MirroredProduct, bool, error) {
	product := &models.MirroredProduct{
		OriginalID:    originalID,
		Name:          data.Name,
		SKU:           data.SKU,
		UnitCost:      decimal.NewFromFloat(data.UnitCost).Round(2),
		CurrentStock:  decimal.NewFromFloat(data.CurrentStock).Round(3),
		UnitOfMeasure: data.UnitOfMeasure,
		IsActive:      data.IsActive,
	}

	var wasCreated bool
	err := s.db.QueryRow(ctx, database.UpsertMirroredProductSQL,
		product.OriginalID, product.Name, product.SKU, product.UnitCost,
		product.CurrentStock, product.UnitOfMeasure, product.IsActive,
	).Scan(&product.ID, &product.UnitCost, &product.LastSyncedAt, &product.CreatedAt, &wasCreated)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert mirrored product %d: %w", originalID, err)
	}

	return product, wasCreated, nil
}

// UpsertRecipe creates or overwrites the mirror record for a recipe.
// The derived cost_per_unit is recomputed on every sync.
func (s *Store) UpsertRecipe(ctx context.Context, originalID int64, data models.RecipeData) (*models.MirroredRecipe, bool, error) {
	recipe := &models.MirroredRecipe{
		OriginalID:     originalID,
		Name:           data.Name,
		ProductionCost: decimal.NewFromFloat(data.ProductionCost).Round(2),
		YieldQuantity:  decimal.NewFromFloat(data.YieldQuantity).Round(3),
		YieldUnit:      data.YieldUnit,
		IsActive:       data.IsActive,
	}
	recipe.CostPerUnit = models.RecipeCostPerUnit(recipe.ProductionCost, recipe.YieldQuantity)

	var wasCreated bool
	err := s.db.QueryRow(ctx, database.UpsertMirroredRecipeSQL,
		recipe.OriginalID, recipe.Name, recipe.ProductionCost, recipe.YieldQuantity,
		recipe.YieldUnit, recipe.CostPerUnit, recipe.IsActive,
	).Scan(&recipe.ID, &recipe.CostPerUnit, &recipe.LastSyncedAt, &recipe.CreatedAt, &wasCreated)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert mirrored recipe %d: %w", originalID, err)
	}

	return recipe, wasCreated, nil
}

// GetProduct looks up a mirrored product by its operations-service id
func (s *Store) GetProduct(ctx context.Context, originalID int64) (*models.MirroredProduct, error) {
	product := &models.MirroredProduct{}
	err := s.db.QueryRow(ctx, database.GetMirroredProductSQL, originalID).Scan(
		&product.ID, &product.OriginalID, &product.Name, &product.SKU,
		&product.UnitCost, &product.CurrentStock, &product.UnitOfMeasure,
		&product.IsActive, &product.LastSyncedAt, &product.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mirrored product %d: %w", originalID, err)
	}
	return product, nil
}

// GetRecipe looks up a mirrored recipe by its operations-service id
func (s *Store) GetRecipe(ctx context.Context, originalID int64) (*models.MirroredRecipe, error) {
	recipe := &models.MirroredRecipe{}
	err := s.db.QueryRow(ctx, database.GetMirroredRecipeSQL, originalID).Scan(
		&recipe.ID, &recipe.OriginalID, &recipe.Name, &recipe.ProductionCost,
		&recipe.YieldQuantity, &recipe.YieldUnit, &recipe.CostPerUnit,
		&recipe.IsActive, &recipe.LastSyncedAt, &recipe.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mirrored recipe %d: %w", originalID, err)
	}
	return recipe, nil
}

// LeafUnitCost resolves the current per-unit cost of a catalog leaf.
// An unknown leaf (referenced before its first sync) resolves to zero:
// the menu item's cost is simply understated until the sync arrives.
func (s *Store) LeafUnitCost(ctx context.Context, ref models.ComponentRef) (decimal.Decimal, error) {
	switch ref.Kind {
	case models.ComponentProduct:
		product, err := s.GetProduct(ctx, ref.ExternalID)
		if errors.Is(err, models.ErrNotFound) {
			return decimal.Zero, nil
		}
		if err != nil {
			return decimal.Zero, err
		}
		return product.UnitCost, nil
	case models.ComponentRecipe:
		recipe, err := s.GetRecipe(ctx, ref.ExternalID)
		if errors.Is(err, models.ErrNotFound) {
			return decimal.Zero, nil
		}
		if err != nil {
			return decimal.Zero, err
		}
		return recipe.CostPerUnit, nil
	default:
		return decimal.Zero, models.ValidationError{Field: "component_kind", Message: "unknown component kind"}
	}
}
