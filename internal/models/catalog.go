package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MirroredProduct is a local read-only copy of a product owned by the
// operations service. Records are created and updated only by inbound
// PRODUCT_STOCK_UPDATED events, never by user action.
type MirroredProduct struct {
	ID            int64
	OriginalID    int64
	Name          string
	SKU           string
	UnitCost      decimal.Decimal
	CurrentStock  decimal.Decimal
	UnitOfMeasure string
	IsActive      bool
	LastSyncedAt  time.Time
	CreatedAt     time.Time
}

// MirroredRecipe is a local read-only copy of a recipe owned by the
// operations service.
type MirroredRecipe struct {
	ID             int64
	OriginalID     int64
	Name           string
	ProductionCost decimal.Decimal
	YieldQuantity  decimal.Decimal
	YieldUnit      string
	CostPerUnit    decimal.Decimal
	IsActive       bool
	LastSyncedAt   time.Time
	CreatedAt      time.Time
}

// RecipeCostPerUnit derives the per-yield-unit cost of a recipe.
// A zero or negative yield yields cost zero rather than an error, so a
// malformed upstream record can never propagate a division by zero.
func RecipeCostPerUnit(productionCost, yieldQuantity decimal.Decimal) decimal.Decimal {
	if !yieldQuantity.IsPositive() {
		return decimal.Zero
	}
	return productionCost.DivRound(yieldQuantity, 2)
}
