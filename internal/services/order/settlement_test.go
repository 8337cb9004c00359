package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exo273/backend-pos/internal/models"
)

func TestBuildStockDeductions_GroupsByLeaf(t *testing.T) {
	lines := []DeductionLine{
		// Two burgers, each consuming 0.2 of product 5 and 1 of recipe 3
		{Ref: models.ProductRef(5), ComponentQty: decimal.RequireFromString("0.2"), ItemQty: 2},
		{Ref: models.RecipeRef(3), ComponentQty: decimal.RequireFromString("1"), ItemQty: 2},
		// One side dish sharing product 5
		{Ref: models.ProductRef(5), ComponentQty: decimal.RequireFromString("0.1"), ItemQty: 1},
		{Ref: models.ProductRef(9), ComponentQty: decimal.RequireFromString("0.05"), ItemQty: 1},
	}

	deductions := BuildStockDeductions(lines)

	require.Len(t, deductions.Products, 2)
	require.Len(t, deductions.Recipes, 1)

	// Shared leaves fold into one entry, first-seen order preserved
	assert.Equal(t, int64(5), deductions.Products[0].ProductID)
	assert.InDelta(t, 0.5, deductions.Products[0].Quantity, 1e-9)
	assert.Equal(t, int64(9), deductions.Products[1].ProductID)
	assert.InDelta(t, 0.05, deductions.Products[1].Quantity, 1e-9)

	assert.Equal(t, int64(3), deductions.Recipes[0].RecipeID)
	assert.InDelta(t, 2.0, deductions.Recipes[0].Quantity, 1e-9)
}

func TestBuildStockDeductions_Empty(t *testing.T) {
	deductions := BuildStockDeductions(nil)

	// Serializes as [] rather than null
	assert.NotNil(t, deductions.Products)
	assert.NotNil(t, deductions.Recipes)
	assert.Empty(t, deductions.Products)
	assert.Empty(t, deductions.Recipes)
}

func TestBuildStockDeductions_RoundsQuantities(t *testing.T) {
	lines := []DeductionLine{
		{Ref: models.ProductRef(1), ComponentQty: decimal.RequireFromString("0.3333"), ItemQty: 3},
	}

	deductions := BuildStockDeductions(lines)

	require.Len(t, deductions.Products, 1)
	assert.InDelta(t, 1.0, deductions.Products[0].Quantity, 1e-9)
}

func TestBuildOrderPaidEvent(t *testing.T) {
	completedAt := time.Date(2025, 3, 14, 12, 30, 0, 0, time.UTC)
	o := &models.Order{
		ID:          42,
		OrderNumber: "ORD-20250314123000-abcd1234",
		CompletedAt: &completedAt,
	}
	lines := []DeductionLine{
		{Ref: models.ProductRef(5), ComponentQty: decimal.RequireFromString("0.2"), ItemQty: 1},
	}

	event := BuildOrderPaidEvent(o, lines)

	assert.Equal(t, models.EventOrderPaid, event.EventType)
	assert.Equal(t, int64(42), event.OrderID)
	assert.Equal(t, "ORD-20250314123000-abcd1234", event.OrderNumber)
	require.NotNil(t, event.Timestamp)
	assert.Equal(t, "2025-03-14T12:30:00Z", *event.Timestamp)
	assert.Len(t, event.StockDeductions.Products, 1)
}

func TestBuildOrderPaidEvent_NoCompletionTimestamp(t *testing.T) {
	event := BuildOrderPaidEvent(&models.Order{ID: 1, OrderNumber: "ORD-X"}, nil)
	assert.Nil(t, event.Timestamp)
}
