package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/exo273/backend-pos/internal/models"
)

// DeductionLine is one (order item, component) pair from walking the
// composition graph of everything the order consumed.
type DeductionLine struct {
	Ref          models.ComponentRef
	ComponentQty decimal.Decimal
	ItemQty      int
}

// BuildStockDeductions multiplies each component quantity by its order
// item quantity and groups the results by leaf kind and external id.
// Ordering one menu item twice, or two menu items sharing a leaf, folds
// into a single deduction entry per leaf.
func BuildStockDeductions(lines []DeductionLine) models.StockDeductions {
	productTotals := make(map[int64]decimal.Decimal)
	recipeTotals := make(map[int64]decimal.Decimal)
	var productOrder, recipeOrder []int64

	for _, line := range lines {
		qty := line.ComponentQty.Mul(decimal.NewFromInt(int64(line.ItemQty)))
		switch line.Ref.Kind {
		case models.ComponentProduct:
			if _, ok := productTotals[line.Ref.ExternalID]; !ok {
				productOrder = append(productOrder, line.Ref.ExternalID)
			}
			productTotals[line.Ref.ExternalID] = productTotals[line.Ref.ExternalID].Add(qty)
		case models.ComponentRecipe:
			if _, ok := recipeTotals[line.Ref.ExternalID]; !ok {
				recipeOrder = append(recipeOrder, line.Ref.ExternalID)
			}
			recipeTotals[line.Ref.ExternalID] = recipeTotals[line.Ref.ExternalID].Add(qty)
		}
	}

	deductions := models.StockDeductions{
		Products: []models.ProductDeduction{},
		Recipes:  []models.RecipeDeduction{},
	}
	for _, id := range productOrder {
		deductions.Products = append(deductions.Products, models.ProductDeduction{
			ProductID: id,
			Quantity:  productTotals[id].Round(3).InexactFloat64(),
		})
	}
	for _, id := range recipeOrder {
		deductions.Recipes = append(deductions.Recipes, models.RecipeDeduction{
			RecipeID: id,
			Quantity: recipeTotals[id].Round(3).InexactFloat64(),
		})
	}
	return deductions
}

// BuildOrderPaidEvent assembles the settlement event published to the
// operations service when an order becomes fully paid.
func BuildOrderPaidEvent(o *models.Order, lines []DeductionLine) models.OrderPaidEvent {
	var timestamp *string
	if o.CompletedAt != nil {
		ts := o.CompletedAt.UTC().Format(time.RFC3339)
		timestamp = &ts
	}

	return models.OrderPaidEvent{
		EventType:       models.EventOrderPaid,
		OrderID:         o.ID,
		OrderNumber:     o.OrderNumber,
		Timestamp:       timestamp,
		StockDeductions: BuildStockDeductions(lines),
	}
}
