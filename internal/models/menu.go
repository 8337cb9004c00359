package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ComponentKind identifies which catalog namespace a component points at
type ComponentKind string

const (
	ComponentProduct ComponentKind = "product"
	ComponentRecipe  ComponentKind = "recipe"
)

// ComponentRef is a tagged reference into the operations catalog: a kind
// plus the external id in that kind's namespace. Build one through
// ProductRef, RecipeRef or ResolveComponentRef so the "both ids set" and
// "neither id set" states cannot be represented.
type ComponentRef struct {
	Kind       ComponentKind
	ExternalID int64
}

// ProductRef builds a reference to a mirrored product
func ProductRef(externalID int64) ComponentRef {
	return ComponentRef{Kind: ComponentProduct, ExternalID: externalID}
}

// RecipeRef builds a reference to a mirrored recipe
func RecipeRef(externalID int64) ComponentRef {
	return ComponentRef{Kind: ComponentRecipe, ExternalID: externalID}
}

// ResolveComponentRef converts the wire shape (separate optional
// product_id / recipe_id fields) into a ComponentRef, rejecting
// requests that set both or neither.
func ResolveComponentRef(productID, recipeID *int64) (ComponentRef, error) {
	switch {
	case productID != nil && recipeID != nil:
		return ComponentRef{}, ValidationError{
			Field:   "component",
			Message: "cannot reference both a product and a recipe",
		}
	case productID != nil:
		if *productID <= 0 {
			return ComponentRef{}, ValidationError{Field: "product_id", Message: "must be positive"}
		}
		return ProductRef(*productID), nil
	case recipeID != nil:
		if *recipeID <= 0 {
			return ComponentRef{}, ValidationError{Field: "recipe_id", Message: "must be positive"}
		}
		return RecipeRef(*recipeID), nil
	default:
		return ComponentRef{}, ValidationError{
			Field:   "component",
			Message: "either product_id or recipe_id is required",
		}
	}
}

// MenuCategory groups menu items for display
type MenuCategory struct {
	ID           int64
	Name         string
	Description  string
	DisplayOrder int
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MenuItem is a sellable composite of catalog leaves. CachedCost is a
// cache maintained by the propagation engine; it can lag catalog
// reality between an upstream change and cascade completion.
type MenuItem struct {
	ID              int64
	CategoryID      int64
	Name            string
	Description     string
	Price           decimal.Decimal
	CachedCost      decimal.Decimal
	ImageURL        string
	IsAvailable     bool
	DisplayOrder    int
	PreparationTime int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProfitMargin returns the margin percentage over the cached cost,
// or zero when no cost has been cached yet.
func (m *MenuItem) ProfitMargin() decimal.Decimal {
	if !m.CachedCost.IsPositive() || m.Price.IsZero() {
		return decimal.Zero
	}
	return m.Price.Sub(m.CachedCost).Div(m.Price).Mul(decimal.NewFromInt(100)).Round(2)
}

// MenuItemComponent is an edge in the composition graph: one menu item
// consuming a quantity of one catalog leaf. CachedUnitCost is updated
// only by the propagation engine.
type MenuItemComponent struct {
	ID             int64
	MenuItemID     int64
	Ref            ComponentRef
	Quantity       decimal.Decimal
	CachedUnitCost decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Cost is this component's contribution to the owning menu item
func (c *MenuItemComponent) Cost() decimal.Decimal {
	return c.CachedUnitCost.Mul(c.Quantity)
}

// CompositeCost sums component costs into a menu item's cached cost.
// Recomputing from the same inputs always yields the same result, which
// keeps catalog event replays idempotent.
func CompositeCost(components []MenuItemComponent) decimal.Decimal {
	total := decimal.Zero
	for i := range components {
		total = total.Add(components[i].Cost())
	}
	return total.Round(2)
}
