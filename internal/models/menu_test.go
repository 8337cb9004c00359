package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestResolveComponentRef(t *testing.T) {
	productID := int64(7)
	recipeID := int64(3)
	zero := int64(0)

	tests := []struct {
		name      string
		productID *int64
		recipeID  *int64
		want      ComponentRef
		wantErr   bool
	}{
		{"product only", &productID, nil, ProductRef(7), false},
		{"recipe only", nil, &recipeID, RecipeRef(3), false},
		{"both set", &productID, &recipeID, ComponentRef{}, true},
		{"neither set", nil, nil, ComponentRef{}, true},
		{"nonpositive product", &zero, nil, ComponentRef{}, true},
		{"nonpositive recipe", nil, &zero, ComponentRef{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveComponentRef(tt.productID, tt.recipeID)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveComponentRef() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ResolveComponentRef() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRecipeCostPerUnit(t *testing.T) {
	tests := []struct {
		name           string
		productionCost string
		yieldQuantity  string
		want           string
	}{
		{"exact division", "2000.00", "4", "500"},
		{"rounding", "1000.00", "3", "333.33"},
		{"zero yield", "2000.00", "0", "0"},
		{"negative yield", "2000.00", "-1", "0"},
		{"zero cost", "0", "4", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecipeCostPerUnit(
				decimal.RequireFromString(tt.productionCost),
				decimal.RequireFromString(tt.yieldQuantity),
			)
			if got.String() != tt.want {
				t.Errorf("RecipeCostPerUnit(%s, %s) = %s, want %s",
					tt.productionCost, tt.yieldQuantity, got, tt.want)
			}
		})
	}
}

func TestCompositeCost(t *testing.T) {
	components := []MenuItemComponent{
		{Quantity: decimal.RequireFromString("0.2"), CachedUnitCost: decimal.RequireFromString("12000.00")},
		{Quantity: decimal.RequireFromString("0.1"), CachedUnitCost: decimal.RequireFromString("1600.00")},
		{Quantity: decimal.RequireFromString("1"), CachedUnitCost: decimal.RequireFromString("500.00")},
	}

	// 2400 + 160 + 500
	if got := CompositeCost(components).String(); got != "3060" {
		t.Errorf("CompositeCost = %s, want 3060", got)
	}
}

func TestCompositeCost_Empty(t *testing.T) {
	if got := CompositeCost(nil); !got.IsZero() {
		t.Errorf("CompositeCost(nil) = %s, want 0", got)
	}
}

func TestProfitMargin(t *testing.T) {
	tests := []struct {
		name  string
		price string
		cost  string
		want  string
	}{
		{"standard margin", "10000.00", "3060.00", "69.4"},
		{"no cached cost yet", "10000.00", "0", "0"},
		{"cost above price", "1000.00", "1500.00", "-50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := MenuItem{
				Price:      decimal.RequireFromString(tt.price),
				CachedCost: decimal.RequireFromString(tt.cost),
			}
			if got := item.ProfitMargin().String(); got != tt.want {
				t.Errorf("ProfitMargin() = %s, want %s", got, tt.want)
			}
		})
	}
}
