package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exo273/backend-pos/internal/logger"
	"github.com/exo273/backend-pos/internal/models"
)

// fakeGraph recomputes menu item costs from a fixed component layout,
// the same way the real cascade recomputes from scratch.
type fakeGraph struct {
	// menu item id -> components referencing leaves
	components map[int64][]models.MenuItemComponent
	cascades   int
	err        error
}

func (g *fakeGraph) CascadeLeafCost(ctx context.Context, kind models.ComponentKind, externalID int64, unitCost decimal.Decimal) ([]int64, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.cascades++

	var affected []int64
	for itemID, comps := range g.components {
		touched := false
		for i := range comps {
			if comps[i].Ref.Kind == kind && comps[i].Ref.ExternalID == externalID {
				comps[i].CachedUnitCost = unitCost
				touched = true
			}
		}
		if touched {
			affected = append(affected, itemID)
		}
	}
	return affected, nil
}

func (g *fakeGraph) itemCost(itemID int64) decimal.Decimal {
	return models.CompositeCost(g.components[itemID])
}

func TestOnLeafUpdated_CascadesToConsumers(t *testing.T) {
	graph := &fakeGraph{components: map[int64][]models.MenuItemComponent{
		1: {
			{Ref: models.ProductRef(5), Quantity: decimal.RequireFromString("0.2"), CachedUnitCost: decimal.RequireFromString("1000")},
			{Ref: models.RecipeRef(3), Quantity: decimal.RequireFromString("1"), CachedUnitCost: decimal.RequireFromString("500")},
		},
		2: {
			{Ref: models.ProductRef(9), Quantity: decimal.RequireFromString("1"), CachedUnitCost: decimal.RequireFromString("300")},
		},
	}}
	p := NewPropagator(graph, logger.New("catalog-test"))

	affected, err := p.OnLeafUpdated(context.Background(), models.ComponentProduct, 5,
		decimal.RequireFromString("2000"), "req-1")

	require.NoError(t, err)
	assert.Equal(t, 1, affected)

	// 0.2 * 2000 + 1 * 500
	assert.Equal(t, "900", graph.itemCost(1).String())
	// Item 2 does not consume product 5
	assert.Equal(t, "300", graph.itemCost(2).String())
}

func TestOnLeafUpdated_ReplayIsIdempotent(t *testing.T) {
	graph := &fakeGraph{components: map[int64][]models.MenuItemComponent{
		1: {
			{Ref: models.ProductRef(5), Quantity: decimal.RequireFromString("0.2"), CachedUnitCost: decimal.RequireFromString("1000")},
		},
	}}
	p := NewPropagator(graph, logger.New("catalog-test"))

	unitCost := decimal.RequireFromString("1500")
	for i := 0; i < 3; i++ {
		_, err := p.OnLeafUpdated(context.Background(), models.ComponentProduct, 5, unitCost, "req-1")
		require.NoError(t, err)
	}

	// Costs are recomputed, never accumulated
	assert.Equal(t, "300", graph.itemCost(1).String())
	assert.Equal(t, 3, graph.cascades)
}

func TestOnLeafUpdated_NoConsumers(t *testing.T) {
	graph := &fakeGraph{components: map[int64][]models.MenuItemComponent{}}
	p := NewPropagator(graph, logger.New("catalog-test"))

	affected, err := p.OnLeafUpdated(context.Background(), models.ComponentRecipe, 99,
		decimal.RequireFromString("500"), "req-1")

	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestOnLeafUpdated_PropagatesGraphError(t *testing.T) {
	graph := &fakeGraph{err: errors.New("deadlock detected")}
	p := NewPropagator(graph, logger.New("catalog-test"))

	_, err := p.OnLeafUpdated(context.Background(), models.ComponentProduct, 5,
		decimal.RequireFromString("1000"), "req-1")

	require.Error(t, err)
	assert.ErrorContains(t, err, "deadlock detected")
}
