package catalog

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/exo273/backend-pos/internal/logger"
	"github.com/exo273/backend-pos/internal/models"
)

// Graph is the slice of the menu composition graph the propagation
// engine mutates. The production implementation lives in the menu
// package and performs the cascade atomically, serialized per leaf.
type Graph interface {
	// CascadeLeafCost updates cached_unit_cost on every component
	// referencing the leaf and recalculates each owning menu item's
	// cached cost in the same transaction. Returns the ids of the
	// affected menu items.
	CascadeLeafCost(ctx context.Context, kind models.ComponentKind, externalID int64, unitCost decimal.Decimal) ([]int64, error)
}

// Propagator cascades catalog cost changes through the menu graph.
// It is the only writer of component cached costs.
type Propagator struct {
	graph  Graph
	logger *logger.Logger
}

// NewPropagator creates a cost propagation engine over the given graph
func NewPropagator(graph Graph, log *logger.Logger) *Propagator {
	return &Propagator{
		graph:  graph,
		logger: log,
	}
}

// OnLeafUpdated applies a new unit cost for one catalog leaf to every
// menu item that consumes it. The operation is idempotent: replaying
// the same update leaves all cached costs unchanged, because cached
// costs are recomputed from scratch rather than accumulated.
func (p *Propagator) OnLeafUpdated(ctx context.Context, kind models.ComponentKind, externalID int64, unitCost decimal.Decimal, requestID string) (int, error) {
	affected, err := p.graph.CascadeLeafCost(ctx, kind, externalID, unitCost)
	if err != nil {
		return 0, fmt.Errorf("failed to cascade %s %d cost update: %w", kind, externalID, err)
	}

	if len(affected) > 0 {
		p.logger.Info("cost_propagated",
			fmt.Sprintf("Recalculated %d menu items for %s %d", len(affected), kind, externalID),
			requestID, map[string]interface{}{
				"component_kind": string(kind),
				"external_id":    externalID,
				"unit_cost":      unitCost.StringFixed(2),
				"menu_items":     affected,
			})
	}

	return len(affected), nil
}
