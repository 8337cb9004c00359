package events

import (
	"context"
	"fmt"

	"github.com/exo273/backend-pos/internal/logger"
	"github.com/exo273/backend-pos/internal/messaging"
	"github.com/exo273/backend-pos/internal/models"
	"github.com/exo273/backend-pos/internal/services/catalog"
)

// Worker consumes catalog events from the operations service, updates
// the mirror and cascades cost changes through the menu graph.
type Worker struct {
	consumer   *messaging.Consumer
	store      *catalog.Store
	propagator *catalog.Propagator
	logger     *logger.Logger
}

// NewWorker creates an events worker
func NewWorker(consumer *messaging.Consumer, store *catalog.Store, propagator *catalog.Propagator, log *logger.Logger) *Worker {
	return &Worker{
		consumer:   consumer,
		store:      store,
		propagator: propagator,
		logger:     log,
	}
}

// Start consumes until the context is cancelled
func (w *Worker) Start(ctx context.Context) error {
	return w.consumer.StartConsuming(ctx, w.handleMessage)
}

// handleMessage dispatches one delivery by its event_type. A returned
// error routes the message to the dead-letter queue; unknown event
// types are acked and ignored so the queue never clogs on messages
// meant for other consumers.
func (w *Worker) handleMessage(ctx context.Context, routingKey string, body []byte) error {
	requestID := logger.GenerateRequestID()

	var envelope models.InboundEvent
	if err := messaging.ParseMessage(body, &envelope); err != nil {
		return fmt.Errorf("failed to parse event envelope: %w", err)
	}

	switch envelope.EventType {
	case models.EventProductStockUpdated:
		return w.handleProductStockUpdated(ctx, body, requestID)
	case models.EventRecipeUpdated:
		return w.handleRecipeUpdated(ctx, body, requestID)
	default:
		w.logger.Debug("event_ignored",
			fmt.Sprintf("Ignoring event type %q", envelope.EventType),
			requestID, map[string]interface{}{"routing_key": routingKey})
		return nil
	}
}

func (w *Worker) handleProductStockUpdated(ctx context.Context, body []byte, requestID string) error {
	var event models.ProductStockUpdatedEvent
	if err := messaging.ParseMessage(body, &event); err != nil {
		return fmt.Errorf("failed to parse product event: %w", err)
	}
	if event.ProductID <= 0 {
		return fmt.Errorf("product event missing product_id")
	}

	product, wasCreated, err := w.store.UpsertProduct(ctx, event.ProductID, event.ProductData)
	if err != nil {
		return err
	}

	w.logger.Info("product_synced",
		fmt.Sprintf("Synced product %d (%s)", event.ProductID, product.Name),
		requestID, map[string]interface{}{
			"product_id": event.ProductID,
			"unit_cost":  product.UnitCost.StringFixed(2),
			"created":    wasCreated,
		})

	_, err = w.propagator.OnLeafUpdated(ctx, models.ComponentProduct, event.ProductID, product.UnitCost, requestID)
	return err
}

func (w *Worker) handleRecipeUpdated(ctx context.Context, body []byte, requestID string) error {
	var event models.RecipeUpdatedEvent
	if err := messaging.ParseMessage(body, &event); err != nil {
		return fmt.Errorf("failed to parse recipe event: %w", err)
	}
	if event.RecipeID <= 0 {
		return fmt.Errorf("recipe event missing recipe_id")
	}

	recipe, wasCreated, err := w.store.UpsertRecipe(ctx, event.RecipeID, event.RecipeData)
	if err != nil {
		return err
	}

	w.logger.Info("recipe_synced",
		fmt.Sprintf("Synced recipe %d (%s)", event.RecipeID, recipe.Name),
		requestID, map[string]interface{}{
			"recipe_id":     event.RecipeID,
			"cost_per_unit": recipe.CostPerUnit.StringFixed(2),
			"created":       wasCreated,
		})

	_, err = w.propagator.OnLeafUpdated(ctx, models.ComponentRecipe, event.RecipeID, recipe.CostPerUnit, requestID)
	return err
}
