package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exo273/backend-pos/internal/logger"
)

func testWorker() *Worker {
	// Store and propagator stay nil: these paths never reach them
	return NewWorker(nil, nil, nil, logger.New("events-test"))
}

func TestHandleMessage_MalformedEnvelope(t *testing.T) {
	w := testWorker()

	err := w.handleMessage(context.Background(), "operations.product.updated", []byte("{not json"))

	require.Error(t, err, "poison messages must be rejected so they dead-letter")
}

func TestHandleMessage_UnknownEventTypeIsAcked(t *testing.T) {
	w := testWorker()

	err := w.handleMessage(context.Background(), "operations.product.created",
		[]byte(`{"event_type": "PRODUCT_ARCHIVED"}`))

	assert.NoError(t, err, "unknown event types are ignored, not dead-lettered")
}

func TestHandleMessage_ProductEventMissingID(t *testing.T) {
	w := testWorker()

	err := w.handleMessage(context.Background(), "operations.product.updated",
		[]byte(`{"event_type": "PRODUCT_STOCK_UPDATED", "product_data": {"name": "Beef"}}`))

	require.Error(t, err)
	assert.ErrorContains(t, err, "product_id")
}

func TestHandleMessage_RecipeEventMissingID(t *testing.T) {
	w := testWorker()

	err := w.handleMessage(context.Background(), "operations.recipe.updated",
		[]byte(`{"event_type": "RECIPE_UPDATED", "recipe_data": {"name": "Salsa"}}`))

	require.Error(t, err)
	assert.ErrorContains(t, err, "recipe_id")
}
