package menu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exo273/backend-pos/internal/logger"
	"github.com/exo273/backend-pos/internal/models"
)

// Validation happens before any repository access, so these tests run
// against a service with no backing store.
func validationOnlyService() *Service {
	return NewService(nil, nil, logger.New("menu-test"))
}

func TestCreateCategory_RequiresName(t *testing.T) {
	svc := validationOnlyService()

	_, err := svc.CreateCategory(context.Background(), &CreateCategoryRequest{})

	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestCreateItem_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  CreateItemRequest
	}{
		{"missing name", CreateItemRequest{CategoryID: 1, Price: "100.00"}},
		{"missing category", CreateItemRequest{Name: "Burger", Price: "100.00"}},
		{"unparseable price", CreateItemRequest{Name: "Burger", CategoryID: 1, Price: "cheap"}},
		{"zero price", CreateItemRequest{Name: "Burger", CategoryID: 1, Price: "0"}},
		{"negative price", CreateItemRequest{Name: "Burger", CategoryID: 1, Price: "-10.00"}},
	}

	svc := validationOnlyService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateItem(context.Background(), &tt.req)
			require.Error(t, err)
			assert.True(t, models.IsValidation(err))
		})
	}
}

func TestAddComponent_Validation(t *testing.T) {
	productID := int64(5)
	recipeID := int64(3)

	tests := []struct {
		name string
		req  AddComponentRequest
	}{
		{"neither reference", AddComponentRequest{Quantity: "1"}},
		{"both references", AddComponentRequest{ProductID: &productID, RecipeID: &recipeID, Quantity: "1"}},
		{"unparseable quantity", AddComponentRequest{ProductID: &productID, Quantity: "some"}},
		{"zero quantity", AddComponentRequest{ProductID: &productID, Quantity: "0"}},
		{"negative quantity", AddComponentRequest{ProductID: &productID, Quantity: "-0.5"}},
	}

	svc := validationOnlyService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddComponent(context.Background(), 1, &tt.req, "req-1")
			require.Error(t, err)
			assert.True(t, models.IsValidation(err))
		})
	}
}
