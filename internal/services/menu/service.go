package menu

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/exo273/backend-pos/internal/logger"
	"github.com/exo273/backend-pos/internal/models"
)

// CostSource resolves the current unit cost of a catalog leaf, falling
// back to zero for leaves that have not been synced yet.
type CostSource interface {
	LeafUnitCost(ctx context.Context, ref models.ComponentRef) (decimal.Decimal, error)
}

// Service owns menu items and their composition edges
type Service struct {
	repo   *Repository
	costs  CostSource
	logger *logger.Logger
}

// NewService creates a menu service
func NewService(repo *Repository, costs CostSource, log *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		costs:  costs,
		logger: log,
	}
}

// CreateCategoryRequest carries the fields of a new category
type CreateCategoryRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	DisplayOrder int    `json:"display_order"`
}

// CreateCategory validates and stores a menu category
func (s *Service) CreateCategory(ctx context.Context, req *CreateCategoryRequest) (*models.MenuCategory, error) {
	if req.Name == "" {
		return nil, models.ValidationError{Field: "name", Message: "is required"}
	}

	category := &models.MenuCategory{
		Name:         req.Name,
		Description:  req.Description,
		DisplayOrder: req.DisplayOrder,
		IsActive:     true,
	}
	if err := s.repo.CreateCategory(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

// CreateItemRequest carries the fields of a new menu item
type CreateItemRequest struct {
	CategoryID      int64  `json:"category_id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Price           string `json:"price"`
	PreparationTime int    `json:"preparation_time"`
	DisplayOrder    int    `json:"display_order"`
}

// CreateItem validates and stores a sellable menu item
func (s *Service) CreateItem(ctx context.Context, req *CreateItemRequest) (*models.MenuItem, error) {
	if req.Name == "" {
		return nil, models.ValidationError{Field: "name", Message: "is required"}
	}
	if req.CategoryID <= 0 {
		return nil, models.ValidationError{Field: "category_id", Message: "is required"}
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return nil, models.ValidationError{Field: "price", Message: "must be a decimal number"}
	}
	if !price.IsPositive() {
		return nil, models.ValidationError{Field: "price", Message: "must be greater than zero"}
	}

	preparationTime := req.PreparationTime
	if preparationTime <= 0 {
		preparationTime = 15
	}

	item := &models.MenuItem{
		CategoryID:      req.CategoryID,
		Name:            req.Name,
		Description:     req.Description,
		Price:           price.Round(2),
		IsAvailable:     true,
		DisplayOrder:    req.DisplayOrder,
		PreparationTime: preparationTime,
	}
	if err := s.repo.CreateMenuItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// GetItem fetches a menu item with its components
func (s *Service) GetItem(ctx context.Context, id int64) (*models.MenuItem, []models.MenuItemComponent, error) {
	item, err := s.repo.GetMenuItem(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	components, err := s.repo.Components(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return item, components, nil
}

// AddComponentRequest carries the wire shape of a new component edge:
// exactly one of product_id / recipe_id must be set.
type AddComponentRequest struct {
	ProductID *int64 `json:"product_id"`
	RecipeID  *int64 `json:"recipe_id"`
	Quantity  string `json:"quantity"`
}

// AddComponent validates a component edge, seeds its cached unit cost
// from the mirrored catalog and stores it. A leaf that has not been
// synced yet seeds cost zero.
func (s *Service) AddComponent(ctx context.Context, menuItemID int64, req *AddComponentRequest, requestID string) (*models.MenuItemComponent, error) {
	ref, err := models.ResolveComponentRef(req.ProductID, req.RecipeID)
	if err != nil {
		return nil, err
	}

	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		return nil, models.ValidationError{Field: "quantity", Message: "must be a decimal number"}
	}
	if !quantity.IsPositive() {
		return nil, models.ValidationError{Field: "quantity", Message: "must be greater than zero"}
	}

	if _, err := s.repo.GetMenuItem(ctx, menuItemID); err != nil {
		return nil, err
	}

	unitCost, err := s.costs.LeafUnitCost(ctx, ref)
	if err != nil {
		return nil, err
	}

	component := &models.MenuItemComponent{
		MenuItemID:     menuItemID,
		Ref:            ref,
		Quantity:       quantity.Round(3),
		CachedUnitCost: unitCost,
	}
	if err := s.repo.AddComponent(ctx, component); err != nil {
		return nil, err
	}

	s.logger.Debug("component_added",
		fmt.Sprintf("Added %s %d to menu item %d", ref.Kind, ref.ExternalID, menuItemID),
		requestID, map[string]interface{}{
			"menu_item_id":   menuItemID,
			"component_kind": string(ref.Kind),
			"external_id":    ref.ExternalID,
			"unit_cost":      unitCost.StringFixed(2),
		})

	return component, nil
}

// RemoveComponent deletes a component edge and refreshes the cached cost
func (s *Service) RemoveComponent(ctx context.Context, menuItemID, componentID int64) error {
	return s.repo.RemoveComponent(ctx, menuItemID, componentID)
}

// Recalculate recomputes one menu item's cached cost on demand
func (s *Service) Recalculate(ctx context.Context, menuItemID int64) (decimal.Decimal, error) {
	if _, err := s.repo.GetMenuItem(ctx, menuItemID); err != nil {
		return decimal.Zero, err
	}
	return s.repo.Recalculate(ctx, menuItemID)
}

// RecalculateAll recomputes every menu item's cached cost, used after
// a full catalog resync. Returns the number of items recalculated.
func (s *Service) RecalculateAll(ctx context.Context, requestID string) (int, error) {
	ids, err := s.repo.ListMenuItemIDs(ctx)
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		if _, err := s.repo.Recalculate(ctx, id); err != nil {
			return 0, fmt.Errorf("failed to recalculate menu item %d: %w", id, err)
		}
	}

	s.logger.Info("menu_costs_recalculated",
		fmt.Sprintf("Recalculated %d menu items", len(ids)),
		requestID, map[string]interface{}{"count": len(ids)})

	return len(ids), nil
}
