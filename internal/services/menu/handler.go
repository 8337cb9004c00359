package menu

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/exo273/backend-pos/internal/logger"
	"github.com/exo273/backend-pos/internal/models"
)

// Handler handles HTTP requests for the menu service
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new menu handler
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

// SetupRoutes registers the menu endpoints on a mux
func (h *Handler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /menu/categories", h.withLogging(h.CreateCategory))
	mux.HandleFunc("POST /menu/items", h.withLogging(h.CreateItem))
	mux.HandleFunc("GET /menu/items/{id}", h.withLogging(h.GetItem))
	mux.HandleFunc("POST /menu/items/{id}/components", h.withLogging(h.AddComponent))
	mux.HandleFunc("DELETE /menu/items/{id}/components/{componentID}", h.withLogging(h.RemoveComponent))
	mux.HandleFunc("POST /menu/items/{id}/recalculate", h.withLogging(h.Recalculate))
	mux.HandleFunc("POST /menu/recalculate", h.withLogging(h.RecalculateAll))
}

// CreateCategory handles POST /menu/categories
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	var req CreateCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", requestID)
		return
	}

	category, err := h.service.CreateCategory(r.Context(), &req)
	if err != nil {
		h.handleError(w, err, requestID, "Failed to create category")
		return
	}

	h.writeJSON(w, http.StatusCreated, categoryResponse(category))
}

// CreateItem handles POST /menu/items
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", requestID)
		return
	}

	item, err := h.service.CreateItem(r.Context(), &req)
	if err != nil {
		h.handleError(w, err, requestID, "Failed to create menu item")
		return
	}

	h.writeJSON(w, http.StatusCreated, itemResponse(item, nil))
}

// GetItem handles GET /menu/items/{id}
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	itemID, ok := h.pathID(w, r, "id", requestID)
	if !ok {
		return
	}

	item, components, err := h.service.GetItem(r.Context(), itemID)
	if err != nil {
		h.handleError(w, err, requestID, "Failed to get menu item")
		return
	}

	h.writeJSON(w, http.StatusOK, itemResponse(item, components))
}

// AddComponent handles POST /menu/items/{id}/components
func (h *Handler) AddComponent(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	itemID, ok := h.pathID(w, r, "id", requestID)
	if !ok {
		return
	}

	var req AddComponentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", requestID)
		return
	}

	component, err := h.service.AddComponent(r.Context(), itemID, &req, requestID)
	if err != nil {
		h.handleError(w, err, requestID, "Failed to add component")
		return
	}

	h.writeJSON(w, http.StatusCreated, componentResponse(component))
}

// RemoveComponent handles DELETE /menu/items/{id}/components/{componentID}
func (h *Handler) RemoveComponent(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	itemID, ok := h.pathID(w, r, "id", requestID)
	if !ok {
		return
	}
	componentID, ok := h.pathID(w, r, "componentID", requestID)
	if !ok {
		return
	}

	if err := h.service.RemoveComponent(r.Context(), itemID, componentID); err != nil {
		h.handleError(w, err, requestID, "Failed to remove component")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Recalculate handles POST /menu/items/{id}/recalculate
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	itemID, ok := h.pathID(w, r, "id", requestID)
	if !ok {
		return
	}

	cachedCost, err := h.service.Recalculate(r.Context(), itemID)
	if err != nil {
		h.handleError(w, err, requestID, "Failed to recalculate menu item")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"menu_item_id": itemID,
		"cached_cost":  cachedCost.StringFixed(2),
	})
}

// RecalculateAll handles POST /menu/recalculate
func (h *Handler) RecalculateAll(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	count, err := h.service.RecalculateAll(r.Context(), requestID)
	if err != nil {
		h.handleError(w, err, requestID, "Failed to recalculate menu")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"recalculated": count})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name, requestID string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		h.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name), requestID)
		return 0, false
	}
	return id, true
}

func (h *Handler) handleError(w http.ResponseWriter, err error, requestID, logMessage string) {
	var verr models.ValidationError
	switch {
	case errors.As(err, &verr):
		h.writeErrorResponse(w, http.StatusBadRequest, verr.Error(), requestID)
	case errors.Is(err, models.ErrNotFound):
		h.writeErrorResponse(w, http.StatusNotFound, "Not found", requestID)
	default:
		h.logger.Error("request_failed", logMessage, requestID, err, nil)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", requestID)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", "", err, nil)
	}
}

func (h *Handler) writeErrorResponse(w http.ResponseWriter, statusCode int, message, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":      message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	})
}

// withLogging adds request logging middleware
func (h *Handler) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := logger.GenerateRequestID()

		h.logger.Debug("request_started",
			fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
			})

		rw := &responseWriter{ResponseWriter: w, statusCode: 200}
		next(rw, r)

		h.logger.Debug("request_completed",
			fmt.Sprintf("%s %s - %d", r.Method, r.URL.Path, rw.statusCode),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status_code": rw.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
			})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// CategoryResponse is the wire shape of one menu category
type CategoryResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	DisplayOrder int    `json:"display_order"`
	IsActive     bool   `json:"is_active"`
}

// ItemResponse is the wire shape of one menu item
type ItemResponse struct {
	ID              int64               `json:"id"`
	CategoryID      int64               `json:"category_id"`
	Name            string              `json:"name"`
	Description     string              `json:"description"`
	Price           string              `json:"price"`
	CachedCost      string              `json:"cached_cost"`
	ProfitMargin    string              `json:"profit_margin"`
	IsAvailable     bool                `json:"is_available"`
	DisplayOrder    int                 `json:"display_order"`
	PreparationTime int                 `json:"preparation_time"`
	Components      []ComponentResponse `json:"components,omitempty"`
}

// ComponentResponse is the wire shape of one composition edge
type ComponentResponse struct {
	ID             int64  `json:"id"`
	MenuItemID     int64  `json:"menu_item_id"`
	ComponentKind  string `json:"component_kind"`
	ExternalID     int64  `json:"external_id"`
	Quantity       string `json:"quantity"`
	CachedUnitCost string `json:"cached_unit_cost"`
	Cost           string `json:"cost"`
}

func categoryResponse(c *models.MenuCategory) CategoryResponse {
	return CategoryResponse{
		ID:           c.ID,
		Name:         c.Name,
		Description:  c.Description,
		DisplayOrder: c.DisplayOrder,
		IsActive:     c.IsActive,
	}
}

func itemResponse(item *models.MenuItem, components []models.MenuItemComponent) ItemResponse {
	resp := ItemResponse{
		ID:              item.ID,
		CategoryID:      item.CategoryID,
		Name:            item.Name,
		Description:     item.Description,
		Price:           item.Price.StringFixed(2),
		CachedCost:      item.CachedCost.StringFixed(2),
		ProfitMargin:    item.ProfitMargin().StringFixed(2),
		IsAvailable:     item.IsAvailable,
		DisplayOrder:    item.DisplayOrder,
		PreparationTime: item.PreparationTime,
	}
	for i := range components {
		resp.Components = append(resp.Components, componentResponse(&components[i]))
	}
	return resp
}

func componentResponse(c *models.MenuItemComponent) ComponentResponse {
	return ComponentResponse{
		ID:             c.ID,
		MenuItemID:     c.MenuItemID,
		ComponentKind:  string(c.Ref.Kind),
		ExternalID:     c.Ref.ExternalID,
		Quantity:       c.Quantity.StringFixed(3),
		CachedUnitCost: c.CachedUnitCost.StringFixed(2),
		Cost:           c.Cost().StringFixed(2),
	}
}
