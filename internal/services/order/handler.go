package order

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

// Handler handles HTTP requests for the order service
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new order handler
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

// SetupRoutes registers the order endpoints on a mux
func (h *Handler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders", h.withLogging(h.CreateOrder))
	mux.HandleFunc("GET /orders/unpaid", h.withLogging(h.UnpaidOrders))
	mux.HandleFunc("GET /orders/{id}", h.withLogging(h.GetOrder))
	mux.HandleFunc("DELETE /orders/{id}", h.withLogging(h.DeleteOrder))
	mux.HandleFunc("POST /orders/{id}/items", h.withLogging(h.AddItem))
	mux.HandleFunc("DELETE /orders/{id}/items/{itemID}", h.withLogging(h.RemoveItem))
	mux.HandleFunc("POST /orders/{id}/status", h.withLogging(h.ChangeStatus))
	mux.HandleFunc("POST /orders/{id}/payments", h.withLogging(h.AddPayment))
	mux.HandleFunc("POST /settlements/republish", h.withLogging(h.RepublishSettlements))
	mux.HandleFunc("GET /kds", h.withLogging(h.KDSOrders))
}

// CreateOrder handles POST /orders
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", requestID)
		return
	}

	order, err := h.service.CreateOrder(r.Context(), &req, requestID)
	if err != nil {
		h.handleError(w, err, requestID, "Failed to create order")
		return
	}

	h.writeJSON(w, http.StatusCreated, orderResponse(order))
}

// GetOrder handles GET /orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	orderID, ok := h.pathID(w, r, "id", requestID)
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		h.handleError(w, err, requestID, "Failed to get order")
		return
	}

	h.writeJSON(w, http.StatusOK, orderResponse(order))
}

// DeleteOrder handles DELETE /orders/{id}
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	orderID, ok := h.pathID(w, r, "id", requestID)
	if !ok {
		return
	}

	if err := h.service.DeleteOrder(r.Context(), orderID, requestID); err != nil {
		h.handleError(w, err, requestID, "Failed to delete order")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddItem handles POST /orders/{id}/items
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	orderID, ok := h.pathID(w, r, "id", requestID)
	if !ok {
		return
	}

	var req NewItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", requestID)
		return
	}

	order, err := h.service.AddItem(r.Context(), orderID, &req, requestID)
	if err != nil {
		h.handleError(w, err, requestID, "Failed to add item")
		return
	}

	h.writeJSON(w, http.StatusOK, orderResponse(order))
}

// RemoveItem handles DELETE /orders/{id}/items/{itemID}
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	orderID, ok := h.pathID(w, r, "id", requestID)
	if !ok {
		return
	}
	itemID, ok := h.pathID(w, r, "itemID", requestID)
	if !ok {
		return
	}

	order, err := h.service.RemoveItem(r.Context(), orderID, itemID, requestID)
	if err != nil {
		h.handleError(w, err, requestID, "Failed to remove item")
		return
	}

	h.writeJSON(w, http.StatusOK, orderResponse(order))
}

// ChangeStatus handles POST /orders/{id}/status
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	orderID, ok := h.pathID(w, r, "id", requestID)
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", requestID)
		return
	}

	order, err := h.service.ChangeStatus(r.Context(), orderID, models.OrderStatus(req.Status), requestID)
	if err != nil {
		h.handleError(w, err, requestID, "Failed to change order status")
		return
	}

	h.writeJSON(w, http.StatusOK, orderResponse(order))
}

// AddPayment handles POST /orders/{id}/payments
func (h *Handler) AddPayment(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	orderID, ok := h.pathID(w, r, "id", requestID)
	if !ok {
		return
	}

	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", requestID)
		return
	}

	payment, err := h.service.AddPayment(r.Context(), orderID, &req, requestID)
	if err != nil {
		h.handleError(w, err, requestID, "Failed to add payment")
		return
	}

	h.writeJSON(w, http.StatusCreated, paymentResponse(payment))
}

// RepublishSettlements handles POST /settlements/republish, the manual
// retry for settlement events whose publish failed.
func (h *Handler) RepublishSettlements(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	published, err := h.service.RepublishSettlements(r.Context(), requestID)
	if err != nil {
		h.handleError(w, err, requestID, "Failed to republish settlements")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"republished": published})
}

// UnpaidOrders handles GET /orders/unpaid
func (h *Handler) UnpaidOrders(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	unpaid, err := h.service.UnpaidOrders(r.Context())
	if err != nil {
		h.handleError(w, err, requestID, "Failed to list unpaid orders")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"orders": unpaid})
}

// KDSOrders handles GET /kds, the kitchen display snapshot
func (h *Handler) KDSOrders(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	snapshots, err := h.service.ActiveOrders(r.Context())
	if err != nil {
		h.handleError(w, err, requestID, "Failed to build KDS snapshot")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"orders": snapshots})
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

// writeErrorResponse writes an error response in JSON format
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

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// OrderResponse is the wire shape of one order
type OrderResponse struct {
	ID            int64             `json:"id"`
	OrderNumber   string            `json:"order_number"`
	TableID       *int64            `json:"table_id"`
	Status        string            `json:"status"`
	CustomerName  string            `json:"customer_name"`
	CustomerPhone string            `json:"customer_phone"`
	Notes         string            `json:"notes"`
	Subtotal      string            `json:"subtotal"`
	Tax           string            `json:"tax"`
	Total         string            `json:"total"`
	Paid          string            `json:"paid"`
	Remaining     string            `json:"remaining"`
	Items         []ItemResponse    `json:"items"`
	Payments      []PaymentResponse `json:"payments"`
	CreatedAt     string            `json:"created_at"`
	StartedAt     *string           `json:"started_at"`
	CompletedAt   *string           `json:"completed_at"`
}

// ItemResponse is the wire shape of one order line
type ItemResponse struct {
	ID           int64  `json:"id"`
	MenuItemID   int64  `json:"menu_item_id"`
	MenuItemName string `json:"menu_item_name"`
	Quantity     int    `json:"quantity"`
	UnitPrice    string `json:"unit_price"`
	Subtotal     string `json:"subtotal"`
	Notes        string `json:"notes"`
}

// PaymentResponse is the wire shape of one payment
type PaymentResponse struct {
	ID            int64   `json:"id"`
	OrderID       int64   `json:"order_id"`
	PaymentMethod string  `json:"payment_method"`
	Amount        string  `json:"amount"`
	Status        string  `json:"status"`
	ConvenioCode  string  `json:"convenio_code,omitempty"`
	ConvenioName  string  `json:"convenio_name,omitempty"`
	CreatedAt     string  `json:"created_at"`
	CompletedAt   *string `json:"completed_at"`
}

func orderResponse(o *models.Order) OrderResponse {
	items := make([]ItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, ItemResponse{
			ID:           item.ID,
			MenuItemID:   item.MenuItemID,
			MenuItemName: item.MenuItemName,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice.StringFixed(2),
			Subtotal:     item.Subtotal.StringFixed(2),
			Notes:        item.Notes,
		})
	}

	payments := make([]PaymentResponse, 0, len(o.Payments))
	for i := range o.Payments {
		payments = append(payments, paymentResponse(&o.Payments[i]))
	}

	return OrderResponse{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		TableID:       o.TableID,
		Status:        string(o.Status),
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		Notes:         o.Notes,
		Subtotal:      o.Subtotal.StringFixed(2),
		Tax:           o.Tax.StringFixed(2),
		Total:         o.Total.StringFixed(2),
		Paid:          o.TotalPaid().StringFixed(2),
		Remaining:     o.RemainingAmount().StringFixed(2),
		Items:         items,
		Payments:      payments,
		CreatedAt:     o.CreatedAt.UTC().Format(time.RFC3339),
		StartedAt:     formatTime(o.StartedAt),
		CompletedAt:   formatTime(o.CompletedAt),
	}
}

func paymentResponse(p *models.Payment) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID,
		OrderID:       p.OrderID,
		PaymentMethod: string(p.Method),
		Amount:        p.Amount.StringFixed(2),
		Status:        string(p.Status),
		ConvenioCode:  p.ConvenioCode,
		ConvenioName:  p.ConvenioName,
		CreatedAt:     p.CreatedAt.UTC().Format(time.RFC3339),
		CompletedAt:   formatTime(p.CompletedAt),
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
