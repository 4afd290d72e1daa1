package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/infinitelocus/canteen/internal/core/domain"
	"github.com/infinitelocus/canteen/internal/core/service"
	"github.com/infinitelocus/canteen/internal/port"
)

type HTTPHandler struct {
	orders  *service.OrderService
	catalog port.Catalog
	cache   port.CacheRepository
	log     zerolog.Logger
}

func NewHTTPHandler(orders *service.OrderService, catalog port.Catalog, cache port.CacheRepository, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		orders:  orders,
		catalog: catalog,
		cache:   cache,
		log:     log.With().Str("component", "http").Logger(),
	}
}

// Routes mounts the API surface under /api.
func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HealthCheck)

		r.Get("/menu", h.ListMenu)
		r.Post("/menu", h.CreateMenuItem)
		r.Get("/menu/{id}", h.GetMenuItem)
		r.Put("/menu/{id}", h.UpdateMenuItem)
		r.Delete("/menu/{id}", h.DeleteMenuItem)

		r.Post("/orders", h.PlaceOrder)
		r.Get("/orders/active", h.GetActiveOrder)
		r.Get("/orders/history", h.GetOrderHistory)
		r.Get("/orders/{orderId}", h.GetOrder)
		r.Post("/orders/{orderId}/cancel", h.CancelOrder)
		r.Put("/orders/{orderId}/status", h.UpdateOrderStatus)
	})

	return r
}

type placeOrderRequest struct {
	RequestID  string `json:"request_id,omitempty"`
	UserID     string `json:"user_id"`
	Items      []struct {
		ItemID   string `json:"item_id"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
	TTLSeconds int `json:"ttl_seconds,omitempty"`
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	items := make([]service.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, service.LineItem{ItemID: it.ItemID, Quantity: it.Quantity})
	}

	order, err := h.orders.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		RequestID: req.RequestID,
		UserID:    req.UserID,
		Items:     items,
		TTL:       time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		h.writeOrderError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

type cancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *HTTPHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
	}

	order, err := h.orders.CancelOrder(r.Context(), chi.URLParam(r, "orderId"), req.Reason, service.ActorUser)
	if err != nil {
		h.writeOrderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (h *HTTPHandler) GetActiveOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetActiveOrder(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no active order")
			return
		}
		h.writeOrderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (h *HTTPHandler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	orders, err := h.orders.GetOrderHistory(r.Context(), q.Get("userId"), page, limit)
	if err != nil {
		h.writeOrderError(w, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}

	writeJSON(w, http.StatusOK, orders)
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeOrderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

func (h *HTTPHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "status is required")
		return
	}

	order, err := h.orders.UpdateOrderStatus(r.Context(), chi.URLParam(r, "orderId"), domain.OrderStatus(req.Status), req.Notes)
	if err != nil {
		h.writeOrderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type conflictResponse struct {
	Error   string        `json:"error"`
	Message string        `json:"message"`
	Order   *domain.Order `json:"order"`
}

// writeOrderError maps the service's error taxonomy onto HTTP statuses.
// An ActiveOrderError carries the blocking order so the client can redirect
// to it instead of retrying.
func (h *HTTPHandler) writeOrderError(w http.ResponseWriter, err error) {
	var active *domain.ActiveOrderError
	var stock *domain.InsufficientStockError

	switch {
	case errors.As(err, &active):
		writeJSON(w, http.StatusConflict, conflictResponse{
			Error:   "active_order_exists",
			Message: "active order already exists",
			Order:   active.Existing,
		})
	case errors.As(err, &stock):
		writeError(w, http.StatusBadRequest, "insufficient_stock", stock.Error())
	case errors.Is(err, domain.ErrInvalidOrder), errors.Is(err, domain.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrNotCancellable):
		writeError(w, http.StatusBadRequest, "not_cancellable", "order is not cancellable")
	case errors.Is(err, domain.ErrDuplicateRequest):
		writeError(w, http.StatusConflict, "duplicate_request", "request was already processed")
	case errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "not_found", "order not found")
	case errors.Is(err, domain.ErrItemNotFound):
		writeError(w, http.StatusNotFound, "not_found", "menu item not found")
	default:
		h.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
