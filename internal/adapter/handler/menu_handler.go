package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/infinitelocus/canteen/internal/core/domain"
)

type menuItemRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Price       *float64 `json:"price"`
	Stock       *int     `json:"stock"`
	ImageURL    string   `json:"image_url,omitempty"`
	Available   *bool    `json:"available,omitempty"`
}

func (req *menuItemRequest) validate() string {
	switch {
	case req.Name == "":
		return "name is required"
	case req.Price == nil || *req.Price < 0:
		return "price must be a non-negative number"
	case req.Stock == nil || *req.Stock < 0:
		return "stock must be a non-negative integer"
	default:
		return ""
	}
}

func (h *HTTPHandler) CreateMenuItem(w http.ResponseWriter, r *http.Request) {
	var req menuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", msg)
		return
	}

	now := time.Now().UTC()
	item := &domain.MenuItem{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       *req.Price,
		Stock:       *req.Stock,
		ImageURL:    req.ImageURL,
		Available:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if item.Category == "" {
		item.Category = "General"
	}
	if req.Available != nil {
		item.Available = *req.Available
	}

	if err := h.catalog.CreateMenuItem(r.Context(), item); err != nil {
		h.log.Error().Err(err).Msg("menu item create failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	h.syncStockMirror(r, item.ID, item.Stock)
	writeJSON(w, http.StatusCreated, item)
}

func (h *HTTPHandler) ListMenu(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.ListMenuItems(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("menu list failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if items == nil {
		items = []domain.MenuItem{}
	}

	writeJSON(w, http.StatusOK, items)
}

func (h *HTTPHandler) GetMenuItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.catalog.GetMenuItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "menu item not found")
			return
		}
		h.log.Error().Err(err).Msg("menu item fetch failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, item)
}

func (h *HTTPHandler) UpdateMenuItem(w http.ResponseWriter, r *http.Request) {
	var req menuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", msg)
		return
	}

	id := chi.URLParam(r, "id")
	current, err := h.catalog.GetMenuItem(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "menu item not found")
			return
		}
		h.log.Error().Err(err).Msg("menu item fetch failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	item := &domain.MenuItem{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       *req.Price,
		Stock:       *req.Stock,
		ImageURL:    req.ImageURL,
		Available:   current.Available,
		CreatedAt:   current.CreatedAt,
		UpdatedAt:   time.Now().UTC(),
	}
	if item.Category == "" {
		item.Category = current.Category
	}
	if req.Available != nil {
		item.Available = *req.Available
	}

	if err := h.catalog.UpdateMenuItem(r.Context(), item); err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "menu item not found")
			return
		}
		h.log.Error().Err(err).Msg("menu item update failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	h.syncStockMirror(r, item.ID, item.Stock)
	writeJSON(w, http.StatusOK, item)
}

func (h *HTTPHandler) DeleteMenuItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.catalog.DeleteMenuItem(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "menu item not found")
			return
		}
		h.log.Error().Err(err).Msg("menu item delete failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	if err := h.cache.DeleteStock(r.Context(), id); err != nil {
		h.log.Warn().Err(err).Str("item_id", id).Msg("stock mirror delete failed")
	}

	w.WriteHeader(http.StatusNoContent)
}

// syncStockMirror refreshes the cached stock value after a catalog write.
// Best effort: the ledger stays authoritative if the cache is down.
func (h *HTTPHandler) syncStockMirror(r *http.Request, itemID string, stock int) {
	if err := h.cache.SetStock(r.Context(), itemID, stock); err != nil {
		h.log.Warn().Err(err).Str("item_id", itemID).Msg("stock mirror sync failed")
	}
}
