package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/cart"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/validator"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	carts    *cart.Manager
	products repository.ProductRepository
	logger   *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(carts *cart.Manager, products repository.ProductRepository, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		carts:    carts,
		products: products,
		logger:   logger,
	}
}

// --- Request / response DTOs ---

// AddItemRequest is the JSON request body for adding an item to the cart.
// The price is read from the catalog, never from the client.
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gte=1,lte=100"`
}

// CartResponse is a cart with its derived totals.
type CartResponse struct {
	Items         []domain.CartLine `json:"items"`
	TotalQuantity int               `json:"total_quantity"`
	TotalPrice    int64             `json:"total_price"`
}

func newCartResponse(s domain.CartSnapshot) CartResponse {
	items := s.Lines
	if items == nil {
		items = []domain.CartLine{}
	}
	return CartResponse{
		Items:         items,
		TotalQuantity: s.TotalQuantity(),
		TotalPrice:    s.TotalPrice(),
	}
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	st, err := h.carts.Get(r.Context(), shopperFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newCartResponse(st.Snapshot())})
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	product, err := h.products.GetByID(r.Context(), req.ProductID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	st, err := h.carts.Get(r.Context(), shopperFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	snap, err := st.AddItem(r.Context(), product, req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newCartResponse(snap)})
}

// IncrementItem handles POST /api/v1/cart/items/{productId}/increment
func (h *CartHandler) IncrementItem(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, (*cart.Store).IncrementQty)
}

// DecrementItem handles POST /api/v1/cart/items/{productId}/decrement
func (h *CartHandler) DecrementItem(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, (*cart.Store).DecrementQty)
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, (*cart.Store).RemoveItem)
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), shopperFromContext(r.Context())); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// lineOp is a line-level cart.Store method.
type lineOp func(st *cart.Store, ctx context.Context, productID string) (domain.CartSnapshot, error)

func (h *CartHandler) mutateLine(w http.ResponseWriter, r *http.Request, op lineOp) {
	productID := chi.URLParam(r, "productId")
	if productID == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("productId is required"), h.logger)
		return
	}

	st, err := h.carts.Get(r.Context(), shopperFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	snap, err := op(st, r.Context(), productID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newCartResponse(snap)})
}
