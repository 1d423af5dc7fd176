package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
)

// OrderHandler serves recorded orders to the shopper session that placed them.
type OrderHandler struct {
	orders repository.OrderRepository
	logger *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(orders repository.OrderRepository, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// GetByPaymentReference handles GET /api/v1/orders/{paymentReference}
func (h *OrderHandler) GetByPaymentReference(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "paymentReference")

	order, err := h.orders.GetByPaymentReference(r.Context(), ref)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	// Someone else's order looks the same as a missing one.
	if !order.OwnedBy(shopperFromContext(r.Context())) {
		httputil.WriteError(w, r, apperrors.NotFound("order", ref), h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}
