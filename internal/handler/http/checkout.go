package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/utafrali/storefront/internal/cart"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/validator"
)

// CheckoutHandler starts checkouts and serves the provider return page.
type CheckoutHandler struct {
	carts      *cart.Manager
	checkout   *service.CheckoutService
	reconciler *service.Reconciler
	logger     *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(carts *cart.Manager, checkout *service.CheckoutService, reconciler *service.Reconciler, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		carts:      carts,
		checkout:   checkout,
		reconciler: reconciler,
		logger:     logger,
	}
}

// BeginCheckoutRequest is the JSON request body for starting a checkout.
type BeginCheckoutRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Phone string `json:"phone" validate:"required,phone"`
}

// BeginCheckoutResponse tells the client where to send the shopper.
type BeginCheckoutResponse struct {
	RedirectURL string `json:"redirect_url"`
}

// SuccessResponse is the return page body. It is always served with 200;
// the shopper has left the provider and there is nothing to retry on their side.
type SuccessResponse struct {
	PaymentConfirmed bool          `json:"payment_confirmed"`
	OrderRecorded    bool          `json:"order_recorded"`
	State            string        `json:"state"`
	FailureKind      string        `json:"failure_kind,omitempty"`
	Message          string        `json:"message"`
	Order            *domain.Order `json:"order,omitempty"`
}

// BeginCheckout handles POST /api/v1/checkout
func (h *CheckoutHandler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	var req BeginCheckoutRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	shopper := shopperFromContext(r.Context())
	st, err := h.carts.Get(r.Context(), shopper)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	redirect, err := h.checkout.BeginCheckout(r.Context(), shopper, st.Snapshot(), domain.Contact{
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: BeginCheckoutResponse{RedirectURL: redirect}})
}

// Success handles GET /checkout/success?session_id=&email=&mobile=
func (h *CheckoutHandler) Success(w http.ResponseWriter, r *http.Request) {
	shopper := shopperFromContext(r.Context())
	params := service.ParseReturnQuery(shopper, r.URL.Query())

	// The run is shared with concurrent visits and must not die with this one.
	ctx := context.WithoutCancel(r.Context())
	out := h.reconciler.Reconcile(ctx, params)

	resp := SuccessResponse{
		PaymentConfirmed: out.PaymentConfirmed(),
		OrderRecorded:    out.OrderRecorded(),
		State:            string(out.State),
		FailureKind:      string(out.Kind),
		Message:          successMessage(out),
	}
	// Order details, contact included, only go to the session that placed it.
	if out.Order.OwnedBy(shopper) {
		resp.Order = out.Order
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: resp})
}

func successMessage(out service.Outcome) string {
	switch {
	case out.OrderRecorded():
		return "Thank you, your order has been placed."
	case out.Kind.NeedsFollowUp():
		return "We received your payment but could not finish recording your order. Our team has been notified and will contact you."
	case out.Kind == service.KindPaymentIncomplete || out.Kind == service.KindSessionExpired:
		return "Your payment was not completed. Your cart is still saved."
	default:
		return "We could not confirm this checkout. Your cart is still saved."
	}
}
