package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/middleware"
)

// ServiceName labels request metrics and spans.
const ServiceName = "storefront"

// RouterConfig holds the handlers and settings the router mounts.
type RouterConfig struct {
	Cart     *CartHandler
	Checkout *CheckoutHandler
	Orders   *OrderHandler
	Health   *health.Handler
	// MockPay is mounted only when the mock provider is in use.
	MockPay *MockPayHandler
	// SecureCookies sets the Secure flag on the shopper session cookie.
	SecureCookies bool
	// CheckoutRPS and CheckoutBurst limit, per client IP, the endpoints that
	// reach the payment provider or the order store. Zero RPS disables it.
	CheckoutRPS   float64
	CheckoutBurst int
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(cfg RouterConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.PrometheusMetrics(ServiceName))

	// Health check and metrics endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(ShopperSession(cfg.SecureCookies))
		r.Use(middleware.RequestLogger(logger))

		r.Route("/api/v1/cart", func(r chi.Router) {
			r.Use(ContentTypeJSON)

			r.Get("/", cfg.Cart.GetCart)
			r.Delete("/", cfg.Cart.ClearCart)
			r.Post("/items", cfg.Cart.AddItem)
			r.Post("/items/{productId}/increment", cfg.Cart.IncrementItem)
			r.Post("/items/{productId}/decrement", cfg.Cart.DecrementItem)
			r.Delete("/items/{productId}", cfg.Cart.RemoveItem)
		})

		r.Group(func(r chi.Router) {
			if cfg.CheckoutRPS > 0 {
				r.Use(middleware.RateLimit(cfg.CheckoutRPS, cfg.CheckoutBurst, logger))
			}
			r.With(ContentTypeJSON).Post("/api/v1/checkout", cfg.Checkout.BeginCheckout)
			r.Get("/checkout/success", cfg.Checkout.Success)
			r.Get("/api/v1/orders/{paymentReference}", cfg.Orders.GetByPaymentReference)
		})
	})

	if cfg.MockPay != nil {
		r.Get("/mock-provider/sessions/{id}/pay", cfg.MockPay.Pay)
	}

	return r
}
