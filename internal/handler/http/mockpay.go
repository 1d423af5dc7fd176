package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/provider"
	mockprovider "github.com/utafrali/storefront/internal/provider/mock"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
)

// MockPayHandler stands in for the hosted payment page in development.
type MockPayHandler struct {
	provider *mockprovider.Provider
	logger   *slog.Logger
}

// NewMockPayHandler creates the mock payment page handler.
func NewMockPayHandler(p *mockprovider.Provider, logger *slog.Logger) *MockPayHandler {
	return &MockPayHandler{provider: p, logger: logger}
}

// Pay handles GET /mock-provider/sessions/{id}/pay. It marks the session
// paid and sends the shopper to the success URL.
func (h *MockPayHandler) Pay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, err := h.provider.Complete(id)
	if err != nil {
		if errors.Is(err, provider.ErrSessionNotFound) {
			err = apperrors.NotFound("checkout session", id)
		} else {
			err = apperrors.Gone(err.Error())
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.logger.InfoContext(r.Context(), "mock payment completed",
		slog.String("checkout_session_id", sess.ID),
		slog.String("payment_reference", sess.PaymentReference),
	)
	http.Redirect(w, r, sess.SuccessURL, http.StatusSeeOther)
}
