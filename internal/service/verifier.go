package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/provider"
)

// Verifier confirms with the provider that a checkout session was paid. It
// never trusts anything the shopper's browser says about the payment.
type Verifier struct {
	provider provider.Provider
	logger   *slog.Logger
}

// NewVerifier creates a session verifier.
func NewVerifier(p provider.Provider, logger *slog.Logger) *Verifier {
	return &Verifier{provider: p, logger: logger}
}

// Verify fetches the session and returns its confirmation if it is complete
// and paid. Calling it twice for the same session returns equal results.
func (v *Verifier) Verify(ctx context.Context, providerSessionID string) (*domain.PaymentConfirmation, error) {
	providerSessionID = strings.TrimSpace(providerSessionID)
	if providerSessionID == "" {
		return nil, domain.ErrMissingSession
	}

	sess, err := v.provider.GetSession(ctx, providerSessionID)
	if err != nil {
		if errors.Is(err, provider.ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, providerSessionID)
		}
		v.logger.WarnContext(ctx, "payment provider lookup failed",
			slog.String("checkout_session_id", providerSessionID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}

	switch {
	case sess.Status == provider.SessionStatusExpired:
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionExpired, providerSessionID)
	case !sess.Paid():
		return nil, fmt.Errorf("%w: status=%s payment_status=%s", domain.ErrPaymentIncomplete, sess.Status, sess.PaymentStatus)
	case sess.PaymentReference == "":
		return nil, fmt.Errorf("%w: paid session %s has no payment reference", domain.ErrProviderUnavailable, providerSessionID)
	}

	return &domain.PaymentConfirmation{
		ProviderSessionID: sess.ID,
		PaymentReference:  sess.PaymentReference,
		AmountAuthorized:  sess.AmountTotal,
		Currency:          sess.Currency,
		Status:            domain.PaymentStatusPaid,
		ClientReference:   sess.ClientReference,
	}, nil
}
