package domain

import (
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Checkout and reconciliation sentinels. Match them with errors.Is.
var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrPaymentProvider     = errors.New("payment provider error")
	ErrMissingSession      = errors.New("missing checkout session id")
	ErrSessionNotFound     = errors.New("checkout session not found")
	ErrSessionExpired      = errors.New("checkout session expired")
	ErrPaymentIncomplete   = errors.New("payment not completed")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrNoCartBackup        = errors.New("no cart backup")
	ErrOrderWriteConflict  = errors.New("order write conflict")
)

// EmptyCartError is returned when checkout is attempted with nothing in the cart.
func EmptyCartError() *apperrors.AppError {
	return apperrors.New("EMPTY_CART", "cart is empty", http.StatusBadRequest, ErrEmptyCart)
}

// PaymentProviderError wraps a failure to create a provider session. The
// shopper may retry.
func PaymentProviderError(cause error) *apperrors.AppError {
	return apperrors.New("PAYMENT_PROVIDER_ERROR",
		"could not start payment, please try again",
		http.StatusBadGateway,
		fmt.Errorf("%w: %w", ErrPaymentProvider, cause),
	)
}
