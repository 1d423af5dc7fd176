package service

import (
	"context"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
)

// EventPublisher is satisfied by *event.Producer. Publishing is best effort:
// services log failures and carry on.
type EventPublisher interface {
	PublishCheckoutInitiated(ctx context.Context, data event.CheckoutInitiatedData) error
	PublishOrderCreated(ctx context.Context, order *domain.Order) error
	PublishReconciliationFailed(ctx context.Context, data event.ReconciliationFailedData) error
}

// CartClearer empties a shopper session's cart. *cart.Manager satisfies it.
type CartClearer interface {
	Clear(ctx context.Context, shopperSessionID string) error
}
