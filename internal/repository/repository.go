package repository

import (
	"context"

	"github.com/utafrali/storefront/internal/domain"
)

// CartCache mirrors a shopper session's cart so a fresh store can rebuild it.
type CartCache interface {
	// Load returns the mirrored snapshot, or an empty snapshot if none is stored.
	Load(ctx context.Context, shopperSessionID string) (domain.CartSnapshot, error)

	// Save overwrites the mirrored snapshot.
	Save(ctx context.Context, shopperSessionID string, snapshot domain.CartSnapshot) error

	// Delete removes the mirrored snapshot.
	Delete(ctx context.Context, shopperSessionID string) error
}

// BackupCache holds the cart snapshot taken when checkout began.
type BackupCache interface {
	// Get returns the backup, or (nil, nil) when none exists.
	Get(ctx context.Context, shopperSessionID string) (*domain.CartBackup, error)

	// Put overwrites the backup for the session.
	Put(ctx context.Context, shopperSessionID string, backup *domain.CartBackup) error

	// Delete removes the backup. Deleting a missing backup is not an error.
	Delete(ctx context.Context, shopperSessionID string) error
}

// OrderRepository persists orders keyed by payment reference.
type OrderRepository interface {
	// CreateOrder inserts the order. When an order with the same payment
	// reference already exists, that order is returned with created=false.
	CreateOrder(ctx context.Context, order *domain.Order) (*domain.Order, bool, error)

	// GetByPaymentReference returns the order for the reference, or an
	// apperrors.ErrNotFound error.
	GetByPaymentReference(ctx context.Context, ref string) (*domain.Order, error)

	// GetByID returns the order by id, or an apperrors.ErrNotFound error.
	GetByID(ctx context.Context, id string) (*domain.Order, error)
}

// ProductRepository reads the catalog.
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}
