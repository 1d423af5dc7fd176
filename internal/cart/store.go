// Package cart holds the in-memory cart of each shopper session, mirrored to
// the cart cache on every change.
package cart

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Observer is called with the new snapshot after every committed change.
type Observer func(domain.CartSnapshot)

// Store is the cart of one shopper session. All mutations are serialized.
// Memory and the cache mirror never diverge: a failed mirror write rolls the
// change back.
type Store struct {
	sessionID string
	cache     repository.CartCache
	logger    *slog.Logger
	now       func() time.Time

	mu         sync.Mutex
	snapshot   domain.CartSnapshot
	observers  map[int]Observer
	nextObsID  int
	lastMirror time.Time
}

// NewStore creates a store seeded with initial, which is usually the mirror
// read back from the cache.
func NewStore(sessionID string, initial domain.CartSnapshot, cache repository.CartCache, logger *slog.Logger) *Store {
	return &Store{
		sessionID: sessionID,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
		snapshot:  initial.Clone(),
		observers: make(map[int]Observer),
	}
}

// SessionID returns the shopper session this cart belongs to.
func (s *Store) SessionID() string {
	return s.sessionID
}

// Snapshot returns a copy of the current cart.
func (s *Store) Snapshot() domain.CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Clone()
}

// Subscribe registers fn for change notifications and returns a function that
// removes it.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// AddItem adds qty units of product. An existing line for the product keeps
// its original unit price and has its quantity increased.
func (s *Store) AddItem(ctx context.Context, product *domain.Product, qty int) (domain.CartSnapshot, error) {
	if product == nil || product.ID == "" {
		return domain.CartSnapshot{}, apperrors.InvalidInput("product is required")
	}
	if qty < 1 {
		return domain.CartSnapshot{}, apperrors.InvalidInput("quantity must be greater than 0")
	}
	if qty > domain.MaxQuantityPerItem {
		return domain.CartSnapshot{}, apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", domain.MaxQuantityPerItem))
	}
	if product.Price < 0 {
		return domain.CartSnapshot{}, apperrors.InvalidInput("price must not be negative")
	}

	snap, err := s.mutate(ctx, func(next *domain.CartSnapshot) error {
		if i := next.Find(product.ID); i >= 0 {
			newQty := next.Lines[i].Quantity + qty
			if newQty > domain.MaxQuantityPerItem {
				return apperrors.InvalidInput(fmt.Sprintf("combined quantity must not exceed %d", domain.MaxQuantityPerItem))
			}
			next.Lines[i].Quantity = newQty
			return nil
		}
		if len(next.Lines) >= domain.MaxItemsPerCart {
			return apperrors.InvalidInput(fmt.Sprintf("cart must not contain more than %d items", domain.MaxItemsPerCart))
		}
		next.Lines = append(next.Lines, product.Line(qty))
		return nil
	})
	if err != nil {
		return domain.CartSnapshot{}, err
	}

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("shopper_session", s.sessionID),
		slog.String("product_id", product.ID),
		slog.Int("quantity", qty),
	)
	return snap, nil
}

// RemoveItem deletes the line for productID.
func (s *Store) RemoveItem(ctx context.Context, productID string) (domain.CartSnapshot, error) {
	return s.mutate(ctx, func(next *domain.CartSnapshot) error {
		i := next.Find(productID)
		if i < 0 {
			return apperrors.NotFound("cart item", productID)
		}
		next.Lines = append(next.Lines[:i], next.Lines[i+1:]...)
		return nil
	})
}

// IncrementQty adds one unit to the line for productID.
func (s *Store) IncrementQty(ctx context.Context, productID string) (domain.CartSnapshot, error) {
	return s.mutate(ctx, func(next *domain.CartSnapshot) error {
		i := next.Find(productID)
		if i < 0 {
			return apperrors.NotFound("cart item", productID)
		}
		if next.Lines[i].Quantity >= domain.MaxQuantityPerItem {
			return apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", domain.MaxQuantityPerItem))
		}
		next.Lines[i].Quantity++
		return nil
	})
}

// DecrementQty removes one unit from the line for productID. The quantity
// never drops below 1; removing a line is RemoveItem's job.
func (s *Store) DecrementQty(ctx context.Context, productID string) (domain.CartSnapshot, error) {
	return s.mutate(ctx, func(next *domain.CartSnapshot) error {
		i := next.Find(productID)
		if i < 0 {
			return apperrors.NotFound("cart item", productID)
		}
		if next.Lines[i].Quantity > 1 {
			next.Lines[i].Quantity--
		}
		return nil
	})
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.mutate(ctx, func(next *domain.CartSnapshot) error {
		next.Lines = []domain.CartLine{}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "cart cleared", slog.String("shopper_session", s.sessionID))
	return nil
}

// mutate applies fn to a copy of the cart, mirrors the result, and only then
// installs it and notifies observers.
func (s *Store) mutate(ctx context.Context, fn func(next *domain.CartSnapshot) error) (domain.CartSnapshot, error) {
	s.mu.Lock()

	next := s.snapshot.Clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return domain.CartSnapshot{}, err
	}

	if err := s.persist(ctx, next); err != nil {
		s.mu.Unlock()
		s.logger.ErrorContext(ctx, "failed to mirror cart, change rolled back",
			slog.String("shopper_session", s.sessionID),
			slog.String("error", err.Error()),
		)
		return domain.CartSnapshot{}, fmt.Errorf("mirror cart: %w", err)
	}

	s.snapshot = next
	s.lastMirror = s.now()
	observers := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, obs := range observers {
		obs(next.Clone())
	}
	return next.Clone(), nil
}

func (s *Store) mirroredAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMirror
}

func (s *Store) isEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.IsEmpty()
}

func (s *Store) persist(ctx context.Context, snap domain.CartSnapshot) error {
	if len(snap.Lines) == 0 {
		return s.cache.Delete(ctx, s.sessionID)
	}
	return s.cache.Save(ctx, s.sessionID, snap)
}
