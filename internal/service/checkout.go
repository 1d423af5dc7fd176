package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/provider"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/validator"
)

// Return query parameters appended to the success URL.
const (
	QuerySessionID = "session_id"
	QueryEmail     = "email"
	QueryMobile    = "mobile"
)

// CheckoutConfig holds the storefront-facing settings of the initiator.
type CheckoutConfig struct {
	// PublicBaseURL is the origin shoppers reach the storefront on. Return
	// URLs and relative product images are resolved against it.
	PublicBaseURL string
	Currency      string
}

// CheckoutService starts hosted checkout sessions.
type CheckoutService struct {
	provider provider.Provider
	backups  repository.BackupCache
	events   EventPublisher
	logger   *slog.Logger
	cfg      CheckoutConfig
	now      func() time.Time
}

// NewCheckoutService creates a new checkout initiator.
func NewCheckoutService(p provider.Provider, backups repository.BackupCache, events EventPublisher, logger *slog.Logger, cfg CheckoutConfig) *CheckoutService {
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	if cfg.Currency == "" {
		cfg.Currency = "sar"
	}
	return &CheckoutService{
		provider: p,
		backups:  backups,
		events:   events,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// BeginCheckout creates a provider session for the snapshot and returns the
// URL to redirect the shopper to. The cart backup is written before the URL
// is returned; the cart itself is left untouched.
func (s *CheckoutService) BeginCheckout(ctx context.Context, shopperSessionID string, snapshot domain.CartSnapshot, contact domain.Contact) (string, error) {
	if shopperSessionID == "" {
		return "", apperrors.InvalidInput("shopper session is required")
	}
	if snapshot.IsEmpty() {
		checkoutInitiated.WithLabelValues("empty_cart").Inc()
		return "", domain.EmptyCartError()
	}
	if err := validator.Validate(contact); err != nil {
		checkoutInitiated.WithLabelValues("invalid_contact").Inc()
		return "", err
	}

	snapshot = snapshot.Clone()
	input := &provider.CreateSessionInput{
		LineItems:       s.lineItems(snapshot),
		Currency:        s.cfg.Currency,
		SuccessURL:      s.successURL(contact),
		CancelURL:       s.cfg.PublicBaseURL + "/cart",
		CustomerEmail:   contact.Email,
		ClientReference: shopperSessionID,
		IdempotencyKey:  uuid.NewString(),
	}

	sess, err := s.provider.CreateSession(ctx, input)
	if err != nil {
		checkoutInitiated.WithLabelValues("provider_error").Inc()
		s.logger.ErrorContext(ctx, "failed to create checkout session",
			slog.String("provider", s.provider.Name()),
			slog.String("error", err.Error()),
		)
		return "", domain.PaymentProviderError(err)
	}

	backup := &domain.CartBackup{
		Snapshot:          snapshot,
		CheckoutSessionID: sess.ID,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.backups.Put(ctx, shopperSessionID, backup); err != nil {
		checkoutInitiated.WithLabelValues("backup_failed").Inc()
		s.logger.ErrorContext(ctx, "failed to write cart backup, aborting checkout",
			slog.String("checkout_session_id", sess.ID),
			slog.String("error", err.Error()),
		)
		return "", apperrors.New("CHECKOUT_UNAVAILABLE",
			"checkout is temporarily unavailable, please try again",
			http.StatusServiceUnavailable,
			fmt.Errorf("%w: write cart backup: %w", apperrors.ErrServiceUnavail, err),
		)
	}

	checkoutInitiated.WithLabelValues("ok").Inc()

	if err := s.events.PublishCheckoutInitiated(ctx, event.CheckoutInitiatedData{
		ShopperSession:    shopperSessionID,
		CheckoutSessionID: sess.ID,
		Provider:          s.provider.Name(),
		ItemCount:         snapshot.TotalQuantity(),
		TotalPrice:        snapshot.TotalPrice(),
		Currency:          s.cfg.Currency,
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish checkout.initiated event",
			slog.String("checkout_session_id", sess.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "checkout session created",
		slog.String("checkout_session_id", sess.ID),
		slog.Int("item_count", snapshot.TotalQuantity()),
		slog.Int64("total_price", snapshot.TotalPrice()),
	)

	return sess.URL, nil
}

func (s *CheckoutService) lineItems(snapshot domain.CartSnapshot) []provider.LineItem {
	items := make([]provider.LineItem, len(snapshot.Lines))
	for i, l := range snapshot.Lines {
		items[i] = provider.LineItem{
			Name:       l.Name.Default(),
			UnitAmount: l.UnitPrice,
			Quantity:   l.Quantity,
			ImageURL:   s.absolute(l.ImageRef),
		}
	}
	return items
}

// successURL keeps the session id placeholder unescaped so the provider can
// substitute it.
func (s *CheckoutService) successURL(contact domain.Contact) string {
	q := url.Values{}
	q.Set(QueryEmail, contact.Email)
	q.Set(QueryMobile, contact.Phone)
	return s.cfg.PublicBaseURL + "/checkout/success?" + QuerySessionID + "=" + provider.SessionIDPlaceholder + "&" + q.Encode()
}

func (s *CheckoutService) absolute(ref string) string {
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return s.cfg.PublicBaseURL + "/" + strings.TrimLeft(ref, "/")
}
