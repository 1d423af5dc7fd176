package provider

import (
	"context"
	"errors"
)

// Session status values as reported by the provider.
const (
	SessionStatusOpen     = "open"
	SessionStatusComplete = "complete"
	SessionStatusExpired  = "expired"
)

// Payment status values of a session.
const (
	PaymentStatusPaid   = "paid"
	PaymentStatusUnpaid = "unpaid"
)

// SessionIDPlaceholder is substituted by the provider in the success URL
// with the id of the session the shopper paid through.
const SessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

var (
	// ErrSessionNotFound means the provider has no session with that id.
	ErrSessionNotFound = errors.New("provider: session not found")
	// ErrUnavailable means the provider could not be reached or failed on
	// its side. Callers may retry.
	ErrUnavailable = errors.New("provider: unavailable")
)

// LineItem is one priced line of the hosted checkout page.
type LineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int
	ImageURL   string
}

// CreateSessionInput holds the parameters of a new hosted checkout session.
type CreateSessionInput struct {
	LineItems       []LineItem
	Currency        string
	SuccessURL      string
	CancelURL       string
	CustomerEmail   string
	ClientReference string
	// IdempotencyKey lets the provider deduplicate retried creates.
	IdempotencyKey string
}

// Session is the provider's record of a hosted checkout session.
type Session struct {
	ID               string
	URL              string
	Status           string
	PaymentStatus    string
	PaymentReference string
	AmountTotal      int64
	Currency         string
	ClientReference  string
	SuccessURL       string
}

// Paid reports whether the session completed with a captured payment.
func (s *Session) Paid() bool {
	return s.Status == SessionStatusComplete && s.PaymentStatus == PaymentStatusPaid
}

// Provider defines the interface for hosted checkout integrations.
type Provider interface {
	// Name returns the provider name (e.g., "mock", "hosted").
	Name() string

	// CreateSession opens a hosted checkout session and returns it with the
	// URL the shopper should be sent to.
	CreateSession(ctx context.Context, input *CreateSessionInput) (*Session, error)

	// GetSession fetches a session by id. It returns ErrSessionNotFound for
	// unknown ids and wraps ErrUnavailable for operational failures.
	GetSession(ctx context.Context, id string) (*Session, error)
}
