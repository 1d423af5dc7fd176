// Package mock is an in-memory hosted checkout provider for development and
// tests.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/internal/provider"
)

// Provider keeps sessions in memory. Sessions start open and change only
// through Complete and Expire.
type Provider struct {
	baseURL string

	mu       sync.RWMutex
	sessions map[string]*provider.Session
}

// NewProvider creates a mock provider whose checkout URLs point below
// baseURL at /mock-provider/sessions/{id}/pay.
func NewProvider(baseURL string) *Provider {
	return &Provider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		sessions: make(map[string]*provider.Session),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "mock"
}

// CreateSession records an open session.
func (p *Provider) CreateSession(_ context.Context, input *provider.CreateSessionInput) (*provider.Session, error) {
	if len(input.LineItems) == 0 {
		return nil, fmt.Errorf("mock provider: no line items")
	}

	var total int64
	for _, li := range input.LineItems {
		total += li.UnitAmount * int64(li.Quantity)
	}

	id := "cs_mock_" + uuid.NewString()
	sess := &provider.Session{
		ID:              id,
		URL:             fmt.Sprintf("%s/mock-provider/sessions/%s/pay", p.baseURL, id),
		Status:          provider.SessionStatusOpen,
		PaymentStatus:   provider.PaymentStatusUnpaid,
		AmountTotal:     total,
		Currency:        input.Currency,
		ClientReference: input.ClientReference,
		SuccessURL:      strings.ReplaceAll(input.SuccessURL, provider.SessionIDPlaceholder, id),
	}

	p.mu.Lock()
	p.sessions[id] = sess
	p.mu.Unlock()

	cp := *sess
	return &cp, nil
}

// GetSession returns a copy of the session.
func (p *Provider) GetSession(_ context.Context, id string) (*provider.Session, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	sess, ok := p.sessions[id]
	if !ok {
		return nil, provider.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

// Complete marks an open session paid. Completing a completed session is a
// no-op that returns the same payment reference.
func (p *Provider) Complete(id string) (*provider.Session, error) {
	return p.CompleteWithReference(id, "")
}

// CompleteWithReference is Complete with a caller-chosen payment reference.
// An empty ref generates one.
func (p *Provider) CompleteWithReference(id, ref string) (*provider.Session, error) {
	if ref == "" {
		ref = "pi_mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	sess, ok := p.sessions[id]
	if !ok {
		return nil, provider.ErrSessionNotFound
	}
	switch sess.Status {
	case provider.SessionStatusExpired:
		return nil, fmt.Errorf("mock provider: session %s expired", id)
	case provider.SessionStatusOpen:
		sess.Status = provider.SessionStatusComplete
		sess.PaymentStatus = provider.PaymentStatusPaid
		sess.PaymentReference = ref
	}
	cp := *sess
	return &cp, nil
}

// Expire marks an open session expired.
func (p *Provider) Expire(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	sess, ok := p.sessions[id]
	if !ok {
		return provider.ErrSessionNotFound
	}
	if sess.Status == provider.SessionStatusOpen {
		sess.Status = provider.SessionStatusExpired
	}
	return nil
}
