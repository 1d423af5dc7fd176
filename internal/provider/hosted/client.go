// Package hosted is a client for a Stripe-compatible hosted checkout API.
package hosted

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/utafrali/storefront/internal/provider"
	"github.com/utafrali/storefront/pkg/httpclient"
)

const sessionsPath = "/v1/checkout/sessions"

// HTTPDoer is the transport used by the client. *httpclient.CircuitBreakerClient
// satisfies it.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// ClientConfig is the HTTP client configuration for provider calls. The
// transport never retries: a failed lookup is reported to the caller, who
// decides whether the shopper tries again.
func ClientConfig() httpclient.Config {
	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	return cfg
}

// Provider talks to the hosted checkout API over HTTP.
type Provider struct {
	client    HTTPDoer
	baseURL   string
	secretKey string
}

// NewProvider creates a hosted checkout client. baseURL is the API root, for
// example https://api.stripe.com.
func NewProvider(client HTTPDoer, baseURL, secretKey string) *Provider {
	return &Provider{
		client:    client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "hosted"
}

// sessionResponse is the subset of the checkout session object we read.
type sessionResponse struct {
	ID                string `json:"id"`
	URL               string `json:"url"`
	Status            string `json:"status"`
	PaymentStatus     string `json:"payment_status"`
	PaymentIntent     string `json:"payment_intent"`
	AmountTotal       int64  `json:"amount_total"`
	Currency          string `json:"currency"`
	ClientReferenceID string `json:"client_reference_id"`
	SuccessURL        string `json:"success_url"`
}

func (r *sessionResponse) toSession() *provider.Session {
	return &provider.Session{
		ID:               r.ID,
		URL:              r.URL,
		Status:           r.Status,
		PaymentStatus:    r.PaymentStatus,
		PaymentReference: r.PaymentIntent,
		AmountTotal:      r.AmountTotal,
		Currency:         r.Currency,
		ClientReference:  r.ClientReferenceID,
		SuccessURL:       r.SuccessURL,
	}
}

// CreateSession opens a payment-mode checkout session.
func (p *Provider) CreateSession(ctx context.Context, input *provider.CreateSessionInput) (*provider.Session, error) {
	form := encodeCreateSession(input)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+sessionsPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if input.IdempotencyKey != "" {
		req.Header.Set(httpclient.IdempotencyKeyHeader, input.IdempotencyKey)
	}

	sess, err := p.do(req)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	if sess.URL == "" {
		return nil, fmt.Errorf("create checkout session: response has no redirect url")
	}
	return sess, nil
}

// GetSession retrieves a checkout session by id.
func (p *Provider) GetSession(ctx context.Context, id string) (*provider.Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+sessionsPath+"/"+url.PathEscape(id), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("get session request: %w", err)
	}

	sess, err := p.do(req)
	if err != nil {
		if errors.Is(err, provider.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get checkout session %s: %w", id, err)
	}
	return sess, nil
}

func (p *Provider) do(req *http.Request) (*provider.Session, error) {
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req.Context(), req)
	if err != nil {
		if httpclient.IsUnavailable(err) {
			return nil, fmt.Errorf("%w: %w", provider.ErrUnavailable, err)
		}
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		_ = httpclient.ReadStatusError(resp)
		return nil, provider.ErrSessionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := httpclient.ReadStatusError(resp)
		if httpclient.IsUnavailable(statusErr) {
			return nil, fmt.Errorf("%w: %w", provider.ErrUnavailable, statusErr)
		}
		return nil, statusErr
	}
	defer func() { _ = resp.Body.Close() }()

	var body sessionResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode session: %w", provider.ErrUnavailable, err)
	}
	if body.ID == "" {
		return nil, fmt.Errorf("%w: session response has no id", provider.ErrUnavailable)
	}
	return body.toSession(), nil
}

// encodeCreateSession builds the form body using the API's bracketed keys.
func encodeCreateSession(input *provider.CreateSessionInput) url.Values {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("success_url", input.SuccessURL)
	form.Set("cancel_url", input.CancelURL)
	if input.CustomerEmail != "" {
		form.Set("customer_email", input.CustomerEmail)
	}
	if input.ClientReference != "" {
		form.Set("client_reference_id", input.ClientReference)
	}

	for i, li := range input.LineItems {
		prefix := "line_items[" + strconv.Itoa(i) + "]"
		form.Set(prefix+"[quantity]", strconv.Itoa(li.Quantity))
		form.Set(prefix+"[price_data][currency]", input.Currency)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(li.UnitAmount, 10))
		form.Set(prefix+"[price_data][product_data][name]", li.Name)
		if li.ImageURL != "" {
			form.Set(prefix+"[price_data][product_data][images][0]", li.ImageURL)
		}
	}
	return form
}
