package domain

// Contact is how the shop reaches the buyer about an order.
type Contact struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Phone string `json:"phone" validate:"required,phone"`
}

// Provider-side payment status values.
const (
	PaymentStatusPaid   = "paid"
	PaymentStatusUnpaid = "unpaid"
)

// PaymentConfirmation is a completed payment as reported by the provider.
// It is only ever built from the provider's own session record.
type PaymentConfirmation struct {
	ProviderSessionID string `json:"provider_session_id"`
	PaymentReference  string `json:"payment_reference"`
	AmountAuthorized  int64  `json:"amount_authorized"`
	Currency          string `json:"currency"`
	Status            string `json:"status"`

	// ClientReference is the shopper session that started the checkout.
	ClientReference string `json:"-"`
}
