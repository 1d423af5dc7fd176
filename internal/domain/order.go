package domain

import (
	"time"

	"github.com/google/uuid"
)

// Order status values.
const (
	OrderStatusPending = "pending"
	// OrderStatusReview marks an order whose authorized amount differs from
	// the cart total and needs a human to look at it.
	OrderStatusReview = "review"
)

// Order is a persisted purchase. PaymentReference is unique across orders.
type Order struct {
	ID                string     `json:"id"`
	ContactEmail      string     `json:"contact_email"`
	ContactPhone      string     `json:"contact_phone"`
	Items             []CartLine `json:"items"`
	TotalPrice        int64      `json:"total_price"`
	AmountPaid        int64      `json:"amount_paid"`
	Currency          string     `json:"currency"`
	PaymentReference  string     `json:"payment_reference"`
	ProviderSessionID string     `json:"provider_session_id"`
	PaymentStatus     string     `json:"payment_status"`
	OrderStatus       string     `json:"order_status"`
	CreatedAt         time.Time  `json:"created_at"`

	// ShopperSession is the session that placed the order. It is never
	// serialized to clients.
	ShopperSession string `json:"-"`
}

// OwnedBy reports whether the order was placed from shopperSessionID.
func (o *Order) OwnedBy(shopperSessionID string) bool {
	return o != nil && o.ShopperSession != "" && o.ShopperSession == shopperSessionID
}

// NewOrder builds the order for a confirmed payment from the backed-up cart.
// Items are copied so later cart changes cannot reach the order.
func NewOrder(conf *PaymentConfirmation, snapshot CartSnapshot, contact Contact, now time.Time) *Order {
	items := snapshot.Clone().Lines
	total := snapshot.TotalPrice()

	status := OrderStatusPending
	if conf.AmountAuthorized != total {
		status = OrderStatusReview
	}

	return &Order{
		ID:                uuid.NewString(),
		ContactEmail:      contact.Email,
		ContactPhone:      contact.Phone,
		Items:             items,
		TotalPrice:        total,
		AmountPaid:        conf.AmountAuthorized,
		Currency:          conf.Currency,
		PaymentReference:  conf.PaymentReference,
		ProviderSessionID: conf.ProviderSessionID,
		PaymentStatus:     PaymentStatusPaid,
		OrderStatus:       status,
		CreatedAt:         now.UTC(),
	}
}

// Product is the catalog read model used when adding to the cart.
type Product struct {
	ID           string        `json:"id"`
	Name         LocalizedName `json:"name"`
	Brand        string        `json:"brand,omitempty"`
	Price        int64         `json:"price"`
	Image        string        `json:"image,omitempty"`
	CountInStock int           `json:"count_in_stock"`
}

// Line returns a new cart line for qty units at the current catalog price.
func (p *Product) Line(qty int) CartLine {
	return CartLine{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  qty,
		ImageRef:  p.Image,
	}
}
