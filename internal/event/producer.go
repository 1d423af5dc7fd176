package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// Kafka topic constants for storefront events.
const (
	TopicCheckoutInitiated    = "storefront.checkout.initiated"
	TopicOrderCreated         = "storefront.order.created"
	TopicReconciliationFailed = "storefront.reconciliation.failed"
)

// Aggregate type constants.
const (
	AggregateTypeCheckout = "checkout_session"
	AggregateTypeOrder    = "order"
)

// SourceStorefront identifies events originating from this service.
const SourceStorefront = "storefront"

// Publisher is the subset of *pkgkafka.Producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// CheckoutInitiatedData is the payload for a checkout.initiated event.
type CheckoutInitiatedData struct {
	ShopperSession    string `json:"shopper_session"`
	CheckoutSessionID string `json:"checkout_session_id"`
	Provider          string `json:"provider"`
	ItemCount         int    `json:"item_count"`
	TotalPrice        int64  `json:"total_price"`
	Currency          string `json:"currency"`
}

// OrderCreatedData is the payload for an order.created event.
type OrderCreatedData struct {
	OrderID          string          `json:"order_id"`
	PaymentReference string          `json:"payment_reference"`
	ContactEmail     string          `json:"contact_email"`
	Items            []OrderItemData `json:"items"`
	TotalPrice       int64           `json:"total_price"`
	AmountPaid       int64           `json:"amount_paid"`
	Currency         string          `json:"currency"`
	OrderStatus      string          `json:"order_status"`
	CreatedAt        time.Time       `json:"created_at"`
}

// OrderItemData is the item payload within order events.
type OrderItemData struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// ReconciliationFailedData is the payload for a reconciliation.failed event.
// PaymentReference is empty when the failure happened before verification.
type ReconciliationFailedData struct {
	ShopperSession    string `json:"shopper_session"`
	CheckoutSessionID string `json:"checkout_session_id"`
	PaymentReference  string `json:"payment_reference,omitempty"`
	AmountAuthorized  int64  `json:"amount_authorized,omitempty"`
	FailureKind       string `json:"failure_kind"`
	Detail            string `json:"detail"`
}

// Producer publishes storefront domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCheckoutInitiated publishes a checkout.initiated event.
func (p *Producer) PublishCheckoutInitiated(ctx context.Context, data CheckoutInitiatedData) error {
	return p.publish(ctx, TopicCheckoutInitiated, data.CheckoutSessionID, AggregateTypeCheckout, data)
}

// PublishOrderCreated publishes an order.created event.
func (p *Producer) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	items := make([]OrderItemData, len(order.Items))
	for i, item := range order.Items {
		items[i] = OrderItemData{
			ProductID: item.ProductID,
			Name:      item.Name.Default(),
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
	}

	data := OrderCreatedData{
		OrderID:          order.ID,
		PaymentReference: order.PaymentReference,
		ContactEmail:     order.ContactEmail,
		Items:            items,
		TotalPrice:       order.TotalPrice,
		AmountPaid:       order.AmountPaid,
		Currency:         order.Currency,
		OrderStatus:      order.OrderStatus,
		CreatedAt:        order.CreatedAt,
	}
	return p.publish(ctx, TopicOrderCreated, order.ID, AggregateTypeOrder, data)
}

// PublishReconciliationFailed publishes a reconciliation.failed event for
// manual follow-up.
func (p *Producer) PublishReconciliationFailed(ctx context.Context, data ReconciliationFailedData) error {
	return p.publish(ctx, TopicReconciliationFailed, data.CheckoutSessionID, AggregateTypeCheckout, data)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}
