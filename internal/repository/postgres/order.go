package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const pgUniqueViolation = "23505"

const insertOrderSQL = `
	INSERT INTO orders (id, contact_email, contact_phone, total_price, amount_paid, currency,
		payment_reference, provider_session_id, payment_status, order_status, created_at, shopper_session)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (payment_reference) DO NOTHING
	RETURNING created_at`

const insertOrderItemSQL = `
	INSERT INTO order_items (id, order_id, position, product_id, name_en, name_ar, unit_price, quantity, image_ref)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const selectOrderSQL = `
	SELECT
		o.id, o.contact_email, o.contact_phone, o.total_price, o.amount_paid, o.currency,
		o.payment_reference, o.provider_session_id, o.payment_status, o.order_status, o.created_at,
		o.shopper_session,
		COALESCE(
			JSONB_AGG(
				JSONB_BUILD_OBJECT(
					'product_id', oi.product_id,
					'name', JSONB_BUILD_OBJECT('en', oi.name_en, 'ar', oi.name_ar),
					'unit_price', oi.unit_price,
					'quantity', oi.quantity,
					'image_ref', oi.image_ref
				) ORDER BY oi.position
			) FILTER (WHERE oi.id IS NOT NULL),
			'[]'::jsonb
		) AS items
	FROM orders o
	LEFT JOIN order_items oi ON o.id = oi.order_id
	WHERE %s = $1
	GROUP BY o.id`

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	pool database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// CreateOrder inserts the order and its items in one transaction. If an order
// with the same payment reference exists, nothing is written and the existing
// order is returned with created=false.
func (r *OrderRepository) CreateOrder(ctx context.Context, o *domain.Order) (_ *domain.Order, created bool, err error) {
	ctx, end := database.TraceQuery(ctx, "CreateOrder", insertOrderSQL)
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}

	var createdAt time.Time
	err = tx.QueryRow(ctx, insertOrderSQL,
		o.ID,
		o.ContactEmail,
		o.ContactPhone,
		o.TotalPrice,
		o.AmountPaid,
		o.Currency,
		o.PaymentReference,
		o.ProviderSessionID,
		o.PaymentStatus,
		o.OrderStatus,
		o.CreatedAt,
		o.ShopperSession,
	).Scan(&createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		rollback(ctx, tx)
		var existing *domain.Order
		existing, err = r.GetByPaymentReference(ctx, o.PaymentReference)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				// The conflicting row vanished between the insert and the read.
				err = fmt.Errorf("%w: payment reference %s", domain.ErrOrderWriteConflict, o.PaymentReference)
			}
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		rollback(ctx, tx)
		if isUniqueViolation(err) {
			return nil, false, fmt.Errorf("%w: %s", domain.ErrOrderWriteConflict, err.Error())
		}
		return nil, false, fmt.Errorf("insert order: %w", err)
	}

	for i, item := range o.Items {
		_, err = tx.Exec(ctx, insertOrderItemSQL,
			uuid.NewString(),
			o.ID,
			i,
			item.ProductID,
			item.Name.EN,
			item.Name.AR,
			item.UnitPrice,
			item.Quantity,
			item.ImageRef,
		)
		if err != nil {
			rollback(ctx, tx)
			return nil, false, fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit transaction: %w", err)
	}

	o.CreatedAt = createdAt
	return o, true, nil
}

// GetByPaymentReference retrieves an order by its provider payment reference.
func (r *OrderRepository) GetByPaymentReference(ctx context.Context, ref string) (*domain.Order, error) {
	return r.getOne(ctx, "GetOrderByPaymentReference", "o.payment_reference", ref)
}

// GetByID retrieves an order by its ID.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOne(ctx, "GetOrderByID", "o.id", id)
}

func (r *OrderRepository) getOne(ctx context.Context, op, column, value string) (_ *domain.Order, err error) {
	query := fmt.Sprintf(selectOrderSQL, column)
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() {
		if errors.Is(err, apperrors.ErrNotFound) {
			end(nil)
			return
		}
		end(err)
	}()

	var (
		o         domain.Order
		itemsJSON []byte
	)
	err = r.pool.QueryRow(ctx, query, value).Scan(
		&o.ID,
		&o.ContactEmail,
		&o.ContactPhone,
		&o.TotalPrice,
		&o.AmountPaid,
		&o.Currency,
		&o.PaymentReference,
		&o.ProviderSessionID,
		&o.PaymentStatus,
		&o.OrderStatus,
		&o.CreatedAt,
		&o.ShopperSession,
		&itemsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", value)
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.Items = []domain.CartLine{}
	if len(itemsJSON) > 0 && string(itemsJSON) != "null" && string(itemsJSON) != "[]" {
		if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
			return nil, fmt.Errorf("unmarshal order items: %w", err)
		}
	}

	return &o, nil
}

func rollback(ctx context.Context, tx pgx.Tx) {
	_ = tx.Rollback(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
