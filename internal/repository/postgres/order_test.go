package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// --- Test Helpers ---

func newTestRepo(t *testing.T) (*OrderRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewOrderRepository(mock), mock
}

func sampleOrder() *domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Order{
		ID:                "order-001",
		ContactEmail:      "buyer@example.com",
		ContactPhone:      "+966500000000",
		TotalPrice:        2000,
		AmountPaid:        2000,
		Currency:          "sar",
		PaymentReference:  "pay_123",
		ProviderSessionID: "cs_test_1",
		PaymentStatus:     domain.PaymentStatusPaid,
		OrderStatus:       domain.OrderStatusPending,
		CreatedAt:         now,
		ShopperSession:    "shop-1",
		Items: []domain.CartLine{
			{ProductID: "prod-a", Name: domain.LocalizedName{EN: "Oud", AR: "عود"}, UnitPrice: 1000, Quantity: 2, ImageRef: "/oud.jpg"},
		},
	}
}

func orderColumns() []string {
	return []string{
		"id", "contact_email", "contact_phone", "total_price", "amount_paid", "currency",
		"payment_reference", "provider_session_id", "payment_status", "order_status", "created_at",
		"shopper_session", "items",
	}
}

func orderRow(t *testing.T, o *domain.Order) *pgxmock.Rows {
	t.Helper()
	items, err := json.Marshal(o.Items)
	require.NoError(t, err)
	return pgxmock.NewRows(orderColumns()).AddRow(
		o.ID, o.ContactEmail, o.ContactPhone, o.TotalPrice, o.AmountPaid, o.Currency,
		o.PaymentReference, o.ProviderSessionID, o.PaymentStatus, o.OrderStatus, o.CreatedAt,
		o.ShopperSession, items,
	)
}

func expectInsertOrder(mock pgxmock.PgxPoolIface, o *domain.Order) *pgxmock.ExpectedQuery {
	return mock.ExpectQuery("INSERT INTO orders").
		WithArgs(
			o.ID, o.ContactEmail, o.ContactPhone,
			o.TotalPrice, o.AmountPaid, o.Currency,
			o.PaymentReference, o.ProviderSessionID,
			o.PaymentStatus, o.OrderStatus, o.CreatedAt,
			o.ShopperSession,
		)
}

// --- CreateOrder Tests ---

func TestOrderRepository_CreateOrder_Inserted(t *testing.T) {
	repo, mock := newTestRepo(t)
	o := sampleOrder()

	mock.ExpectBegin()
	expectInsertOrder(mock, o).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(o.CreatedAt))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(
			pgxmock.AnyArg(), o.ID, 0, "prod-a", "Oud", "عود", int64(1000), 2, "/oud.jpg",
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	got, created, err := repo.CreateOrder(context.Background(), o)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, o.ID, got.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_CreateOrder_DuplicateReturnsExisting(t *testing.T) {
	repo, mock := newTestRepo(t)
	o := sampleOrder()
	existing := sampleOrder()
	existing.ID = "order-000"

	mock.ExpectBegin()
	expectInsertOrder(mock, o).WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT (.+) FROM orders o").
		WithArgs("pay_123").
		WillReturnRows(orderRow(t, existing))

	got, created, err := repo.CreateOrder(context.Background(), o)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "order-000", got.ID)
	assert.True(t, got.OwnedBy("shop-1"))
	require.Len(t, got.Items, 1)
	assert.Equal(t, "عود", got.Items[0].Name.AR)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_CreateOrder_DuplicateIsNotASpanError(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	repo, mock := newTestRepo(t)
	o := sampleOrder()

	mock.ExpectBegin()
	expectInsertOrder(mock, o).WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT (.+) FROM orders o").
		WithArgs("pay_123").
		WillReturnRows(orderRow(t, sampleOrder()))

	_, created, err := repo.CreateOrder(context.Background(), o)
	require.NoError(t, err)
	assert.False(t, created)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	for _, span := range spans {
		assert.Equal(t, codes.Unset, span.Status().Code, span.Name())
		assert.Empty(t, span.Events(), span.Name())
	}
}

func TestOrderRepository_CreateOrder_ConflictVanished(t *testing.T) {
	repo, mock := newTestRepo(t)
	o := sampleOrder()

	mock.ExpectBegin()
	expectInsertOrder(mock, o).WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT (.+) FROM orders o").
		WithArgs("pay_123").
		WillReturnError(pgx.ErrNoRows)

	_, _, err := repo.CreateOrder(context.Background(), o)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOrderWriteConflict)
}

func TestOrderRepository_CreateOrder_UniqueViolationOnID(t *testing.T) {
	repo, mock := newTestRepo(t)
	o := sampleOrder()

	mock.ExpectBegin()
	expectInsertOrder(mock, o).WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "orders_pkey"})
	mock.ExpectRollback()

	_, _, err := repo.CreateOrder(context.Background(), o)
	assert.ErrorIs(t, err, domain.ErrOrderWriteConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_CreateOrder_ItemFailureRollsBack(t *testing.T) {
	repo, mock := newTestRepo(t)
	o := sampleOrder()

	mock.ExpectBegin()
	expectInsertOrder(mock, o).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(o.CreatedAt))
	mock.ExpectExec("INSERT INTO order_items").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, created, err := repo.CreateOrder(context.Background(), o)
	require.Error(t, err)
	assert.False(t, created)
	assert.Contains(t, err.Error(), "insert order item")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_CreateOrder_BeginFails(t *testing.T) {
	repo, mock := newTestRepo(t)
	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, _, err := repo.CreateOrder(context.Background(), sampleOrder())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin transaction")
}

// --- Get Tests ---

func TestOrderRepository_GetByPaymentReference(t *testing.T) {
	repo, mock := newTestRepo(t)
	o := sampleOrder()

	mock.ExpectQuery("SELECT (.+) FROM orders o").
		WithArgs("pay_123").
		WillReturnRows(orderRow(t, o))

	got, err := repo.GetByPaymentReference(context.Background(), "pay_123")
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, int64(2000), got.TotalPrice)
	assert.Equal(t, o.Items, got.Items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM orders o").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByID(context.Background(), "missing")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOrderRepository_GetByID_EmptyItems(t *testing.T) {
	repo, mock := newTestRepo(t)
	o := sampleOrder()
	o.Items = nil

	rows := pgxmock.NewRows(orderColumns()).AddRow(
		o.ID, o.ContactEmail, o.ContactPhone, o.TotalPrice, o.AmountPaid, o.Currency,
		o.PaymentReference, o.ProviderSessionID, o.PaymentStatus, o.OrderStatus, o.CreatedAt,
		[]byte("[]"),
	)
	mock.ExpectQuery("SELECT (.+) FROM orders o").WithArgs(o.ID).WillReturnRows(rows)

	got, err := repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.Items)
	assert.Empty(t, got.Items)
}
