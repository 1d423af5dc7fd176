package service

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/provider"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// --- Mock Provider ---

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "test" }

func (m *mockProvider) CreateSession(ctx context.Context, input *provider.CreateSessionInput) (*provider.Session, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Session), args.Error(1)
}

func (m *mockProvider) GetSession(ctx context.Context, id string) (*provider.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Session), args.Error(1)
}

// --- Mock Backup Cache ---

type mockBackupCache struct {
	mock.Mock
}

func (m *mockBackupCache) Get(ctx context.Context, id string) (*domain.CartBackup, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CartBackup), args.Error(1)
}

func (m *mockBackupCache) Put(ctx context.Context, id string, b *domain.CartBackup) error {
	args := m.Called(ctx, id, b)
	return args.Error(0)
}

func (m *mockBackupCache) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// --- Mock Order Repository ---

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) CreateOrder(ctx context.Context, o *domain.Order) (*domain.Order, bool, error) {
	args := m.Called(ctx, o)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.Order), args.Bool(1), args.Error(2)
}

func (m *mockOrderRepository) GetByPaymentReference(ctx context.Context, ref string) (*domain.Order, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

// --- Mock Cart Clearer ---

type mockCartClearer struct {
	mock.Mock
}

func (m *mockCartClearer) Clear(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// --- Recording Events ---

type recordingEvents struct {
	mu        sync.Mutex
	initiated []event.CheckoutInitiatedData
	created   []*domain.Order
	failed    []event.ReconciliationFailedData
	err       error
}

func (e *recordingEvents) PublishCheckoutInitiated(_ context.Context, d event.CheckoutInitiatedData) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initiated = append(e.initiated, d)
	return e.err
}

func (e *recordingEvents) PublishOrderCreated(_ context.Context, o *domain.Order) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created = append(e.created, o)
	return e.err
}

func (e *recordingEvents) PublishReconciliationFailed(_ context.Context, d event.ReconciliationFailedData) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed = append(e.failed, d)
	return e.err
}

// --- In-memory stores for end-to-end flows ---

type memBackups struct {
	mu      sync.Mutex
	backups map[string]*domain.CartBackup
}

func newMemBackups() *memBackups {
	return &memBackups{backups: make(map[string]*domain.CartBackup)}
}

func (b *memBackups) Get(_ context.Context, id string) (*domain.CartBackup, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bk, ok := b.backups[id]
	if !ok {
		return nil, nil
	}
	cp := *bk
	cp.Snapshot = bk.Snapshot.Clone()
	return &cp, nil
}

func (b *memBackups) Put(_ context.Context, id string, bk *domain.CartBackup) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := *bk
	cp.Snapshot = bk.Snapshot.Clone()
	b.backups[id] = &cp
	return nil
}

func (b *memBackups) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.backups, id)
	return nil
}

type memOrders struct {
	mu     sync.Mutex
	byRef  map[string]*domain.Order
	writes int
}

func newMemOrders() *memOrders {
	return &memOrders{byRef: make(map[string]*domain.Order)}
}

func (o *memOrders) CreateOrder(_ context.Context, order *domain.Order) (*domain.Order, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes++
	if existing, ok := o.byRef[order.PaymentReference]; ok {
		return existing, false, nil
	}
	o.byRef[order.PaymentReference] = order
	return order, true, nil
}

func (o *memOrders) GetByPaymentReference(_ context.Context, ref string) (*domain.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if existing, ok := o.byRef[ref]; ok {
		return existing, nil
	}
	return nil, apperrors.NotFound("order", ref)
}

func (o *memOrders) GetByID(_ context.Context, id string) (*domain.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, existing := range o.byRef {
		if existing.ID == id {
			return existing, nil
		}
	}
	return nil, apperrors.NotFound("order", id)
}

func (o *memOrders) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.byRef)
}

type memCartCache struct {
	mu    sync.Mutex
	carts map[string]domain.CartSnapshot
}

func newMemCartCache() *memCartCache {
	return &memCartCache{carts: make(map[string]domain.CartSnapshot)}
}

func (c *memCartCache) Load(_ context.Context, id string) (domain.CartSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.carts[id].Clone(), nil
}

func (c *memCartCache) Save(_ context.Context, id string, s domain.CartSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carts[id] = s.Clone()
	return nil
}

func (c *memCartCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.carts, id)
	return nil
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testContact() domain.Contact {
	return domain.Contact{Email: "buyer@example.com", Phone: "+966500000000"}
}

// cartA is one line of a 1000-unit product, quantity 2.
func cartA() domain.CartSnapshot {
	return domain.CartSnapshot{Lines: []domain.CartLine{{
		ProductID: "prod-a",
		Name:      domain.LocalizedName{EN: "Oud Perfume", AR: "عطر عود"},
		UnitPrice: 1000,
		Quantity:  2,
		ImageRef:  "/images/oud.jpg",
	}}}
}
