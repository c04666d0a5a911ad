package mocks

import (
	"context"

	"bindery-orders/internal/domain"
	"bindery-orders/internal/infra"
	"bindery-orders/internal/repository"

	"github.com/stretchr/testify/mock"
)

var (
	_ repository.OrderLedger = (*MockOrderLedger)(nil)
	_ repository.CartStore   = (*MockCartStore)(nil)
	_ repository.AuditLog    = (*MockAuditLog)(nil)
	_ repository.Transactor  = (*MockTransactor)(nil)
	_ infra.ProductCatalog   = (*MockProductCatalog)(nil)
	_ infra.PaymentGateway   = (*MockPaymentGateway)(nil)
	_ infra.EventPublisher   = (*MockPublisher)(nil)
	_ infra.Locker           = (*MockLocker)(nil)
	_ infra.IntentStore      = (*MockIntentStore)(nil)
)

type MockOrderLedger struct {
	mock.Mock
}

type MockCartStore struct {
	mock.Mock
}

type MockAuditLog struct {
	mock.Mock
}

// MockTransactor runs fn inline; set Err to fail before fn runs.
type MockTransactor struct {
	Err   error
	Calls int
}

type MockProductCatalog struct {
	mock.Mock
}

type MockPaymentGateway struct {
	mock.Mock
}

type MockPublisher struct {
	mock.Mock
}

type MockLocker struct {
	mock.Mock
}

type MockIntentStore struct {
	mock.Mock
}

func (m *MockOrderLedger) Insert(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderLedger) Update(ctx context.Context, order *domain.Order, expectedVersion int) error {
	args := m.Called(ctx, order, expectedVersion)
	return args.Error(0)
}

func (m *MockOrderLedger) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderLedger) FindByPaymentReference(ctx context.Context, ref string) (*domain.Order, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderLedger) FindByUserID(ctx context.Context, userID string) ([]domain.Order, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Order), args.Error(1)
}

func (m *MockOrderLedger) List(ctx context.Context, page, pageSize int) ([]domain.Order, int64, error) {
	args := m.Called(ctx, page, pageSize)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.Order), args.Get(1).(int64), args.Error(2)
}

func (m *MockCartStore) Read(ctx context.Context, userID string) ([]domain.CartItem, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CartItem), args.Error(1)
}

func (m *MockCartStore) ReadForUpdate(ctx context.Context, userID string) ([]domain.CartItem, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CartItem), args.Error(1)
}

func (m *MockCartStore) Clear(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockAuditLog) Append(ctx context.Context, entry *domain.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.Calls++
	if m.Err != nil {
		return m.Err
	}
	return fn(ctx)
}

func (m *MockProductCatalog) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockPaymentGateway) Verify(ctx context.Context, reference string) (*infra.PaymentVerification, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*infra.PaymentVerification), args.Error(1)
}

func (m *MockPaymentGateway) Cancel(ctx context.Context, reference, reason string) error {
	args := m.Called(ctx, reference, reason)
	return args.Error(0)
}

func (m *MockPublisher) Publish(ctx context.Context, pattern string, data any) error {
	args := m.Called(ctx, pattern, data)
	return args.Error(0)
}

func (m *MockLocker) Acquire(ctx context.Context, key string) (func(), error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}

func (m *MockIntentStore) Save(ctx context.Context, intent *domain.CheckoutIntent) error {
	args := m.Called(ctx, intent)
	return args.Error(0)
}

func (m *MockIntentStore) Get(ctx context.Context, merchantUID string) (*domain.CheckoutIntent, error) {
	args := m.Called(ctx, merchantUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CheckoutIntent), args.Error(1)
}

func (m *MockIntentStore) Delete(ctx context.Context, merchantUID string) error {
	args := m.Called(ctx, merchantUID)
	return args.Error(0)
}
