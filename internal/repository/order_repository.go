package repository

import (
	"context"
	"errors"

	"bindery-orders/internal/domain"
)

var (
	// ErrDuplicatePaymentReference is returned by Insert when an order already holds the reference.
	ErrDuplicatePaymentReference = errors.New("order with this payment reference already exists")
	// ErrVersionConflict is returned by Update when the stored version moved on.
	ErrVersionConflict = errors.New("order version conflict")
)

// OrderLedger is the durable store of orders. Find methods return (nil, nil) when
// nothing matches.
type OrderLedger interface {
	Insert(ctx context.Context, order *domain.Order) error
	Update(ctx context.Context, order *domain.Order, expectedVersion int) error
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	FindByPaymentReference(ctx context.Context, ref string) (*domain.Order, error)
	FindByUserID(ctx context.Context, userID string) ([]domain.Order, error)
	List(ctx context.Context, page, pageSize int) ([]domain.Order, int64, error)
}

type CartStore interface {
	Read(ctx context.Context, userID string) ([]domain.CartItem, error)
	// ReadForUpdate locks the user's cart rows until the surrounding transaction ends.
	ReadForUpdate(ctx context.Context, userID string) ([]domain.CartItem, error)
	Clear(ctx context.Context, userID string) error
}

type AuditLog interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
}

// Transactor runs fn in one transaction; ledger and cart calls made with the
// context passed to fn join it.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
