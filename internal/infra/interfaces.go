package infra

import (
	"context"
	"time"

	"bindery-orders/internal/domain"
)

// ProductCatalog returns (nil, nil) for an unknown product.
type ProductCatalog interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

type GatewayStatus string

const (
	GatewaySettled   GatewayStatus = "settled"
	GatewaySettling  GatewayStatus = "settling"
	GatewayFailed    GatewayStatus = "failed"
	GatewayCancelled GatewayStatus = "cancelled"
)

// PaymentVerification is the gateway's own account of a payment.
type PaymentVerification struct {
	Reference     string
	Status        GatewayStatus
	Amount        int64
	Method        string
	TransactionID string
	MerchantUID   string
	Provider      string
	PaidAt        *time.Time
}

// PaymentGateway errors are *apperror.Error of kind Gateway; Retryable tells
// unavailable from rejected.
type PaymentGateway interface {
	Verify(ctx context.Context, reference string) (*PaymentVerification, error)
	Cancel(ctx context.Context, reference, reason string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, pattern string, data any) error
}

// Locker serializes work on one key across processes. Acquire fails with
// apperror.ErrBusy when the key stays held past the wait budget.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// IntentStore returns (nil, nil) for an unknown or expired intent. Save fails
// with apperror.ErrIntentTaken when another user holds the merchantUid.
type IntentStore interface {
	Save(ctx context.Context, intent *domain.CheckoutIntent) error
	Get(ctx context.Context, merchantUID string) (*domain.CheckoutIntent, error)
	Delete(ctx context.Context, merchantUID string) error
}

var _ ProductCatalog = (*ProductClient)(nil)
