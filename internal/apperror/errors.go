// Package apperror holds the typed failures the order core hands back to callers.
package apperror

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindGateway
	KindAuthorization
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindGateway:
		return "gateway"
	case KindAuthorization:
		return "authorization"
	case KindInvariant:
		return "invariant"
	default:
		return "internal"
	}
}

// Error is a user-safe failure. Code is stable and used for matching; Message is
// what the caller sees.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so sentinels survive WithMessage and Wrap.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// WithMessage returns a copy of e with a more specific caller-facing message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Validation(code, message string) *Error { return New(KindValidation, code, message) }
func NotFound(code, message string) *Error   { return New(KindNotFound, code, message) }
func Conflict(code, message string) *Error   { return New(KindConflict, code, message) }
func Invariant(code, message string) *Error  { return New(KindInvariant, code, message) }

func Authorization(code, message string) *Error {
	return New(KindAuthorization, code, message)
}

func Gateway(code, message string, retryable bool) *Error {
	return &Error{Kind: KindGateway, Code: code, Message: message, Retryable: retryable}
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports KindInternal for anything that is not an *Error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether the caller may safely retry the same request.
func IsRetryable(err error) bool {
	if e, ok := As(err); ok {
		return e.Retryable
	}
	return false
}

var (
	ErrEmptyCart           = Validation("EMPTY_CART", "cart is empty")
	ErrInvalidShippingInfo = Validation("INVALID_SHIPPING_INFO", "shipping information is incomplete")
	ErrInvalidPayment      = Validation("INVALID_PAYMENT", "payment reference is required")
	ErrInvalidPricing      = Validation("INVALID_PRICING", "pricing is out of bounds")
	ErrInvalidStatus       = Validation("INVALID_STATUS", "unsupported order status")
	ErrIllegalTransition   = Validation("ILLEGAL_TRANSITION", "illegal order status transition")
	ErrNotCancellable      = Validation("NOT_CANCELLABLE", "order can no longer be cancelled by the customer")

	ErrProductMissing = NotFound("PRODUCT_MISSING", "product not found")
	ErrOrderNotFound  = NotFound("ORDER_NOT_FOUND", "order not found")

	ErrAlreadyProcessed = Conflict("PAYMENT_ALREADY_PROCESSED", "payment already processed")
	ErrAlreadyCancelled = Conflict("ORDER_ALREADY_CANCELLED", "order already cancelled")
	ErrCartChanged      = Conflict("CART_CHANGED", "cart changed during checkout")
	ErrConcurrentUpdate = Conflict("CONCURRENT_UPDATE", "order was modified concurrently")
	ErrBusy             = &Error{Kind: KindConflict, Code: "BUSY", Message: "another request is in progress", Retryable: true}
	ErrIntentTaken      = Conflict("CHECKOUT_INTENT_TAKEN", "merchantUid is already registered to another checkout")

	ErrAmountMismatch   = Invariant("AMOUNT_MISMATCH", "paid amount does not match order total")
	ErrMerchantMismatch = Invariant("MERCHANT_MISMATCH", "payment does not belong to this checkout")

	ErrForbidden = Authorization("FORBIDDEN", "not allowed")

	ErrGatewayUnavailable  = Gateway("GATEWAY_UNAVAILABLE", "payment gateway unavailable, retry later", true)
	ErrGatewayRejected     = Gateway("GATEWAY_REJECTED", "payment rejected by gateway", false)
	ErrGatewayCancelFailed = Gateway("GATEWAY_CANCEL_FAILED", "payment cancellation failed", false)
)
