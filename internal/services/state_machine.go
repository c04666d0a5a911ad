package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"bindery-orders/internal/apperror"
	"bindery-orders/internal/domain"
	"bindery-orders/internal/infra"
)

// ShippingPatch carries admin-entered parcel details.
type ShippingPatch struct {
	Carrier        *string
	TrackingNumber *string
}

type TransitionRequest struct {
	Next     domain.OrderStatus
	Actor    domain.Actor
	Note     string
	Shipping *ShippingPatch
	// Reason is sent to the gateway when a paid order is cancelled.
	Reason string
	// Verified is a gateway verification the caller already holds; entering paid
	// uses it instead of asking the gateway again.
	Verified *infra.PaymentVerification
	// GatewayCancelled means the gateway already reports the payment cancelled,
	// so cancelling must not call it again.
	GatewayCancelled bool
}

// StateMachine applies one status change to a copy of an order. It talks to the
// gateway where a transition needs it but never persists anything.
type StateMachine struct {
	gateway infra.PaymentGateway
	deps    *Deps
}

func NewStateMachine(d *Deps) *StateMachine {
	return &StateMachine{gateway: d.Gateway, deps: d}
}

func (m *StateMachine) Transition(ctx context.Context, order *domain.Order, req TransitionRequest) (*domain.Order, error) {
	if !req.Next.Valid() {
		return nil, apperror.ErrInvalidStatus.WithMessage("unsupported order status %q", req.Next)
	}
	if order.Status == domain.StatusCancelled && req.Next == domain.StatusCancelled {
		return nil, apperror.ErrAlreadyCancelled
	}
	if !domain.CanTransitionTo(order.Status, req.Next) {
		return nil, apperror.ErrIllegalTransition.WithMessage("cannot move order from %s to %s", order.Status, req.Next)
	}
	if req.Shipping != nil && req.Next != domain.StatusShipped && req.Next != domain.StatusDelivered {
		return nil, apperror.ErrIllegalTransition.WithMessage("shipping details only accompany shipped or delivered")
	}

	next := order.Clone()
	now := m.deps.Now()

	switch req.Next {
	case domain.StatusPaid:
		if order.Status == domain.StatusPending {
			if err := m.settle(ctx, next, req.Verified); err != nil {
				return nil, err
			}
		}
	case domain.StatusShipped:
		if next.Shipping.ShippedAt == nil {
			next.Shipping.ShippedAt = &now
		}
	case domain.StatusDelivered:
		if next.Shipping.DeliveredAt == nil {
			next.Shipping.DeliveredAt = &now
		}
	case domain.StatusCancelled:
		if err := m.cancel(ctx, next, req); err != nil {
			return nil, err
		}
	}

	if p := req.Shipping; p != nil {
		if p.Carrier != nil {
			next.Shipping.Carrier = strings.TrimSpace(*p.Carrier)
		}
		if p.TrackingNumber != nil {
			next.Shipping.TrackingNumber = strings.TrimSpace(*p.TrackingNumber)
		}
	}

	note := req.Note
	if note == "" {
		note = defaultNote(order.Status, req.Next)
	}
	next.Status = req.Next
	next.AppendHistory(req.Next, note, req.Actor, now)
	return next, nil
}

// settle re-verifies a pending payment before the order may count as paid.
func (m *StateMachine) settle(ctx context.Context, o *domain.Order, v *infra.PaymentVerification) error {
	if v == nil {
		var err error
		if v, err = m.gateway.Verify(ctx, o.Payment.Reference); err != nil {
			return err
		}
	}
	if v.Status != infra.GatewaySettled {
		return apperror.ErrIllegalTransition.WithMessage("payment is %s at the gateway", v.Status)
	}
	if o.Payment.MerchantUID != "" && v.MerchantUID != "" && v.MerchantUID != o.Payment.MerchantUID {
		slog.ErrorContext(ctx, "merchant uid mismatch on settlement", "order_id", o.ID, "fraud_suspect", true)
		return apperror.ErrMerchantMismatch
	}
	if v.Amount != o.Pricing.Total {
		slog.ErrorContext(ctx, "settled amount differs from order total",
			"order_id", o.ID, "payment_reference", o.Payment.Reference,
			"paid", v.Amount, "total", o.Pricing.Total, "fraud_suspect", true)
		m.deps.Metrics.Mismatch()
		m.deps.audit(ctx, domain.AuditPaymentAmountMismatch, domain.AuditError, domain.Actor{Role: domain.RoleSystem}, map[string]any{
			"orderId": o.ID, "paymentReference": o.Payment.Reference, "paid": v.Amount, "total": o.Pricing.Total,
		})
		return apperror.ErrAmountMismatch
	}

	now := m.deps.Now()
	o.Payment.Status = domain.PaymentPaid
	o.Payment.PaidAt = v.PaidAt
	if o.Payment.PaidAt == nil {
		o.Payment.PaidAt = &now
	}
	if v.TransactionID != "" {
		o.Payment.TransactionID = v.TransactionID
	}
	return nil
}

// cancel refunds a paid order first; a failed refund leaves o untouched and
// surfaces the gateway's own error.
func (m *StateMachine) cancel(ctx context.Context, o *domain.Order, req TransitionRequest) error {
	if o.Payment.Status != domain.PaymentPaid {
		o.Payment.Status = domain.PaymentCancelled
		return nil
	}
	if !req.GatewayCancelled {
		reason := req.Reason
		if reason == "" {
			reason = "order cancelled"
		}
		if err := m.gateway.Cancel(ctx, o.Payment.Reference, reason); err != nil {
			slog.ErrorContext(ctx, "gateway refund failed", "order_id", o.ID, "payment_reference", o.Payment.Reference, "err", err)
			return err
		}
	}
	o.Payment.Status = domain.PaymentRefunded
	return nil
}

func defaultNote(from, to domain.OrderStatus) string {
	if from == to {
		return fmt.Sprintf("%s (updated)", to)
	}
	return fmt.Sprintf("%s -> %s", from, to)
}
