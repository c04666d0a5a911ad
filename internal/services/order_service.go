package services

import (
	"context"
	"errors"
	"log/slog"

	"bindery-orders/internal/apperror"
	"bindery-orders/internal/domain"
	"bindery-orders/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxPage         = 1_000_000
)

type OrderPage struct {
	Orders   []domain.Order
	Total    int64
	Page     int
	PageSize int
}

// OrderService reads orders and moves them through the state machine.
type OrderService struct {
	deps    *Deps
	machine *StateMachine
}

func NewOrderService(d Deps) *OrderService {
	d = d.withDefaults()
	return &OrderService{deps: &d, machine: NewStateMachine(&d)}
}

func (u *OrderService) GetOrder(ctx context.Context, id string, actor domain.Actor) (*domain.Order, error) {
	o, err := u.deps.Ledger.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperror.ErrOrderNotFound
	}
	if !actor.IsAdmin() && o.UserID != actor.ID {
		return nil, apperror.ErrForbidden
	}
	return o, nil
}

func (u *OrderService) ListForUser(ctx context.Context, userID string) ([]domain.Order, error) {
	orders, err := u.deps.Ledger.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}

func (u *OrderService) ListAll(ctx context.Context, actor domain.Actor, page, pageSize int) (*OrderPage, error) {
	if !actor.IsAdmin() {
		return nil, apperror.ErrForbidden
	}
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	orders, total, err := u.deps.Ledger.List(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return &OrderPage{Orders: orders, Total: total, Page: page, PageSize: pageSize}, nil
}

// UpdateStatus is the admin path into the state machine.
func (u *OrderService) UpdateStatus(ctx context.Context, id string, actor domain.Actor, next domain.OrderStatus, patch *ShippingPatch, note string) (*domain.Order, error) {
	if !actor.IsAdmin() {
		return nil, apperror.ErrForbidden
	}
	req := TransitionRequest{Next: next, Actor: actor, Note: note, Shipping: patch}
	if next == domain.StatusCancelled {
		req.Reason = "cancelled by admin"
	}
	return u.apply(ctx, id, req, nil)
}

// Cancel lets the owner cancel while the order is pending or paid, and an admin
// at any non-terminal status. A paid order is refunded first.
func (u *OrderService) Cancel(ctx context.Context, id string, actor domain.Actor, reason string) (*domain.Order, error) {
	if reason == "" {
		reason = "cancelled by customer"
		if actor.IsAdmin() {
			reason = "cancelled by admin"
		}
	}
	req := TransitionRequest{Next: domain.StatusCancelled, Actor: actor, Note: reason, Reason: reason}
	return u.apply(ctx, id, req, func(o *domain.Order) error {
		if actor.IsAdmin() {
			return nil
		}
		if o.UserID != actor.ID {
			return apperror.ErrForbidden
		}
		if o.Status == domain.StatusCancelled {
			return apperror.ErrAlreadyCancelled
		}
		if o.Status != domain.StatusPending && o.Status != domain.StatusPaid {
			return apperror.ErrNotCancellable
		}
		return nil
	})
}

// apply runs one transition under the order lock and persists it against the
// version it was read at.
func (u *OrderService) apply(ctx context.Context, id string, req TransitionRequest, authorize func(*domain.Order) error) (*domain.Order, error) {
	release, err := u.deps.lock(ctx, "order:"+id)
	if err != nil {
		return nil, err
	}
	defer release()

	o, err := u.deps.Ledger.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperror.ErrOrderNotFound
	}
	if authorize != nil {
		if err := authorize(o); err != nil {
			return nil, err
		}
	}
	return u.applyTo(ctx, o, req)
}

func (u *OrderService) applyTo(ctx context.Context, o *domain.Order, req TransitionRequest) (*domain.Order, error) {
	next, err := u.machine.Transition(ctx, o, req)
	if err != nil {
		return nil, err
	}

	if err := u.deps.Ledger.Update(ctx, next, o.Version); err != nil {
		if next.Payment.Status == domain.PaymentRefunded && o.Payment.Status == domain.PaymentPaid {
			slog.ErrorContext(ctx, "payment refunded but order not updated",
				"order_id", o.ID, "payment_reference", o.Payment.Reference, "err", err)
			u.deps.audit(ctx, domain.AuditPaymentRefundUnrecorded, domain.AuditError, req.Actor, map[string]any{
				"orderId":          o.ID,
				"paymentReference": o.Payment.Reference,
				"amount":           o.Pricing.Total,
				"reason":           err.Error(),
			})
		}
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, apperror.ErrConcurrentUpdate
		}
		return nil, err
	}

	action := domain.AuditOrderStatus
	if next.Status == domain.StatusCancelled {
		action = domain.AuditOrderCancel
	}
	u.deps.audit(ctx, action, domain.AuditInfo, req.Actor, map[string]any{
		"orderId":       next.ID,
		"from":          string(o.Status),
		"to":            string(next.Status),
		"paymentStatus": string(next.Payment.Status),
	})
	u.deps.Metrics.Transition(string(o.Status), string(next.Status))
	u.deps.publish(ctx, domain.NewOrderEvent(domain.EventOrderStatusChanged, next, o.Status, u.deps.Now()))

	slog.InfoContext(ctx, "order status changed", "order_id", next.ID, "from", o.Status, "to", next.Status, "actor", req.Actor.String())
	return next, nil
}
