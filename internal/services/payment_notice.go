package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"bindery-orders/internal/apperror"
	"bindery-orders/internal/domain"
	"bindery-orders/internal/infra"
)

// PaymentNotice is a gateway webhook after its signature has been checked.
type PaymentNotice struct {
	ImpUID      string
	MerchantUID string
	Status      string
}

const (
	OutcomeCreated          = "created"
	OutcomePaid             = "paid"
	OutcomeCancelled        = "cancelled"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeUnmatched        = "unmatched"
	OutcomeNoop             = "noop"
	OutcomeRejected         = "rejected"
)

type NoticeResult struct {
	Outcome string `json:"outcome"`
	OrderID string `json:"orderId,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

var webhookActor = domain.Actor{Role: domain.RoleWebhook}

// HandlePaymentNotice reconciles a webhook through the same paths a browser
// return or an admin uses. Only retryable failures come back as errors; terminal
// ones are audited and reported in the result so the gateway stops retrying.
func (s *CheckoutService) HandlePaymentNotice(ctx context.Context, n PaymentNotice) (*NoticeResult, error) {
	n.ImpUID, n.MerchantUID = strings.TrimSpace(n.ImpUID), strings.TrimSpace(n.MerchantUID)
	if n.ImpUID == "" || n.MerchantUID == "" {
		return nil, apperror.ErrInvalidPayment.WithMessage("imp_uid and merchant_uid are required")
	}

	res, err := s.reconcile(ctx, n)
	if err != nil {
		if apperror.IsRetryable(err) {
			s.deps.Metrics.Webhook("retry")
			return nil, err
		}
		var ae *apperror.Error
		if !errors.As(err, &ae) {
			s.deps.Metrics.Webhook("error")
			return nil, err
		}
		slog.WarnContext(ctx, "payment notice rejected", "imp_uid", n.ImpUID, "merchant_uid", n.MerchantUID, "err", err)
		res = &NoticeResult{Outcome: OutcomeRejected, Reason: ae.Message}
	}

	level := domain.AuditInfo
	action := domain.AuditPaymentWebhook
	switch res.Outcome {
	case OutcomeUnmatched:
		level, action = domain.AuditWarn, domain.AuditPaymentUnmatched
	case OutcomeRejected:
		level = domain.AuditWarn
	}
	s.deps.audit(ctx, action, level, webhookActor, map[string]any{
		"impUid":      n.ImpUID,
		"merchantUid": n.MerchantUID,
		"status":      n.Status,
		"outcome":     res.Outcome,
		"orderId":     res.OrderID,
	})
	s.deps.Metrics.Webhook(res.Outcome)
	return res, nil
}

func (s *CheckoutService) reconcile(ctx context.Context, n PaymentNotice) (*NoticeResult, error) {
	existing, err := s.deps.Ledger.FindByPaymentReference(ctx, n.ImpUID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return s.createFromIntent(ctx, n)
	}
	return s.settleExisting(ctx, existing.ID, n)
}

func (s *CheckoutService) createFromIntent(ctx context.Context, n PaymentNotice) (*NoticeResult, error) {
	if s.deps.Intents == nil {
		return &NoticeResult{Outcome: OutcomeUnmatched}, nil
	}
	intent, err := s.deps.Intents.Get(ctx, n.MerchantUID)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return &NoticeResult{Outcome: OutcomeUnmatched}, nil
	}

	order, err := s.CreateOrder(ctx, CreateOrderRequest{
		UserID:           intent.UserID,
		Shipping:         intent.Shipping,
		PaymentReference: n.ImpUID,
		MerchantUID:      n.MerchantUID,
		PaymentMethod:    intent.PaymentMethod,
		PricingHint:      intent.PricingHint,
		Actor:            webhookActor,
	})
	if errors.Is(err, apperror.ErrAlreadyProcessed) {
		return &NoticeResult{Outcome: OutcomeAlreadyProcessed}, nil
	}
	if err != nil {
		return nil, err
	}
	return &NoticeResult{Outcome: OutcomeCreated, OrderID: order.ID}, nil
}

func (s *CheckoutService) settleExisting(ctx context.Context, orderID string, n PaymentNotice) (*NoticeResult, error) {
	release, err := s.deps.lock(ctx, "order:"+orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	o, err := s.deps.Ledger.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperror.ErrOrderNotFound
	}
	if o.Payment.MerchantUID != "" && o.Payment.MerchantUID != n.MerchantUID {
		slog.ErrorContext(ctx, "webhook merchant uid does not match order", "order_id", o.ID, "fraud_suspect", true)
		return nil, apperror.ErrMerchantMismatch
	}

	v, err := s.deps.Gateway.Verify(ctx, n.ImpUID)
	if err != nil {
		return nil, err
	}
	if v.MerchantUID != "" && v.MerchantUID != n.MerchantUID {
		slog.ErrorContext(ctx, "webhook merchant uid does not match gateway", "order_id", o.ID, "fraud_suspect", true)
		return nil, apperror.ErrMerchantMismatch
	}

	switch {
	case v.Status == infra.GatewaySettled && o.Status == domain.StatusPending:
		next, err := s.orders.applyTo(ctx, o, TransitionRequest{
			Next:     domain.StatusPaid,
			Actor:    webhookActor,
			Note:     "payment settled (webhook)",
			Verified: v,
		})
		if err != nil {
			return nil, err
		}
		return &NoticeResult{Outcome: OutcomePaid, OrderID: next.ID}, nil

	case v.Status == infra.GatewayCancelled && !o.Status.IsTerminal():
		next, err := s.orders.applyTo(ctx, o, TransitionRequest{
			Next:             domain.StatusCancelled,
			Actor:            webhookActor,
			Note:             "payment cancelled at gateway (webhook)",
			GatewayCancelled: true,
		})
		if err != nil {
			return nil, err
		}
		return &NoticeResult{Outcome: OutcomeCancelled, OrderID: next.ID}, nil
	}
	return &NoticeResult{Outcome: OutcomeNoop, OrderID: o.ID}, nil
}
