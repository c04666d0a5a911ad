package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"bindery-orders/internal/apperror"
	"bindery-orders/internal/domain"
	"bindery-orders/internal/infra"
	"bindery-orders/internal/pricing"
	"bindery-orders/internal/repository"

	"golang.org/x/sync/errgroup"
)

const catalogFetchLimit = 8

type CreateOrderRequest struct {
	UserID           string
	Shipping         domain.ShippingInfo
	PaymentReference string
	// MerchantUID, when given, must match the gateway's record of the payment.
	MerchantUID   string
	PaymentMethod string
	PricingHint   *domain.PricingHint
	Actor         domain.Actor
}

// CheckoutService turns a verified payment and the shopper's cart into an order.
type CheckoutService struct {
	deps   *Deps
	orders *OrderService
}

func NewCheckoutService(d Deps, orders *OrderService) *CheckoutService {
	d = d.withDefaults()
	return &CheckoutService{deps: &d, orders: orders}
}

func (s *CheckoutService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	req.PaymentReference = strings.TrimSpace(req.PaymentReference)
	if req.UserID == "" {
		return nil, apperror.ErrForbidden.WithMessage("authentication required")
	}
	if req.PaymentReference == "" {
		return nil, apperror.ErrInvalidPayment
	}
	if !req.Shipping.Complete() {
		return nil, apperror.ErrInvalidShippingInfo
	}
	if req.Actor.Role == "" {
		req.Actor = domain.Actor{ID: req.UserID, Role: domain.RoleCustomer}
	}

	release, err := s.deps.lock(ctx, "checkout:"+req.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Cart before ledger: a racing creator that commits in between leaves an
	// empty cart and a visible order, and the ledger check reports the conflict.
	cart, err := s.deps.Carts.Read(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	existing, err := s.deps.Ledger.FindByPaymentReference(ctx, req.PaymentReference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperror.ErrAlreadyProcessed
	}
	if len(cart) == 0 {
		return nil, apperror.ErrEmptyCart
	}

	lines, err := s.loadLines(ctx, cart)
	if err != nil {
		return nil, err
	}
	price, err := pricing.Compute(lines, 0, s.deps.Pricing)
	if err != nil {
		return nil, err
	}
	if pricing.DiffersFromHint(price, req.PricingHint) {
		slog.InfoContext(ctx, "client pricing hint differs from server pricing",
			"user_id", req.UserID, "hint_total", req.PricingHint.Total, "total", price.Total)
	}

	v, err := s.deps.Gateway.Verify(ctx, req.PaymentReference)
	if err != nil {
		return nil, err
	}
	if req.MerchantUID != "" && v.MerchantUID != req.MerchantUID {
		slog.ErrorContext(ctx, "payment belongs to a different checkout",
			"user_id", req.UserID, "payment_reference", req.PaymentReference,
			"merchant_uid", req.MerchantUID, "gateway_merchant_uid", v.MerchantUID, "fraud_suspect", true)
		return nil, apperror.ErrMerchantMismatch
	}
	if v.Amount != price.Total {
		slog.ErrorContext(ctx, "paid amount does not match computed total",
			"user_id", req.UserID, "payment_reference", req.PaymentReference,
			"paid", v.Amount, "total", price.Total, "fraud_suspect", true)
		s.deps.Metrics.Mismatch()
		s.deps.audit(ctx, domain.AuditPaymentAmountMismatch, domain.AuditError, req.Actor, map[string]any{
			"paymentReference": req.PaymentReference,
			"paid":             v.Amount,
			"total":            price.Total,
		})
		return nil, apperror.ErrAmountMismatch
	}

	var status domain.OrderStatus
	switch v.Status {
	case infra.GatewaySettled:
		status = domain.StatusPaid
	case infra.GatewaySettling:
		status = domain.StatusPending
	default:
		return nil, apperror.ErrGatewayRejected.WithMessage("payment is %s at the gateway", v.Status)
	}

	order := s.buildOrder(req, cart, lines, price, v, status)
	fingerprint := domain.CartFingerprint(cart)

	err = s.deps.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
		locked, err := s.deps.Carts.ReadForUpdate(ctx, req.UserID)
		if err != nil {
			return err
		}
		dup, err := s.deps.Ledger.FindByPaymentReference(ctx, req.PaymentReference)
		if err != nil {
			return err
		}
		if dup != nil {
			return apperror.ErrAlreadyProcessed
		}
		if domain.CartFingerprint(locked) != fingerprint {
			return apperror.ErrCartChanged
		}
		if err := s.deps.Ledger.Insert(ctx, order); err != nil {
			if errors.Is(err, repository.ErrDuplicatePaymentReference) {
				return apperror.ErrAlreadyProcessed
			}
			return err
		}
		return s.deps.Carts.Clear(ctx, req.UserID)
	})
	if err != nil {
		if !errors.Is(err, apperror.ErrAlreadyProcessed) {
			// the payment is real but no order holds it
			slog.ErrorContext(ctx, "verified payment left without order",
				"user_id", req.UserID, "payment_reference", req.PaymentReference, "err", err)
			s.deps.audit(ctx, domain.AuditPaymentOrphaned, domain.AuditWarn, req.Actor, map[string]any{
				"paymentReference": req.PaymentReference,
				"amount":           v.Amount,
				"reason":           err.Error(),
			})
		}
		return nil, err
	}

	s.deps.audit(ctx, domain.AuditOrderCreate, domain.AuditInfo, req.Actor, map[string]any{
		"orderId":          order.ID,
		"paymentReference": order.Payment.Reference,
		"total":            order.Pricing.Total,
		"status":           string(order.Status),
	})
	if req.MerchantUID != "" && s.deps.Intents != nil {
		if err := s.deps.Intents.Delete(ctx, req.MerchantUID); err != nil {
			slog.WarnContext(ctx, "failed to drop checkout intent", "merchant_uid", req.MerchantUID, "err", err)
		}
	}
	s.deps.Metrics.OrderCreated(string(order.Status))
	s.deps.publish(ctx, domain.NewOrderEvent(domain.EventOrderCreated, order, "", order.CreatedAt))

	slog.InfoContext(ctx, "order created", "order_id", order.ID, "user_id", order.UserID, "status", order.Status, "total", order.Pricing.Total)
	return order, nil
}

// loadLines re-reads every cart product from the catalog.
func (s *CheckoutService) loadLines(ctx context.Context, cart []domain.CartItem) ([]pricing.Line, error) {
	lines := make([]pricing.Line, len(cart))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(catalogFetchLimit)
	for i, item := range cart {
		i, item := i, item
		g.Go(func() error {
			p, err := s.deps.Catalog.GetByID(gctx, item.ProductID)
			if err != nil {
				return err
			}
			if p == nil {
				return apperror.ErrProductMissing.WithMessage("product %s not found", item.ProductID)
			}
			lines[i] = pricing.Line{Product: p, Quantity: item.Quantity}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *CheckoutService) buildOrder(req CreateOrderRequest, cart []domain.CartItem, lines []pricing.Line, price domain.Pricing, v *infra.PaymentVerification, status domain.OrderStatus) *domain.Order {
	now := s.deps.Now()

	items := make([]domain.OrderItem, len(cart))
	for i, it := range cart {
		p := lines[i].Product
		item := domain.OrderItem{
			ProductID:       p.ID,
			Name:            p.Name,
			SKU:             p.SKU,
			Price:           p.Price,
			Quantity:        it.Quantity,
			SelectedOptions: append([]domain.SelectedOption(nil), it.SelectedOptions...),
		}
		if img, ok := p.PrimaryImage(); ok {
			item.ImageURL, item.ImagePublicID = img.URL, img.PublicID
		}
		items[i] = item
	}

	shipping := req.Shipping
	shipping.Carrier, shipping.TrackingNumber = "", ""
	shipping.ShippedAt, shipping.DeliveredAt = nil, nil

	payment := domain.Payment{
		Method:        v.Method,
		Status:        domain.PaymentPending,
		TransactionID: v.TransactionID,
		Reference:     req.PaymentReference,
		MerchantUID:   v.MerchantUID,
		Provider:      v.Provider,
	}
	if payment.Method == "" {
		payment.Method = req.PaymentMethod
	}
	if status == domain.StatusPaid {
		payment.Status = domain.PaymentPaid
		payment.PaidAt = v.PaidAt
		if payment.PaidAt == nil {
			payment.PaidAt = &now
		}
	}

	order := &domain.Order{
		ID:        s.deps.NewID(),
		UserID:    req.UserID,
		Status:    status,
		Items:     items,
		Pricing:   price,
		Shipping:  shipping,
		Payment:   payment,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	order.AppendHistory(status, "order created", req.Actor, now)
	return order
}

// RegisterIntent remembers what the shopper is about to pay for, so a webhook
// that beats the browser back can still create the order. The first shopper to
// register a merchantUid owns it until the intent expires or is consumed.
func (s *CheckoutService) RegisterIntent(ctx context.Context, userID string, intent domain.CheckoutIntent) (*domain.CheckoutIntent, error) {
	if s.deps.Intents == nil {
		return nil, errors.New("checkout intents are not configured")
	}
	if strings.TrimSpace(intent.MerchantUID) == "" {
		return nil, apperror.ErrInvalidPayment.WithMessage("merchantUid is required")
	}
	if !intent.Shipping.Complete() {
		return nil, apperror.ErrInvalidShippingInfo
	}
	intent.UserID = userID
	intent.CreatedAt = s.deps.Now()
	if err := s.deps.Intents.Save(ctx, &intent); err != nil {
		if errors.Is(err, apperror.ErrIntentTaken) {
			slog.WarnContext(ctx, "checkout intent claimed by another user",
				"merchant_uid", intent.MerchantUID, "user_id", userID)
		}
		return nil, err
	}
	return &intent, nil
}
