package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"bindery-orders/internal/domain"
	"bindery-orders/internal/infra"
	"bindery-orders/internal/infra/fakegateway"
	"bindery-orders/internal/pricing"
	"bindery-orders/internal/repository/memory"

	"github.com/stretchr/testify/require"
)

const (
	testUserID   = "user-1"
	testRef      = "imp_100"
	testMerchant = "order_100"
	testAdminID  = "admin-1"
)

var (
	customer = domain.Actor{ID: testUserID, Role: domain.RoleCustomer}
	admin    = domain.Actor{ID: testAdminID, Role: domain.RoleAdmin}
)

func testShipping() domain.ShippingInfo {
	return domain.ShippingInfo{
		RecipientName: "Kim Jiwoo",
		Phone:         "010-1234-5678",
		PostalCode:    "04524",
		AddressLine1:  "1 Sejong-daero",
		AddressLine2:  "Bindery studio",
	}
}

func testProduct(id string, price, shippingFee int64) *domain.Product {
	return &domain.Product{
		ID:          id,
		SKU:         "SKU-" + id,
		Name:        "Handbound " + id,
		Price:       price,
		ShippingFee: shippingFee,
		Images:      []domain.ProductImage{{URL: "https://img/" + id, PublicID: "img-" + id, IsPrimary: true}},
	}
}

func testOrder(id string, status domain.OrderStatus, payment domain.PaymentStatus) *domain.Order {
	return &domain.Order{
		ID:       id,
		UserID:   testUserID,
		Status:   status,
		Items:    []domain.OrderItem{{ProductID: "p1", Name: "Handbound p1", Price: 10000, Quantity: 2}},
		Pricing:  domain.Pricing{Subtotal: 20000, ShippingFee: 3000, Total: 23000, Currency: "KRW"},
		Shipping: testShipping(),
		Payment: domain.Payment{
			Method:      "card",
			Status:      payment,
			Reference:   "imp_" + id,
			MerchantUID: "order_" + id,
		},
		Version: 1,
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if evt, ok := data.(domain.OrderEvent); ok {
		p.events = append(p.events, evt)
	}
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// harness wires the services to the in-memory store and the fake gateway.
type harness struct {
	store    *memory.Store
	gateway  *fakegateway.Gateway
	intents  *memory.Intents
	pub      *recordingPublisher
	orders   *OrderService
	checkout *CheckoutService
}

type harnessOption func(*Deps)

func withLocker(wait time.Duration) harnessOption {
	return func(d *Deps) { d.Locker = memory.NewLocker(wait) }
}

func withGateway(gw infra.PaymentGateway) harnessOption {
	return func(d *Deps) { d.Gateway = gw }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		store:   memory.NewStore(),
		gateway: fakegateway.New(),
		intents: memory.NewIntents(time.Hour),
		pub:     &recordingPublisher{},
	}
	d := Deps{
		Ledger:    h.store,
		Carts:     h.store,
		Audit:     h.store,
		Tx:        h.store,
		Catalog:   h.store,
		Gateway:   h.gateway,
		Publisher: h.pub,
		Intents:   h.intents,
		Pricing:   pricing.Rules{Currency: "KRW", MaxShippingFee: 50000},
	}
	for _, o := range opts {
		o(&d)
	}
	h.orders = NewOrderService(d)
	h.checkout = NewCheckoutService(d, h.orders)
	return h
}

// seedScenarioCart puts one 10000 product (shipping 3000) twice in the cart.
func (h *harness) seedScenarioCart(userID string) {
	h.store.PutProduct(*testProduct("p1", 10000, 3000))
	h.store.AddCartItem(userID, "p1", 2)
}

func (h *harness) cartLen(t *testing.T, userID string) int {
	t.Helper()
	items, err := h.store.Read(context.Background(), userID)
	require.NoError(t, err)
	return len(items)
}

func (h *harness) createPaidOrder(t *testing.T) *domain.Order {
	t.Helper()
	h.seedScenarioCart(testUserID)
	h.gateway.Settle(testRef, testMerchant, 23000)
	o, err := h.checkout.CreateOrder(context.Background(), CreateOrderRequest{
		UserID:           testUserID,
		Shipping:         testShipping(),
		PaymentReference: testRef,
		MerchantUID:      testMerchant,
	})
	require.NoError(t, err)
	return o
}

func strPtr(s string) *string { return &s }
