package services

import (
	"context"
	"errors"
	"testing"

	"bindery-orders/internal/apperror"
	"bindery-orders/internal/domain"
	"bindery-orders/internal/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) saveIntent(t *testing.T, userID string) {
	t.Helper()
	require.NoError(t, h.intents.Save(context.Background(), &domain.CheckoutIntent{
		MerchantUID:   testMerchant,
		UserID:        userID,
		Shipping:      testShipping(),
		PaymentMethod: "card",
	}))
}

func notice(status string) PaymentNotice {
	return PaymentNotice{ImpUID: testRef, MerchantUID: testMerchant, Status: status}
}

func TestHandlePaymentNotice_CreatesOrderFromIntent(t *testing.T) {
	h := newHarness(t)
	h.seedScenarioCart(testUserID)
	h.gateway.Settle(testRef, testMerchant, 23000)
	h.saveIntent(t, testUserID)
	ctx := context.Background()

	res, err := h.checkout.HandlePaymentNotice(ctx, notice("paid"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	require.NotEmpty(t, res.OrderID)

	o, err := h.store.FindByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, o.Status)
	assert.Equal(t, testUserID, o.UserID)
	assert.Equal(t, domain.RoleWebhook, o.History[0].Actor.Role)
	assert.Equal(t, 0, h.cartLen(t, testUserID))

	intent, err := h.intents.Get(ctx, testMerchant)
	require.NoError(t, err)
	assert.Nil(t, intent, "intent is consumed once the order exists")

	entries := h.store.AuditEntries(domain.AuditPaymentWebhook)
	require.Len(t, entries, 1)
	assert.Equal(t, OutcomeCreated, entries[0].Metadata["outcome"])

	// The gateway redelivers the same notice.
	res, err = h.checkout.HandlePaymentNotice(ctx, notice("paid"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, res.Outcome)
	assert.Equal(t, 1, h.store.OrderCount())
}

func TestHandlePaymentNotice_Unmatched(t *testing.T) {
	h := newHarness(t)
	h.gateway.Settle(testRef, testMerchant, 23000)

	res, err := h.checkout.HandlePaymentNotice(context.Background(), notice("paid"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnmatched, res.Outcome)
	assert.Equal(t, 0, h.store.OrderCount())

	entries := h.store.AuditEntries(domain.AuditPaymentUnmatched)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditWarn, entries[0].Level)
	assert.Empty(t, h.store.AuditEntries(domain.AuditPaymentWebhook))
}

func TestHandlePaymentNotice_UnmatchedWithoutIntentStore(t *testing.T) {
	h := newHarness(t)
	checkout := NewCheckoutService(Deps{
		Ledger: h.store, Carts: h.store, Audit: h.store, Tx: h.store, Catalog: h.store, Gateway: h.gateway,
	}, h.orders)

	res, err := checkout.HandlePaymentNotice(context.Background(), notice("paid"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnmatched, res.Outcome)
}

func TestHandlePaymentNotice_SettlesPendingOrder(t *testing.T) {
	h := newHarness(t)
	h.seedScenarioCart(testUserID)
	h.gateway.Put(infra.PaymentVerification{
		Reference: testRef, Status: infra.GatewaySettling, Amount: 23000, MerchantUID: testMerchant, Method: "vbank",
	})
	ctx := context.Background()

	pending, err := h.checkout.CreateOrder(ctx, CreateOrderRequest{
		UserID: testUserID, Shipping: testShipping(), PaymentReference: testRef, MerchantUID: testMerchant,
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, pending.Status)

	h.gateway.Settle(testRef, testMerchant, 23000)
	res, err := h.checkout.HandlePaymentNotice(ctx, notice("paid"))
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, res.Outcome)
	assert.Equal(t, pending.ID, res.OrderID)

	o, err := h.store.FindByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, o.Status)
	assert.Equal(t, domain.PaymentPaid, o.Payment.Status)
	assert.Equal(t, "fake-tx-"+testRef, o.Payment.TransactionID)
	require.Len(t, o.History, 2)
	assert.Equal(t, "payment settled (webhook)", o.History[1].Note)
}

func TestHandlePaymentNotice_GatewayCancellationCancelsOrder(t *testing.T) {
	h := newHarness(t)
	o := h.createPaidOrder(t)
	ctx := context.Background()

	// Refunded from the gateway console, outside this service.
	require.NoError(t, h.gateway.Cancel(ctx, testRef, "console"))

	res, err := h.checkout.HandlePaymentNotice(ctx, notice("cancelled"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Equal(t, 1, h.gateway.CancelCalls(testRef), "no second refund attempt")

	stored, err := h.store.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
	assert.Equal(t, domain.PaymentRefunded, stored.Payment.Status)

	// Cancelled is terminal; the redelivery changes nothing.
	res, err = h.checkout.HandlePaymentNotice(ctx, notice("cancelled"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, res.Outcome)
}

func TestHandlePaymentNotice_MerchantMismatchIsRejected(t *testing.T) {
	h := newHarness(t)
	h.createPaidOrder(t)

	res, err := h.checkout.HandlePaymentNotice(context.Background(), PaymentNotice{
		ImpUID: testRef, MerchantUID: "order_999", Status: "paid",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.NotEmpty(t, res.Reason)

	entries := h.store.AuditEntries(domain.AuditPaymentWebhook)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditWarn, entries[0].Level)
}

func TestHandlePaymentNotice_AmountMismatchIsRejected(t *testing.T) {
	h := newHarness(t)
	h.seedScenarioCart(testUserID)
	h.gateway.Settle(testRef, testMerchant, 100)
	h.saveIntent(t, testUserID)

	res, err := h.checkout.HandlePaymentNotice(context.Background(), notice("paid"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, 0, h.store.OrderCount())
	assert.Equal(t, 1, h.cartLen(t, testUserID))
	assert.Len(t, h.store.AuditEntries(domain.AuditPaymentAmountMismatch), 1)
}

func TestHandlePaymentNotice_RetryableErrorsPropagate(t *testing.T) {
	h := newHarness(t)
	h.createPaidOrder(t)
	h.gateway.FailVerify(apperror.ErrGatewayUnavailable)

	res, err := h.checkout.HandlePaymentNotice(context.Background(), notice("paid"))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, apperror.ErrGatewayUnavailable)
	assert.True(t, apperror.IsRetryable(err))
	assert.Empty(t, h.store.AuditEntries(domain.AuditPaymentWebhook))
}

func TestHandlePaymentNotice_UnexpectedErrorsPropagate(t *testing.T) {
	h := newHarness(t)
	h.createPaidOrder(t)
	boom := errors.New("socket closed")
	h.gateway.FailVerify(boom)

	_, err := h.checkout.HandlePaymentNotice(context.Background(), notice("paid"))
	assert.ErrorIs(t, err, boom)
}

func TestHandlePaymentNotice_RequiresIdentifiers(t *testing.T) {
	h := newHarness(t)

	for _, n := range []PaymentNotice{
		{MerchantUID: testMerchant},
		{ImpUID: testRef},
		{ImpUID: "  ", MerchantUID: " "},
	} {
		_, err := h.checkout.HandlePaymentNotice(context.Background(), n)
		assert.ErrorIs(t, err, apperror.ErrInvalidPayment)
	}
}

func TestHandlePaymentNotice_IntentCannotBeTakenOver(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedScenarioCart(testUserID)
	h.seedScenarioCart("intruder")
	h.gateway.Settle(testRef, testMerchant, 23000)

	_, err := h.checkout.RegisterIntent(ctx, testUserID, domain.CheckoutIntent{
		MerchantUID: testMerchant, Shipping: testShipping(), PaymentMethod: "card",
	})
	require.NoError(t, err)

	_, err = h.checkout.RegisterIntent(ctx, "intruder", domain.CheckoutIntent{
		MerchantUID: testMerchant, Shipping: testShipping(), PaymentMethod: "card",
	})
	require.ErrorIs(t, err, apperror.ErrIntentTaken)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))

	res, err := h.checkout.HandlePaymentNotice(ctx, notice("paid"))
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, res.Outcome)

	o, err := h.store.FindByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, testUserID, o.UserID)
	assert.Equal(t, 0, h.cartLen(t, testUserID))
	assert.Equal(t, 1, h.cartLen(t, "intruder"))

	// The shopper's own browser return now finds the order already made.
	_, err = h.checkout.CreateOrder(ctx, CreateOrderRequest{
		UserID: testUserID, Shipping: testShipping(), PaymentReference: testRef, MerchantUID: testMerchant,
	})
	assert.ErrorIs(t, err, apperror.ErrAlreadyProcessed)
	assert.Equal(t, 1, h.store.OrderCount())
}
