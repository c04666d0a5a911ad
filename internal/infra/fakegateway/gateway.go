// Package fakegateway is an in-process PaymentGateway with the same contract as
// the PortOne client, for local runs and tests.
package fakegateway

import (
	"context"
	"sync"
	"time"

	"bindery-orders/internal/apperror"
	"bindery-orders/internal/infra"
)

type Gateway struct {
	mu       sync.Mutex
	payments map[string]infra.PaymentVerification

	verifyErr error
	cancelErr error

	verifyCalls int
	cancelCalls map[string]int
}

var _ infra.PaymentGateway = (*Gateway)(nil)

func New() *Gateway {
	return &Gateway{
		payments:    make(map[string]infra.PaymentVerification),
		cancelCalls: make(map[string]int),
	}
}

// Settle records a completed payment.
func (g *Gateway) Settle(reference, merchantUID string, amount int64) {
	now := time.Now().UTC()
	g.Put(infra.PaymentVerification{
		Reference:     reference,
		Status:        infra.GatewaySettled,
		Amount:        amount,
		Method:        "card",
		TransactionID: "fake-tx-" + reference,
		MerchantUID:   merchantUID,
		Provider:      "fake",
		PaidAt:        &now,
	})
}

func (g *Gateway) Put(p infra.PaymentVerification) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[p.Reference] = p
}

// FailVerify makes every Verify return err until cleared with nil.
func (g *Gateway) FailVerify(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyErr = err
}

// FailCancel makes every Cancel return err until cleared with nil.
func (g *Gateway) FailCancel(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelErr = err
}

func (g *Gateway) Verify(_ context.Context, reference string) (*infra.PaymentVerification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls++
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	p, ok := g.payments[reference]
	if !ok {
		return nil, apperror.ErrGatewayRejected.WithMessage("unknown payment %s", reference)
	}
	return &p, nil
}

func (g *Gateway) Cancel(_ context.Context, reference, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelCalls[reference]++
	if g.cancelErr != nil {
		return g.cancelErr
	}
	p, ok := g.payments[reference]
	if !ok {
		return apperror.ErrGatewayCancelFailed.WithMessage("unknown payment %s", reference)
	}
	if p.Status == infra.GatewayCancelled {
		return apperror.ErrGatewayCancelFailed.WithMessage("payment %s is already cancelled", reference)
	}
	p.Status = infra.GatewayCancelled
	g.payments[reference] = p
	return nil
}

func (g *Gateway) VerifyCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verifyCalls
}

func (g *Gateway) CancelCalls(reference string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancelCalls[reference]
}
