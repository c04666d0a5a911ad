package services

import (
	"context"
	"log/slog"
	"time"

	"bindery-orders/internal/domain"
	"bindery-orders/internal/infra"
	"bindery-orders/internal/metrics"
	"bindery-orders/internal/pricing"
	"bindery-orders/internal/repository"

	"github.com/google/uuid"
)

// Deps wires the order core to its collaborators. Publisher, Locker, Intents and
// Metrics are optional.
type Deps struct {
	Ledger  repository.OrderLedger
	Carts   repository.CartStore
	Audit   repository.AuditLog
	Tx      repository.Transactor
	Catalog infra.ProductCatalog
	Gateway infra.PaymentGateway

	Publisher infra.EventPublisher
	Locker    infra.Locker
	Intents   infra.IntentStore
	Metrics   *metrics.Metrics

	Pricing pricing.Rules

	Now   func() time.Time
	NewID func() string
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.Pricing.Currency == "" {
		d.Pricing.Currency = "KRW"
	}
	return d
}

type ipKey struct{}

// WithClientIP records the caller address for audit entries.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey{}, ip)
}

func clientIP(ctx context.Context) string {
	ip, _ := ctx.Value(ipKey{}).(string)
	return ip
}

// audit never fails the caller.
func (d *Deps) audit(ctx context.Context, action string, level domain.AuditLevel, actor domain.Actor, metadata map[string]any) {
	entry := &domain.AuditEntry{
		Action:    action,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		IP:        clientIP(ctx),
		Level:     level,
		Metadata:  metadata,
		CreatedAt: d.Now(),
	}
	if err := d.Audit.Append(ctx, entry); err != nil {
		slog.WarnContext(ctx, "audit append failed", "action", action, "err", err)
	}
}

// publish never fails the caller.
func (d *Deps) publish(ctx context.Context, evt domain.OrderEvent) {
	if d.Publisher == nil {
		return
	}
	if err := d.Publisher.Publish(ctx, evt.Type, evt); err != nil {
		slog.WarnContext(ctx, "failed to publish event", "event", evt.Type, "order_id", evt.OrderID, "err", err)
	}
}

func (d *Deps) lock(ctx context.Context, key string) (func(), error) {
	if d.Locker == nil {
		return func() {}, nil
	}
	return d.Locker.Acquire(ctx, key)
}
