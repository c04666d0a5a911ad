package domain

import "time"

type AuditLevel string

const (
	AuditInfo  AuditLevel = "info"
	AuditWarn  AuditLevel = "warn"
	AuditError AuditLevel = "error"
)

const (
	AuditOrderCreate             = "order.create"
	AuditOrderCancel             = "order.cancel"
	AuditOrderStatus             = "order.status"
	AuditPaymentAmountMismatch   = "payment.amount_mismatch"
	AuditPaymentWebhook          = "payment.webhook"
	AuditPaymentUnmatched        = "payment.unmatched"
	AuditPaymentOrphaned         = "payment.orphaned"
	// The gateway refunded the payment but the order still reads paid.
	AuditPaymentRefundUnrecorded = "payment.refund_unrecorded"
)

type AuditEntry struct {
	ID        uint64         `json:"id" gorm:"primaryKey;autoIncrement"`
	Action    string         `json:"action" gorm:"size:64;not null;index"`
	ActorID   string         `json:"actorId" gorm:"size:64"`
	ActorRole string         `json:"actorRole" gorm:"size:16"`
	IP        string         `json:"ip" gorm:"size:64"`
	Level     AuditLevel     `json:"level" gorm:"size:8;not null"`
	Metadata  map[string]any `json:"metadata" gorm:"serializer:json;type:json"`
	CreatedAt time.Time      `json:"createdAt" gorm:"autoCreateTime"`
}
