package domain

import "time"

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

type OrderEvent struct {
	Type           string      `json:"type"`
	OrderID        string      `json:"orderId"`
	UserID         string      `json:"userId"`
	Status         OrderStatus `json:"status"`
	PreviousStatus OrderStatus `json:"previousStatus,omitempty"`
	Total          int64       `json:"total"`
	Currency       string      `json:"currency"`
	OccurredAt     time.Time   `json:"occurredAt"`
}

func NewOrderEvent(eventType string, o *Order, previous OrderStatus, at time.Time) OrderEvent {
	return OrderEvent{
		Type:           eventType,
		OrderID:        o.ID,
		UserID:         o.UserID,
		Status:         o.Status,
		PreviousStatus: previous,
		Total:          o.Pricing.Total,
		Currency:       o.Pricing.Currency,
		OccurredAt:     at,
	}
}
