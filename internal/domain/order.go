package domain

import (
	"strings"
	"time"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentCancelled PaymentStatus = "cancelled"
)

type SelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// OrderItem is frozen at checkout and never re-read from the catalog.
type OrderItem struct {
	ProductID       string           `json:"productId"`
	Name            string           `json:"name"`
	SKU             string           `json:"sku"`
	Price           int64            `json:"price"`
	Quantity        int              `json:"quantity"`
	ImageURL        string           `json:"imageUrl"`
	ImagePublicID   string           `json:"imagePublicId"`
	SelectedOptions []SelectedOption `json:"selectedOptions"`
}

// Pricing amounts are in the store currency's minor unit.
type Pricing struct {
	Subtotal    int64  `json:"subtotal" gorm:"not null"`
	Discount    int64  `json:"discount" gorm:"not null"`
	ShippingFee int64  `json:"shippingFee" gorm:"not null"`
	Total       int64  `json:"total" gorm:"not null"`
	Currency    string `json:"currency" gorm:"size:3;not null"`
}

// Consistent reports whether total == subtotal - discount + shippingFee.
func (p Pricing) Consistent() bool {
	return p.Total == p.Subtotal-p.Discount+p.ShippingFee
}

type ShippingInfo struct {
	RecipientName  string     `json:"recipientName" gorm:"size:100"`
	Phone          string     `json:"phone" gorm:"size:32"`
	PostalCode     string     `json:"postalCode" gorm:"size:16"`
	AddressLine1   string     `json:"addressLine1" gorm:"size:255"`
	AddressLine2   string     `json:"addressLine2" gorm:"size:255"`
	RequestMessage string     `json:"requestMessage" gorm:"size:255"`
	Carrier        string     `json:"carrier" gorm:"size:64"`
	TrackingNumber string     `json:"trackingNumber" gorm:"size:64"`
	ShippedAt      *time.Time `json:"shippedAt,omitempty"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty"`
}

// Complete reports whether every field required to ship a parcel is present.
func (s ShippingInfo) Complete() bool {
	for _, v := range []string{s.RecipientName, s.Phone, s.PostalCode, s.AddressLine1} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

type Payment struct {
	Method        string        `json:"method" gorm:"size:32"`
	Status        PaymentStatus `json:"status" gorm:"size:16;not null"`
	TransactionID string        `json:"transactionId" gorm:"size:128"`
	// Reference is the gateway-issued payment id (imp_uid) and the idempotency key.
	Reference   string     `json:"-" gorm:"size:128;not null;uniqueIndex:idx_orders_payment_reference"`
	MerchantUID string     `json:"-" gorm:"size:128;index"`
	Provider    string     `json:"provider" gorm:"size:32"`
	PaidAt      *time.Time `json:"paidAt,omitempty"`
}

type Actor struct {
	ID   string `json:"id,omitempty"`
	Role string `json:"role"`
}

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
	RoleWebhook  = "webhook"
	RoleSystem   = "system"
)

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

func (a Actor) String() string {
	if a.ID == "" {
		return a.Role
	}
	return a.Role + ":" + a.ID
}

type HistoryEntry struct {
	Status     OrderStatus `json:"status"`
	Note       string      `json:"note"`
	Actor      Actor       `json:"actor"`
	OccurredAt time.Time   `json:"occurredAt"`
}

type Order struct {
	ID        string         `json:"id" gorm:"primaryKey;size:36"`
	UserID    string         `json:"userId" gorm:"size:64;not null;index"`
	Status    OrderStatus    `json:"status" gorm:"size:16;not null"`
	Items     []OrderItem    `json:"items" gorm:"serializer:json;type:json"`
	Pricing   Pricing        `json:"pricing" gorm:"embedded;embeddedPrefix:pricing_"`
	Shipping  ShippingInfo   `json:"shipping" gorm:"embedded;embeddedPrefix:shipping_"`
	Payment   Payment        `json:"payment" gorm:"embedded;embeddedPrefix:payment_"`
	History   []HistoryEntry `json:"history" gorm:"serializer:json;type:json"`
	Version   int            `json:"-" gorm:"not null;default:1"`
	CreatedAt time.Time      `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updatedAt" gorm:"autoUpdateTime"`
}

// Clone returns a deep copy; callers mutate the copy and persist it only on success.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Items = make([]OrderItem, len(o.Items))
	for i, it := range o.Items {
		it.SelectedOptions = append([]SelectedOption(nil), it.SelectedOptions...)
		cp.Items[i] = it
	}
	cp.History = append([]HistoryEntry(nil), o.History...)
	cp.Shipping.ShippedAt = cloneTime(o.Shipping.ShippedAt)
	cp.Shipping.DeliveredAt = cloneTime(o.Shipping.DeliveredAt)
	cp.Payment.PaidAt = cloneTime(o.Payment.PaidAt)
	return &cp
}

func (o *Order) AppendHistory(status OrderStatus, note string, actor Actor, at time.Time) {
	o.History = append(o.History, HistoryEntry{
		Status:     status,
		Note:       note,
		Actor:      actor,
		OccurredAt: at,
	})
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
