package http

import (
	"time"

	"bindery-orders/internal/domain"
	"bindery-orders/internal/services"
)

type ShippingRequest struct {
	RecipientName  string `json:"recipientName" binding:"required"`
	Phone          string `json:"phone" binding:"required"`
	PostalCode     string `json:"postalCode" binding:"required"`
	AddressLine1   string `json:"addressLine1" binding:"required"`
	AddressLine2   string `json:"addressLine2"`
	RequestMessage string `json:"requestMessage" binding:"max=255"`
}

func (s ShippingRequest) toDomain() domain.ShippingInfo {
	return domain.ShippingInfo{
		RecipientName:  s.RecipientName,
		Phone:          s.Phone,
		PostalCode:     s.PostalCode,
		AddressLine1:   s.AddressLine1,
		AddressLine2:   s.AddressLine2,
		RequestMessage: s.RequestMessage,
	}
}

// CreateOrderRequest is sent by the storefront when the shopper returns from the
// payment window. Pricing is what the page displayed and is only logged.
type CreateOrderRequest struct {
	Shipping      ShippingRequest     `json:"shipping" binding:"required"`
	ImpUID        string              `json:"impUid" binding:"required"`
	MerchantUID   string              `json:"merchantUid"`
	PaymentMethod string              `json:"paymentMethod"`
	Pricing       *domain.PricingHint `json:"pricing"`
}

type CreateIntentRequest struct {
	MerchantUID   string              `json:"merchantUid" binding:"required"`
	Shipping      ShippingRequest     `json:"shipping" binding:"required"`
	PaymentMethod string              `json:"paymentMethod"`
	Pricing       *domain.PricingHint `json:"pricing"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

type ShippingPatchRequest struct {
	Carrier        *string `json:"carrier" binding:"omitempty,max=64"`
	TrackingNumber *string `json:"trackingNumber" binding:"omitempty,max=64"`
}

type UpdateStatusRequest struct {
	Status   string                `json:"status" binding:"required"`
	Shipping *ShippingPatchRequest `json:"shipping"`
	Note     string                `json:"note" binding:"max=255"`
}

func (r UpdateStatusRequest) patch() *services.ShippingPatch {
	if r.Shipping == nil {
		return nil
	}
	return &services.ShippingPatch{Carrier: r.Shipping.Carrier, TrackingNumber: r.Shipping.TrackingNumber}
}

// WebhookRequest is the gateway's notification body.
type WebhookRequest struct {
	ImpUID      string `json:"imp_uid"`
	MerchantUID string `json:"merchant_uid"`
	Status      string `json:"status"`
}

type PaymentResponse struct {
	Method        string               `json:"method"`
	Status        domain.PaymentStatus `json:"status"`
	TransactionID string               `json:"transactionId,omitempty"`
	PaidAt        *time.Time           `json:"paidAt,omitempty"`
}

type OrderResponse struct {
	ID        string                `json:"id"`
	Status    domain.OrderStatus    `json:"status"`
	CreatedAt time.Time             `json:"createdAt"`
	Items     []domain.OrderItem    `json:"items"`
	Pricing   domain.Pricing        `json:"pricing"`
	Shipping  domain.ShippingInfo   `json:"shipping"`
	Payment   PaymentResponse       `json:"payment"`
	History   []domain.HistoryEntry `json:"history,omitempty"`
}

func toOrderResponse(o *domain.Order) OrderResponse {
	return OrderResponse{
		ID:        o.ID,
		Status:    o.Status,
		CreatedAt: o.CreatedAt,
		Items:     o.Items,
		Pricing:   o.Pricing,
		Shipping:  o.Shipping,
		Payment: PaymentResponse{
			Method:        o.Payment.Method,
			Status:        o.Payment.Status,
			TransactionID: o.Payment.TransactionID,
			PaidAt:        o.Payment.PaidAt,
		},
		History: o.History,
	}
}

func toOrderResponses(orders []domain.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderResponse(&orders[i]))
	}
	return out
}

type OrderPageResponse struct {
	Orders   []OrderResponse `json:"orders"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}
