package domain

import "time"

// PricingHint is what the storefront displayed. It is logged, never trusted.
type PricingHint struct {
	Subtotal    int64  `json:"subtotal"`
	Discount    int64  `json:"discount"`
	ShippingFee int64  `json:"shippingFee"`
	Total       int64  `json:"total"`
	Currency    string `json:"currency"`
}

// CheckoutIntent is registered before the payment window opens so that a gateway
// webhook can finalize the order for the right shopper.
type CheckoutIntent struct {
	MerchantUID   string       `json:"merchantUid"`
	UserID        string       `json:"userId"`
	Shipping      ShippingInfo `json:"shipping"`
	PaymentMethod string       `json:"paymentMethod"`
	PricingHint   *PricingHint `json:"pricingHint,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
}
