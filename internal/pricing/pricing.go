// Package pricing computes the authoritative order total from catalog data.
package pricing

import (
	"bindery-orders/internal/apperror"
	"bindery-orders/internal/domain"
)

// Line is one cart line joined with its current catalog product.
type Line struct {
	Product  *domain.Product
	Quantity int
}

type Rules struct {
	Currency       string
	MaxShippingFee int64
}

// Compute prices lines from catalog data only. The shipping fee is the largest
// per-product fee in the cart since an order ships as one parcel.
func Compute(lines []Line, discount int64, rules Rules) (domain.Pricing, error) {
	if len(lines) == 0 {
		return domain.Pricing{}, apperror.ErrEmptyCart
	}

	var subtotal, shippingFee int64
	for _, l := range lines {
		if l.Product == nil {
			return domain.Pricing{}, apperror.ErrProductMissing
		}
		if l.Quantity < 1 {
			return domain.Pricing{}, apperror.ErrInvalidPricing.WithMessage("quantity for %s must be at least 1", l.Product.ID)
		}
		if l.Product.Price < 0 || l.Product.ShippingFee < 0 {
			return domain.Pricing{}, apperror.ErrInvalidPricing.WithMessage("catalog price for %s is negative", l.Product.ID)
		}
		subtotal += l.Product.Price * int64(l.Quantity)
		if l.Product.ShippingFee > shippingFee {
			shippingFee = l.Product.ShippingFee
		}
	}

	if discount < 0 || discount > subtotal {
		return domain.Pricing{}, apperror.ErrInvalidPricing.WithMessage("discount %d outside [0, %d]", discount, subtotal)
	}
	if rules.MaxShippingFee > 0 && shippingFee > rules.MaxShippingFee {
		return domain.Pricing{}, apperror.ErrInvalidPricing.WithMessage("shipping fee %d exceeds limit %d", shippingFee, rules.MaxShippingFee)
	}

	return domain.Pricing{
		Subtotal:    subtotal,
		Discount:    discount,
		ShippingFee: shippingFee,
		Total:       subtotal - discount + shippingFee,
		Currency:    rules.Currency,
	}, nil
}

// DiffersFromHint reports whether the storefront displayed a different total.
func DiffersFromHint(p domain.Pricing, hint *domain.PricingHint) bool {
	if hint == nil {
		return false
	}
	return hint.Total != p.Total || hint.Subtotal != p.Subtotal || hint.ShippingFee != p.ShippingFee || hint.Discount != p.Discount
}
