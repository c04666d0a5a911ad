package domain

type ProductImage struct {
	URL       string `json:"url"`
	PublicID  string `json:"publicId"`
	IsPrimary bool   `json:"isPrimary"`
}

// Product is the catalog's current view of a product, prices in minor units.
type Product struct {
	ID          string         `json:"id"`
	SKU         string         `json:"sku"`
	Name        string         `json:"name"`
	Price       int64          `json:"price"`
	ShippingFee int64          `json:"shippingFee"`
	Images      []ProductImage `json:"images"`
}

func (p *Product) PrimaryImage() (ProductImage, bool) {
	if len(p.Images) == 0 {
		return ProductImage{}, false
	}
	for _, img := range p.Images {
		if img.IsPrimary {
			return img, true
		}
	}
	return p.Images[0], true
}
