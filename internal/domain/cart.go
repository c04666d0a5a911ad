package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

type CartItem struct {
	ID              uint64           `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID          string           `json:"userId" gorm:"size:64;not null;index"`
	ProductID       string           `json:"productId" gorm:"size:64;not null"`
	Quantity        int              `json:"quantity" gorm:"not null"`
	SelectedOptions []SelectedOption `json:"selectedOptions" gorm:"serializer:json;type:json"`
	UpdatedAt       time.Time        `json:"updatedAt" gorm:"autoUpdateTime"`
}

// CartFingerprint identifies cart contents independent of row order, so a checkout
// can tell whether the cart it priced is still the cart it is about to clear.
func CartFingerprint(items []CartItem) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		opts := make([]string, 0, len(it.SelectedOptions))
		for _, o := range it.SelectedOptions {
			opts = append(opts, o.Name+"="+o.Value)
		}
		sort.Strings(opts)
		lines = append(lines, it.ProductID+"x"+strconv.Itoa(it.Quantity)+"["+strings.Join(opts, ",")+"]")
	}
	sort.Strings(lines)
	return strings.Join(lines, ";")
}
