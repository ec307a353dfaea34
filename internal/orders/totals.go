package orders

import (
	"github.com/safar/storefront-api/internal/config"
	"github.com/shopspring/decimal"
)

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

// LineSubtotal is round(unitPrice * quantity, 2).
func LineSubtotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// CalculateTotals rounds to cents after every step. Shipping is free from the threshold upwards,
// inclusive.
func CalculateTotals(lineSubtotals []decimal.Decimal, shop config.ShopConfig) Totals {
	subtotal := decimal.Zero
	for _, s := range lineSubtotals {
		subtotal = subtotal.Add(s.Round(2))
	}
	subtotal = subtotal.Round(2)

	tax := subtotal.Mul(shop.TaxRate).Round(2)

	shipping := shop.ShippingFee.Round(2)
	if subtotal.GreaterThanOrEqual(shop.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Total:    subtotal.Add(tax).Add(shipping).Round(2),
	}
}
