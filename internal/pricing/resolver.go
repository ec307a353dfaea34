// Package pricing turns vendor base prices into sell prices using markup rules.
package pricing

import (
	"github.com/safar/storefront-api/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Markup returns the percentage that applies to a product in categoryID. An active rule for
// the category wins over the global rule; without either the markup is zero. When several
// active rules share a scope and target, the highest priority wins.
func Markup(categoryID *int64, rules []models.PricingRule) decimal.Decimal {
	var global, category *models.PricingRule

	for i := range rules {
		rule := &rules[i]
		if !rule.IsActive {
			continue
		}

		switch rule.Scope {
		case models.PricingScopeGlobal:
			if global == nil || rule.Priority > global.Priority {
				global = rule
			}
		case models.PricingScopeCategory:
			if categoryID == nil || rule.EntityID == nil || *rule.EntityID != *categoryID {
				continue
			}
			if category == nil || rule.Priority > category.Priority {
				category = rule
			}
		}
	}

	switch {
	case category != nil:
		return category.MarkupValue
	case global != nil:
		return global.MarkupValue
	default:
		return decimal.Zero
	}
}

// Resolve computes round(basePrice * (1 + markup/100), 2).
func Resolve(basePrice decimal.Decimal, categoryID *int64, rules []models.PricingRule) decimal.Decimal {
	return Apply(basePrice, Markup(categoryID, rules))
}

func Apply(basePrice, markup decimal.Decimal) decimal.Decimal {
	return basePrice.Mul(decimal.NewFromInt(1).Add(markup.Div(hundred))).Round(2)
}
