package ledger

import (
	"regexp"

	"invoicedesk/pkg/models"
)

// serviceChargePattern classifies line items that represent fees rather than
// merchandise. Service charges bill work, not goods, so they never become
// Product records and never contribute quantity.
var serviceChargePattern = regexp.MustCompile(`(?i)shipping|charge|making|fee`)

// IsServiceCharge reports whether a line-item name denotes a service charge.
func IsServiceCharge(name string) bool {
	return serviceChargePattern.MatchString(name)
}

// aggregateProducts folds one invoice's line items into the product
// collection, in item order. Matching is by exact name. A repeat occurrence
// with a positive unit price overwrites the unit economics (prices drift
// over time, the latest invoice is authoritative) while quantity accumulates
// as a running sales volume.
func (l *Ledger) aggregateProducts(inv *models.Invoice) {
	for _, item := range inv.Items {
		name := item.ItemName
		if name == "" || IsServiceCharge(name) {
			l.log.Debug().Str("item", name).Msg("Skipping non-merchandise line item")
			continue
		}

		if existing, ok := l.productsByName[name]; ok {
			if item.UnitPrice > 0 {
				existing.UnitPrice = item.UnitPrice
				if item.TaxAmount != 0 {
					existing.Tax = item.TaxAmount
				}
				existing.PriceWithTax = existing.UnitPrice + existing.Tax
			}
			existing.Quantity += item.Quantity
			l.log.Debug().
				Str("product", name).
				Float64("unit_price", existing.UnitPrice).
				Float64("quantity", existing.Quantity).
				Msg("Updated existing product")
			continue
		}

		id := item.ProductID
		if id == "" {
			id = NewProductID()
		}
		p := &models.Product{
			ID:           id,
			Name:         name,
			UnitPrice:    item.UnitPrice,
			Tax:          item.TaxAmount,
			PriceWithTax: item.UnitPrice + item.TaxAmount,
			Quantity:     item.Quantity,
		}
		l.products = append(l.products, p)
		l.productsByName[name] = p
		l.productsByID[p.ID] = p
		l.log.Debug().
			Str("product", name).
			Str("id", p.ID).
			Msg("Created product from line item")
	}
}
