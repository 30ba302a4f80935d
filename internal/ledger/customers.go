package ledger

import "invoicedesk/pkg/models"

// aggregateCustomers folds one invoice's customer identity into the customer
// collection. Unidentified customers (empty or "Unknown") leave no record.
// Matching is by exact name: two customers sharing a display name merge into
// one aggregate.
func (l *Ledger) aggregateCustomers(inv *models.Invoice) {
	name := inv.CustomerName
	if name == "" || name == "Unknown" {
		l.log.Debug().Msg("No identifiable customer on invoice, skipping aggregation")
		return
	}

	if existing, ok := l.customersByName[name]; ok {
		existing.TotalPurchaseAmount += inv.TotalAmount
		l.log.Debug().
			Str("customer", name).
			Float64("total_purchase", existing.TotalPurchaseAmount).
			Msg("Accumulated customer purchase total")
		return
	}

	c := &models.Customer{
		ID:                  NewCustomerID(),
		Name:                name,
		Phone:               copyStringPtr(inv.CustomerPhone),
		TotalPurchaseAmount: inv.TotalAmount,
	}
	l.customers = append(l.customers, c)
	l.customersByName[name] = c
	l.customersByID[c.ID] = c
	l.log.Debug().
		Str("customer", name).
		Str("id", c.ID).
		Msg("Created customer from invoice")
}
