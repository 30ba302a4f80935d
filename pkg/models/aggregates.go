package models

// Product is an aggregate derived from invoice line items: one record per
// distinct merchandise item name across all invoices. Unit economics follow
// the most recent invoice that priced the item; Quantity is a running total.
type Product struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"` // Dedup key (exact match)
	UnitPrice    float64 `json:"unitPrice"`
	Tax          float64 `json:"tax"`
	PriceWithTax float64 `json:"priceWithTax"` // Always UnitPrice + Tax
	Quantity     float64 `json:"quantity"`     // Summed across all referencing invoices
}

// Customer is an aggregate keyed by display name: one record per distinct
// customer name across all invoices. Two customers sharing a name are merged.
type Customer struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"` // Dedup key (exact match)
	Phone               *string `json:"phone"`
	TotalPurchaseAmount float64 `json:"totalPurchaseAmount"`
}
