package models

// Invoice is the canonical record built from one extracted document.
// All monetary fields are plain currency amounts (not cents); two-decimal
// rounding is applied by the ledger whenever it re-derives a total.
type Invoice struct {
	// Identity
	InvoiceID    string `json:"invoiceId"`    // Stable identity; may be empty if unextracted
	SerialNumber string `json:"serialNumber"` // Human-readable invoice number

	// Customer identity (name-keyed, see Customer)
	CustomerName  string  `json:"customerName"`
	CustomerPhone *string `json:"customerPhone"`

	// Core fields
	Date        string  `json:"date"` // As printed on the document (string, not parsed)
	TotalAmount float64 `json:"totalAmount"`
	TaxAmount   float64 `json:"taxAmount"`

	// Optional extras
	TotalInWords *string      `json:"totalInWords"`
	BankDetails  *BankDetails `json:"bankDetails"`

	// Line items, in document order
	Items []InvoiceItem `json:"items"`

	// IsConsistent reports whether TotalAmount matches the sum of item
	// amounts within a tolerance of 1 (absorbs rounding differences).
	IsConsistent bool `json:"isConsistent"`

	// MissingFields lists field names the extractor could not populate.
	// It only ever shrinks: edits remove entries, the ledger never adds any.
	MissingFields []string `json:"missingFields"`
}

// InvoiceItem is one line on an invoice. Items live embedded in their
// invoice; they are not a top-level collection.
type InvoiceItem struct {
	ProductID string  `json:"productId"` // Key into the Product collection
	ItemName  string  `json:"itemName"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	TaxAmount float64 `json:"taxAmount"`
	Amount    float64 `json:"amount"` // unitPrice*quantity + taxAmount after any cascade
}

// BankDetails carries the payment coordinates printed on an invoice.
type BankDetails struct {
	BankName      *string `json:"bankName"`
	AccountNumber *string `json:"accountNumber"`
	IFSC          *string `json:"ifsc"`
	Branch        *string `json:"branch"`
}
