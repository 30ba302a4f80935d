// Package ledger maintains three denormalized, mutually consistent
// collections derived from a stream of invoice extraction results:
// invoices, products and customers.
//
// The Ledger is the single owner of all three collections. Raw extraction
// payloads enter through Ingest, which normalizes them into canonical
// invoices and folds their line items into the product and customer
// aggregates. Direct edits to any one entity enter through the Edit entry
// points, which recompute dependent fields across the other collections so
// the three views never diverge.
//
// State is process-lifetime only: there is no persistence, and records are
// never deleted. All entry points are serialized by an internal mutex; one
// ingestion or edit runs to completion before the next is observed.
package ledger

import (
	"math"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"invoicedesk/internal/logger"
	"invoicedesk/pkg/models"
)

// consistencyTolerance is the maximum absolute difference between an
// invoice's stated total and the sum of its item amounts for the invoice to
// be flagged consistent. A tolerance of 1 absorbs rounding differences
// between the printed total and per-line arithmetic.
const consistencyTolerance = 1.0

// Ledger owns the invoice, product and customer collections. Create one
// with New; the zero value is not usable.
type Ledger struct {
	mu sync.Mutex

	invoices  []*models.Invoice
	products  []*models.Product
	customers []*models.Customer

	// Lookup indexes. Slices above keep insertion order, which is the
	// iteration order exposed to readers; the maps only serve matching.
	invoicesByID    map[string]*models.Invoice
	productsByID    map[string]*models.Product
	productsByName  map[string]*models.Product
	customersByID   map[string]*models.Customer
	customersByName map[string]*models.Customer

	log zerolog.Logger
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{
		invoicesByID:    make(map[string]*models.Invoice),
		productsByID:    make(map[string]*models.Product),
		productsByName:  make(map[string]*models.Product),
		customersByID:   make(map[string]*models.Customer),
		customersByName: make(map[string]*models.Customer),
		log:             logger.WithComponent("ledger"),
	}
}

// Ingest accepts one raw extraction payload, normalizes it into a canonical
// invoice, appends it to the invoice collection and updates the product and
// customer aggregates from its line items. The whole operation is one
// uninterruptible unit. The appended invoice is returned as a copy.
func (l *Ledger) Ingest(raw map[string]any) models.Invoice {
	l.mu.Lock()
	defer l.mu.Unlock()

	inv := Normalize(raw)
	l.invoices = append(l.invoices, inv)
	if inv.InvoiceID != "" {
		if _, taken := l.invoicesByID[inv.InvoiceID]; !taken {
			l.invoicesByID[inv.InvoiceID] = inv
		}
	}

	l.aggregateProducts(inv)
	l.aggregateCustomers(inv)

	l.log.Info().
		Str("invoice_id", inv.InvoiceID).
		Str("customer", inv.CustomerName).
		Float64("total", inv.TotalAmount).
		Int("items", len(inv.Items)).
		Int("invoices", len(l.invoices)).
		Int("products", len(l.products)).
		Int("customers", len(l.customers)).
		Msg("Invoice ingested")

	return copyInvoice(inv)
}

// ProductUpdate is a partial edit of a product. Nil fields are left
// unchanged.
type ProductUpdate struct {
	Name      *string
	UnitPrice *float64
	Tax       *float64
}

// EditProduct applies updates to the product with the given id and cascades
// the change through the other collections: every invoice item referencing
// the product takes the new name and unit economics and re-derives its
// amount, every invoice re-derives its totals and consistency flag from its
// items, and every customer's purchase total is re-summed from scratch.
//
// Returns false, changing nothing, when no product has the id. Callers that
// hold an id from a current read may ignore the result.
func (l *Ledger) EditProduct(id string, updates ProductUpdate) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.productsByID[id]
	if !ok {
		l.log.Debug().Str("id", id).Msg("EditProduct: unknown product id, no-op")
		return false
	}

	if updates.Name != nil && *updates.Name != p.Name {
		if l.productsByName[p.Name] == p {
			delete(l.productsByName, p.Name)
		}
		p.Name = *updates.Name
		if _, taken := l.productsByName[p.Name]; !taken {
			l.productsByName[p.Name] = p
		}
	}
	if updates.UnitPrice != nil {
		p.UnitPrice = *updates.UnitPrice
	}
	if updates.Tax != nil {
		p.Tax = *updates.Tax
	}
	p.PriceWithTax = p.UnitPrice + p.Tax

	// Push the new product values into every referencing item, then
	// re-derive every invoice's totals and consistency flag from its
	// current items.
	for _, inv := range l.invoices {
		var subtotal, taxSum float64
		for i := range inv.Items {
			item := &inv.Items[i]
			if item.ProductID == id {
				item.ItemName = p.Name
				item.UnitPrice = p.UnitPrice
				item.TaxAmount = p.Tax
				item.Amount = p.UnitPrice*item.Quantity + p.Tax
			}
			subtotal += item.UnitPrice * item.Quantity
			taxSum += item.TaxAmount
		}
		newTotal := subtotal + taxSum
		inv.TotalAmount = round2(newTotal)
		inv.TaxAmount = round2(taxSum)
		inv.IsConsistent = math.Abs(inv.TotalAmount-newTotal) <= consistencyTolerance
	}

	// Customer totals are re-summed in full from the invoices that carry
	// each customer's name.
	for _, c := range l.customers {
		var sum float64
		for _, inv := range l.invoices {
			if inv.CustomerName == c.Name {
				sum += inv.TotalAmount
			}
		}
		c.TotalPurchaseAmount = round2(sum)
	}

	l.log.Info().
		Str("id", id).
		Str("name", p.Name).
		Float64("unit_price", p.UnitPrice).
		Float64("tax", p.Tax).
		Msg("Product edited, cascade complete")
	return true
}

// CustomerUpdate is a partial edit of a customer. Nil fields are left
// unchanged.
type CustomerUpdate struct {
	Name  *string
	Phone *string
}

// EditCustomer applies updates to the customer with the given id. When the
// name changes, every invoice that carried the old name is renamed to the
// new one: customer identity propagates forward by name match, invoices do
// not store a customer id.
//
// Returns false, changing nothing, when no customer has the id.
func (l *Ledger) EditCustomer(id string, updates CustomerUpdate) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.customersByID[id]
	if !ok {
		l.log.Debug().Str("id", id).Msg("EditCustomer: unknown customer id, no-op")
		return false
	}

	if updates.Phone != nil {
		phone := *updates.Phone
		c.Phone = &phone
	}
	if updates.Name != nil && *updates.Name != c.Name {
		oldName := c.Name
		if l.customersByName[oldName] == c {
			delete(l.customersByName, oldName)
		}
		c.Name = *updates.Name
		if _, taken := l.customersByName[c.Name]; !taken {
			l.customersByName[c.Name] = c
		}

		renamed := 0
		for _, inv := range l.invoices {
			if inv.CustomerName == oldName {
				inv.CustomerName = c.Name
				renamed++
			}
		}
		l.log.Info().
			Str("id", id).
			Str("old_name", oldName).
			Str("new_name", c.Name).
			Int("invoices_renamed", renamed).
			Msg("Customer renamed, invoices updated")
	}

	return true
}

// InvoiceUpdate is a partial edit of an invoice's scalar fields. Items are
// never touched by an invoice edit. Nil fields are left unchanged.
type InvoiceUpdate struct {
	SerialNumber  *string
	Date          *string
	CustomerName  *string
	CustomerPhone *string
	TotalAmount   *float64
	TaxAmount     *float64
	TotalInWords  *string
}

// EditInvoice applies updates to the invoice whose invoiceId matches id,
// then re-checks the consistency flag using the edited total against the
// unchanged item amounts. Fields the extractor originally reported missing
// are removed from MissingFields once an edit supplies them.
//
// An invoice edit does not cascade: product and customer aggregates are left
// as they are.
//
// Returns false, changing nothing, when no invoice has the id.
func (l *Ledger) EditInvoice(id string, updates InvoiceUpdate) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	inv, ok := l.invoicesByID[id]
	if !ok {
		l.log.Debug().Str("id", id).Msg("EditInvoice: unknown invoice id, no-op")
		return false
	}

	if updates.SerialNumber != nil {
		inv.SerialNumber = *updates.SerialNumber
	}
	if updates.Date != nil {
		inv.Date = *updates.Date
	}
	if updates.CustomerName != nil {
		inv.CustomerName = *updates.CustomerName
	}
	if updates.CustomerPhone != nil {
		phone := *updates.CustomerPhone
		inv.CustomerPhone = &phone
	}
	if updates.TotalAmount != nil {
		inv.TotalAmount = *updates.TotalAmount
	}
	if updates.TaxAmount != nil {
		inv.TaxAmount = *updates.TaxAmount
	}
	if updates.TotalInWords != nil {
		words := *updates.TotalInWords
		inv.TotalInWords = &words
	}

	// Consistency is re-checked against the edited total, not a recomputed
	// one: items are unchanged, so an operator override that disagrees with
	// the line items flips the flag to false.
	var itemSum float64
	for _, item := range inv.Items {
		itemSum += item.Amount
	}
	inv.IsConsistent = math.Abs(inv.TotalAmount-itemSum) <= consistencyTolerance

	// A supplied field is no longer missing. The extractor records the
	// serial number under its wire name "invoice_id".
	if updates.Date != nil {
		inv.MissingFields = removeField(inv.MissingFields, "date")
	}
	if updates.SerialNumber != nil {
		inv.MissingFields = removeField(inv.MissingFields, "invoice_id")
	}
	if updates.CustomerName != nil {
		inv.MissingFields = removeField(inv.MissingFields, "customerName")
	}

	l.log.Info().
		Str("id", id).
		Bool("is_consistent", inv.IsConsistent).
		Msg("Invoice edited")
	return true
}

// Invoices returns a snapshot of the invoice collection in insertion order.
func (l *Ledger) Invoices() []models.Invoice {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.Invoice, 0, len(l.invoices))
	for _, inv := range l.invoices {
		out = append(out, copyInvoice(inv))
	}
	return out
}

// Products returns a snapshot of the product collection in insertion order.
func (l *Ledger) Products() []models.Product {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.Product, 0, len(l.products))
	for _, p := range l.products {
		out = append(out, *p)
	}
	return out
}

// Customers returns a snapshot of the customer collection in insertion
// order.
func (l *Ledger) Customers() []models.Customer {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.Customer, 0, len(l.customers))
	for _, c := range l.customers {
		cc := *c
		cc.Phone = copyStringPtr(c.Phone)
		out = append(out, cc)
	}
	return out
}

// round2 rounds to two decimal places, half away from zero.
func round2(f float64) float64 {
	r, _ := decimal.NewFromFloat(f).Round(2).Float64()
	return r
}

func removeField(fields []string, name string) []string {
	out := fields[:0]
	for _, f := range fields {
		if f != name {
			out = append(out, f)
		}
	}
	return out
}

func copyInvoice(inv *models.Invoice) models.Invoice {
	out := *inv
	out.CustomerPhone = copyStringPtr(inv.CustomerPhone)
	out.TotalInWords = copyStringPtr(inv.TotalInWords)
	if inv.BankDetails != nil {
		bd := models.BankDetails{
			BankName:      copyStringPtr(inv.BankDetails.BankName),
			AccountNumber: copyStringPtr(inv.BankDetails.AccountNumber),
			IFSC:          copyStringPtr(inv.BankDetails.IFSC),
			Branch:        copyStringPtr(inv.BankDetails.Branch),
		}
		out.BankDetails = &bd
	}
	out.Items = append(make([]models.InvoiceItem, 0, len(inv.Items)), inv.Items...)
	out.MissingFields = append(make([]string, 0, len(inv.MissingFields)), inv.MissingFields...)
	return out
}

func copyStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
