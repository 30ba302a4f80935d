package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

// rawInvoice builds a minimal raw payload for one customer with the given
// items and stated total.
func rawInvoice(invoiceID, customer string, total float64, items ...map[string]any) map[string]any {
	list := make([]any, 0, len(items))
	for _, item := range items {
		list = append(list, item)
	}
	return map[string]any{
		"invoiceId":    invoiceID,
		"customerName": customer,
		"totalAmount":  total,
		"items":        list,
	}
}

func TestIngestEmptyItemsTouchesNoProducts(t *testing.T) {
	l := New()

	inv := l.Ingest(rawInvoice("INV-1", "Acme", 0))

	assert.Empty(t, inv.Items)
	assert.Len(t, l.Invoices(), 1)
	assert.Empty(t, l.Products())
}

func TestServiceChargesNeverBecomeProducts(t *testing.T) {
	l := New()

	l.Ingest(rawInvoice("INV-1", "Acme", 100,
		map[string]any{"itemName": "Shipping Fee", "quantity": 1.0, "unitPrice": 100.0},
	))

	assert.Empty(t, l.Products(), "service charges are excluded from product aggregation")

	// Still excluded when real products exist alongside
	l.Ingest(rawInvoice("INV-2", "Acme", 150,
		map[string]any{"itemName": "Widget", "quantity": 1.0, "unitPrice": 50.0},
		map[string]any{"itemName": "Making Charges", "quantity": 1.0, "unitPrice": 100.0},
	))

	products := l.Products()
	require.Len(t, products, 1)
	assert.Equal(t, "Widget", products[0].Name)
}

func TestIsServiceCharge(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Shipping Fee", true},
		{"shipping", true},
		{"Debit Card CHARGE", true},
		{"Making charges", true},
		{"Processing fee", true},
		{"Widget", false},
		{"Coffee Table", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsServiceCharge(tt.name), tt.name)
	}
}

func TestProductDedupByNameOverwritesPriceAccumulatesQuantity(t *testing.T) {
	l := New()

	l.Ingest(rawInvoice("INV-1", "Acme", 0,
		map[string]any{"itemName": "Widget", "quantity": 2.0, "unitPrice": 10.0, "taxAmount": 1.0},
	))
	l.Ingest(rawInvoice("INV-2", "Acme", 0,
		map[string]any{"itemName": "Widget", "quantity": 3.0, "unitPrice": 12.0, "taxAmount": 2.0},
	))

	products := l.Products()
	require.Len(t, products, 1)
	p := products[0]
	assert.Equal(t, "Widget", p.Name)
	assert.Equal(t, 12.0, p.UnitPrice, "later invoice overwrites unit economics")
	assert.Equal(t, 2.0, p.Tax)
	assert.Equal(t, 14.0, p.PriceWithTax)
	assert.Equal(t, 5.0, p.Quantity, "quantity is a running total")
}

func TestProductZeroPriceOccurrenceKeepsEconomicsAddsQuantity(t *testing.T) {
	l := New()

	l.Ingest(rawInvoice("INV-1", "Acme", 0,
		map[string]any{"itemName": "Widget", "quantity": 2.0, "unitPrice": 10.0, "taxAmount": 1.0},
	))
	l.Ingest(rawInvoice("INV-2", "Acme", 0,
		map[string]any{"itemName": "Widget", "quantity": 4.0},
	))

	products := l.Products()
	require.Len(t, products, 1)
	assert.Equal(t, 10.0, products[0].UnitPrice)
	assert.Equal(t, 1.0, products[0].Tax)
	assert.Equal(t, 6.0, products[0].Quantity)
}

func TestCustomerAccumulation(t *testing.T) {
	l := New()

	l.Ingest(rawInvoice("INV-1", "Acme", 100))
	l.Ingest(rawInvoice("INV-2", "Acme", 50))

	customers := l.Customers()
	require.Len(t, customers, 1)
	assert.Equal(t, "Acme", customers[0].Name)
	assert.Equal(t, 150.0, customers[0].TotalPurchaseAmount)
}

func TestUnknownCustomerCreatesNoRecord(t *testing.T) {
	l := New()

	l.Ingest(map[string]any{"invoiceId": "INV-1", "totalAmount": 100.0})
	l.Ingest(rawInvoice("INV-2", "Unknown", 50))

	assert.Len(t, l.Invoices(), 2)
	assert.Empty(t, l.Customers())
}

func TestProductEditCascade(t *testing.T) {
	l := New()

	l.Ingest(rawInvoice("INV-1", "Acme", 21,
		map[string]any{
			"productId": "P1", "itemName": "Widget",
			"quantity": 2.0, "unitPrice": 10.0, "taxAmount": 1.0, "amount": 21.0,
		},
	))

	ok := l.EditProduct("P1", ProductUpdate{UnitPrice: ptr(20.0)})
	require.True(t, ok)

	products := l.Products()
	require.Len(t, products, 1)
	assert.Equal(t, 20.0, products[0].UnitPrice)
	assert.Equal(t, 21.0, products[0].PriceWithTax)

	invoices := l.Invoices()
	require.Len(t, invoices, 1)
	inv := invoices[0]
	require.Len(t, inv.Items, 1)
	assert.Equal(t, 41.0, inv.Items[0].Amount, "amount = unitPrice*quantity + tax")
	assert.Equal(t, 41.0, inv.TotalAmount, "invoice total re-derived from items")
	assert.Equal(t, 1.0, inv.TaxAmount)
	assert.True(t, inv.IsConsistent)

	customers := l.Customers()
	require.Len(t, customers, 1)
	assert.Equal(t, 41.0, customers[0].TotalPurchaseAmount,
		"customer total re-summed from cascaded invoice totals")
}

func TestProductEditRenamesReferencingItems(t *testing.T) {
	l := New()

	l.Ingest(rawInvoice("INV-1", "Acme", 20,
		map[string]any{"productId": "P1", "itemName": "Widget", "quantity": 1.0, "unitPrice": 20.0, "amount": 20.0},
		map[string]any{"productId": "P2", "itemName": "Gear", "quantity": 1.0, "unitPrice": 5.0, "amount": 5.0},
	))

	require.True(t, l.EditProduct("P1", ProductUpdate{Name: ptr("Widget Pro")}))

	inv := l.Invoices()[0]
	assert.Equal(t, "Widget Pro", inv.Items[0].ItemName)
	assert.Equal(t, "Gear", inv.Items[1].ItemName, "unrelated items untouched")
}

func TestConsistencyHoldsAfterEveryProductEdit(t *testing.T) {
	l := New()

	l.Ingest(rawInvoice("INV-1", "Acme", 999,
		map[string]any{"productId": "P1", "itemName": "Widget", "quantity": 3.0, "unitPrice": 7.5, "taxAmount": 0.33},
	))
	l.Ingest(rawInvoice("INV-2", "Globex", 5,
		map[string]any{"productId": "P2", "itemName": "Gear", "quantity": 1.0, "unitPrice": 5.0},
	))

	for _, price := range []float64{1.11, 250, 0.07} {
		require.True(t, l.EditProduct("P1", ProductUpdate{UnitPrice: ptr(price)}))
		for _, inv := range l.Invoices() {
			assert.True(t, inv.IsConsistent,
				"invoice %s inconsistent after product edit to %v", inv.InvoiceID, price)
		}
	}
}

func TestInvoiceEditDoesNotCascade(t *testing.T) {
	l := New()

	l.Ingest(rawInvoice("INV-1", "Acme", 21,
		map[string]any{"productId": "P1", "itemName": "Widget", "quantity": 2.0, "unitPrice": 10.0, "taxAmount": 1.0, "amount": 21.0},
	))
	productsBefore := l.Products()
	customersBefore := l.Customers()

	require.True(t, l.EditInvoice("INV-1", InvoiceUpdate{TotalAmount: ptr(500.0)}))

	assert.Equal(t, productsBefore, l.Products(), "product aggregates untouched by invoice edit")
	assert.Equal(t, customersBefore, l.Customers(), "customer aggregates untouched by invoice edit")

	inv := l.Invoices()[0]
	assert.Equal(t, 500.0, inv.TotalAmount)
	assert.False(t, inv.IsConsistent, "edited total disagrees with unchanged items")
}

func TestInvoiceEditConsistencyWithinTolerance(t *testing.T) {
	l := New()

	l.Ingest(rawInvoice("INV-1", "Acme", 21,
		map[string]any{"productId": "P1", "itemName": "Widget", "quantity": 2.0, "unitPrice": 10.0, "taxAmount": 1.0, "amount": 21.0},
	))

	require.True(t, l.EditInvoice("INV-1", InvoiceUpdate{TotalAmount: ptr(21.6)}))
	assert.True(t, l.Invoices()[0].IsConsistent, "difference of 0.6 is within tolerance")
}

func TestInvoiceEditClearsSuppliedMissingFields(t *testing.T) {
	l := New()

	l.Ingest(map[string]any{
		"invoiceId":     "INV-1",
		"customerName":  "Acme",
		"missingFields": []any{"date", "invoice_id", "customerName"},
	})

	require.True(t, l.EditInvoice("INV-1", InvoiceUpdate{Date: ptr("2024-04-01")}))
	assert.Equal(t, []string{"invoice_id", "customerName"}, l.Invoices()[0].MissingFields)

	require.True(t, l.EditInvoice("INV-1", InvoiceUpdate{
		SerialNumber: ptr("SN-9"),
		CustomerName: ptr("Acme Corp"),
	}))
	assert.Empty(t, l.Invoices()[0].MissingFields)
}

func TestCustomerRenamePropagatesToInvoices(t *testing.T) {
	l := New()

	l.Ingest(rawInvoice("INV-1", "A", 100,
		map[string]any{"productId": "P1", "itemName": "Widget", "quantity": 1.0, "unitPrice": 100.0, "amount": 100.0},
	))
	l.Ingest(rawInvoice("INV-2", "A", 50,
		map[string]any{"productId": "P1", "itemName": "Widget", "quantity": 1.0, "unitPrice": 50.0, "amount": 50.0},
	))

	customers := l.Customers()
	require.Len(t, customers, 1)

	require.True(t, l.EditCustomer(customers[0].ID, CustomerUpdate{Name: ptr("B")}))

	for _, inv := range l.Invoices() {
		assert.Equal(t, "B", inv.CustomerName)
	}

	// A later product-edit recompute must attribute the totals to "B".
	require.True(t, l.EditProduct("P1", ProductUpdate{UnitPrice: ptr(60.0)}))

	customers = l.Customers()
	require.Len(t, customers, 1)
	assert.Equal(t, "B", customers[0].Name)
	assert.Equal(t, 120.0, customers[0].TotalPurchaseAmount, "two invoices at 60 each")
}

func TestEditsOnUnknownIDsAreNoOps(t *testing.T) {
	l := New()
	l.Ingest(rawInvoice("INV-1", "Acme", 100,
		map[string]any{"productId": "P1", "itemName": "Widget", "quantity": 1.0, "unitPrice": 100.0, "amount": 100.0},
	))

	invoicesBefore := l.Invoices()
	productsBefore := l.Products()
	customersBefore := l.Customers()

	assert.False(t, l.EditProduct("nope", ProductUpdate{UnitPrice: ptr(1.0)}))
	assert.False(t, l.EditCustomer("nope", CustomerUpdate{Name: ptr("X")}))
	assert.False(t, l.EditInvoice("nope", InvoiceUpdate{TotalAmount: ptr(1.0)}))

	assert.Equal(t, invoicesBefore, l.Invoices())
	assert.Equal(t, productsBefore, l.Products())
	assert.Equal(t, customersBefore, l.Customers())
}

func TestSnapshotsAreIsolatedFromInternalState(t *testing.T) {
	l := New()
	l.Ingest(rawInvoice("INV-1", "Acme", 100,
		map[string]any{"productId": "P1", "itemName": "Widget", "quantity": 1.0, "unitPrice": 100.0, "amount": 100.0},
	))

	invoices := l.Invoices()
	invoices[0].CustomerName = "Mallory"
	invoices[0].Items[0].UnitPrice = 0

	products := l.Products()
	products[0].Quantity = 999

	fresh := l.Invoices()
	assert.Equal(t, "Acme", fresh[0].CustomerName)
	assert.Equal(t, 100.0, fresh[0].Items[0].UnitPrice)
	assert.Equal(t, 1.0, l.Products()[0].Quantity)
}

func TestInsertionOrderIsIterationOrder(t *testing.T) {
	l := New()
	l.Ingest(rawInvoice("INV-1", "Zeta", 1,
		map[string]any{"itemName": "Zed", "unitPrice": 1.0, "quantity": 1.0},
	))
	l.Ingest(rawInvoice("INV-2", "Alpha", 1,
		map[string]any{"itemName": "Aye", "unitPrice": 1.0, "quantity": 1.0},
	))

	invoices := l.Invoices()
	require.Len(t, invoices, 2)
	assert.Equal(t, "INV-1", invoices[0].InvoiceID)
	assert.Equal(t, "INV-2", invoices[1].InvoiceID)

	products := l.Products()
	require.Len(t, products, 2)
	assert.Equal(t, "Zed", products[0].Name)
	assert.Equal(t, "Aye", products[1].Name)

	customers := l.Customers()
	require.Len(t, customers, 2)
	assert.Equal(t, "Zeta", customers[0].Name)
	assert.Equal(t, "Alpha", customers[1].Name)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 41.0, round2(41.000000001))
	assert.Equal(t, 10.56, round2(10.555))
	assert.Equal(t, 0.0, round2(0))
}
