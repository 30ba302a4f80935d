package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"invoicedesk/pkg/models"
)

// Normalize converts a raw extraction payload into a canonical Invoice.
//
// Upstream extractors are inconsistent about naming: the same field may
// arrive as camelCase ("invoiceId") or snake_case ("invoice_id"), nested
// ("customer.name") or flat ("customerName"). Each field is resolved from an
// ordered key list, first usable value wins, with a total default when no
// key yields anything. Normalization never fails: malformed and missing
// fields are absorbed by defaulting, not rejected.
func Normalize(raw map[string]any) *models.Invoice {
	inv := &models.Invoice{
		InvoiceID:     pickString(raw, "", "invoiceId", "invoice_id"),
		SerialNumber:  pickString(raw, "", "serialNumber", "invoice_id"),
		Date:          pickString(raw, "", "date"),
		CustomerName:  pickString(raw, "Unknown", "customerName", "customer.name"),
		CustomerPhone: pickStringPtr(raw, "customerPhone", "customer.phone"),
		TotalAmount:   pickNumber(raw, "totalAmount", "total"),
		TaxAmount:     pickNumber(raw, "taxAmount", "tax_total"),
		TotalInWords:  pickStringPtr(raw, "totalInWords", "total_in_words"),
		BankDetails:   normalizeBank(lookup(raw, "bankDetails", "bank")),
		IsConsistent:  pickBool(raw, true, "isConsistent", "is_consistent"),
		MissingFields: pickStrings(raw, "missingFields", "missing_fields"),
		Items:         []models.InvoiceItem{},
	}

	if rawItems, ok := lookup(raw, "items").([]any); ok {
		for _, ri := range rawItems {
			m, ok := ri.(map[string]any)
			if !ok {
				continue
			}
			inv.Items = append(inv.Items, normalizeItem(m))
		}
	}

	return inv
}

// normalizeItem maps one raw line item, generating a product id when the
// extractor did not supply one.
func normalizeItem(raw map[string]any) models.InvoiceItem {
	item := models.InvoiceItem{
		ProductID: pickString(raw, "", "productId", "product_id"),
		ItemName:  pickString(raw, "Unknown", "itemName", "name", "description"),
		Quantity:  pickNumber(raw, "quantity", "qty"),
		UnitPrice: pickNumber(raw, "unitPrice", "unit_price"),
		TaxAmount: pickNumber(raw, "taxAmount", "tax"),
		Amount:    pickNumber(raw, "amount", "total"),
	}
	if item.Quantity == 0 {
		item.Quantity = 1
	}
	if item.ProductID == "" {
		item.ProductID = NewProductID()
	}
	return item
}

func normalizeBank(v any) *models.BankDetails {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	return &models.BankDetails{
		BankName:      pickStringPtr(m, "bankName", "bank_name", "name"),
		AccountNumber: pickStringPtr(m, "accountNumber", "account_number", "account"),
		IFSC:          pickStringPtr(m, "ifsc"),
		Branch:        pickStringPtr(m, "branch"),
	}
}

// NewProductID returns a fresh unique product id.
func NewProductID() string {
	return "prod-" + uuid.NewString()
}

// NewCustomerID returns a fresh unique customer id.
func NewCustomerID() string {
	return "cust-" + uuid.NewString()
}

// lookup returns the first present value among the given keys. A key
// containing dots is resolved as a path through nested maps.
func lookup(raw map[string]any, keys ...string) any {
	for _, key := range keys {
		cur := any(raw)
		found := true
		for _, part := range strings.Split(key, ".") {
			m, ok := cur.(map[string]any)
			if !ok {
				found = false
				break
			}
			cur, ok = m[part]
			if !ok {
				found = false
				break
			}
		}
		if found && cur != nil {
			return cur
		}
	}
	return nil
}

// pickString resolves keys in order and returns the first non-empty string
// value, else def. Numeric values are rendered as strings so a payload that
// carries e.g. a bare serial number still normalizes.
func pickString(raw map[string]any, def string, keys ...string) string {
	for _, key := range keys {
		if s := asString(lookup(raw, key)); s != "" {
			return s
		}
	}
	return def
}

// pickStringPtr is pickString with a nil default, for nullable fields.
func pickStringPtr(raw map[string]any, keys ...string) *string {
	for _, key := range keys {
		if s := asString(lookup(raw, key)); s != "" {
			return &s
		}
	}
	return nil
}

// pickNumber resolves keys in order and returns the first non-zero numeric
// value, else 0. String-typed numbers are parsed.
func pickNumber(raw map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if n, ok := asNumber(lookup(raw, key)); ok && n != 0 {
			return n
		}
	}
	return 0
}

// pickBool returns the first present boolean among keys, else def.
func pickBool(raw map[string]any, def bool, keys ...string) bool {
	for _, key := range keys {
		if b, ok := lookup(raw, key).(bool); ok {
			return b
		}
	}
	return def
}

// pickStrings returns the first present string sequence among keys, else an
// empty slice. Non-string elements are dropped.
func pickStrings(raw map[string]any, keys ...string) []string {
	for _, key := range keys {
		switch list := lookup(raw, key).(type) {
		case []string:
			return append(make([]string, 0, len(list)), list...)
		case []any:
			out := make([]string, 0, len(list))
			for _, v := range list {
				if s, ok := v.(string); ok {
					out = append(out, s)
				}
			}
			return out
		}
	}
	return []string{}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case fmt.Stringer:
		n, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
