package extraction

import (
	"strings"

	"github.com/shopspring/decimal"
)

// auditTolerance is the variance below which a payload's stated total is
// considered consistent with its item arithmetic at the source. Wider than
// the ledger's tolerance: extraction noise is larger than rounding noise.
const auditTolerance = 5.0

// Audit standardizes a raw payload in place and returns it: item keys are
// unified (qty/quantity), zero quantities default to 1, line amounts and the
// subtotal/tax_total aggregates are recomputed, a missing grand total is
// filled from the items, and the payload is stamped with is_consistent and
// missing_fields. Nothing is ever rejected; the audit flags, it does not
// validate.
//
// The stamped is_consistent and missing_fields values are exactly what the
// ledger's normalizer passes through: the ledger itself never grows either.
func Audit(raw map[string]any) map[string]any {
	if raw == nil {
		raw = map[string]any{}
	}

	rawItems, _ := raw["items"].([]any)
	cleanItems := make([]any, 0, len(rawItems))

	var subtotal, taxTotal float64
	for _, ri := range rawItems {
		item, ok := ri.(map[string]any)
		if !ok {
			continue
		}

		name := strings.TrimSpace(stringValue(item, "name", "itemName", "description"))
		if name == "" {
			continue
		}

		qty := numberValue(item, "quantity", "qty")
		if qty <= 0 {
			qty = 1
		}
		unitPrice := numberValue(item, "unit_price", "unitPrice")
		tax := numberValue(item, "tax", "taxAmount")

		amount := numberValue(item, "total", "amount")
		if amount == 0 {
			amount = qty * unitPrice
		}

		subtotal += qty * unitPrice
		taxTotal += tax

		cleanItems = append(cleanItems, map[string]any{
			"name":       name,
			"quantity":   qty,
			"unit_price": unitPrice,
			"tax":        tax,
			"total":      amount,
		})
	}

	raw["items"] = cleanItems
	raw["subtotal"] = roundTo2(subtotal)

	// Per-item tax wins when the table carried it; otherwise keep whatever
	// invoice-level tax total the extractor found (GST summary lines).
	if taxTotal > 0 || numberValue(raw, "tax_total") == 0 {
		raw["tax_total"] = roundTo2(taxTotal)
	}
	invoiceTax := numberValue(raw, "tax_total")

	extractedTotal := numberValue(raw, "total")
	var variance float64
	if extractedTotal <= 0 {
		raw["total"] = roundTo2(subtotal + invoiceTax)
	} else {
		variance = extractedTotal - (subtotal + invoiceTax)
		if variance < 0 {
			variance = -variance
		}
	}
	raw["is_consistent"] = variance < auditTolerance

	// Pass extras through, defaulted rather than absent
	if _, ok := raw["total_in_words"]; !ok {
		raw["total_in_words"] = nil
	}
	if _, ok := raw["bank"].(map[string]any); !ok {
		raw["bank"] = map[string]any{
			"bank_name":      nil,
			"account_number": nil,
			"ifsc":           nil,
			"branch":         nil,
		}
	}

	missing := []string{}
	if isBlank(stringValue(raw, "invoice_id", "invoiceId")) {
		missing = append(missing, "invoice_id")
	}
	if isBlank(stringValue(raw, "date")) {
		missing = append(missing, "date")
	}
	if customer, ok := raw["customer"].(map[string]any); !ok || isBlank(stringValue(customer, "name")) {
		missing = append(missing, "customerName")
	}
	if len(cleanItems) == 0 {
		missing = append(missing, "items")
	}
	raw["missing_fields"] = missing

	return raw
}

// isBlank reports whether an extracted string carries no information.
func isBlank(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown", "null", "none":
		return true
	}
	return false
}

func stringValue(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func numberValue(m map[string]any, keys ...string) float64 {
	for _, key := range keys {
		switch v := m[key].(type) {
		case float64:
			if v != 0 {
				return v
			}
		case int:
			if v != 0 {
				return float64(v)
			}
		}
	}
	return 0
}

func roundTo2(f float64) float64 {
	r, _ := decimal.NewFromFloat(f).Round(2).Float64()
	return r
}
