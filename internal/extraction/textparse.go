package extraction

import (
	"regexp"
	"strconv"
	"strings"
)

// Text-fallback extraction. When the structural parser under-delivers, the
// document's OCR text still carries the item table and the printed summary
// lines; these parsers reconstruct them with pattern matching.

var (
	totalPattern = regexp.MustCompile(`(?i)(?:Total Amount|Total|Amount Due).*?(\d{1,3}(?:,\d{3})*\.\d{2})`)
	taxPattern   = regexp.MustCompile(`(CGST|SGST|IGST).*?(\d{1,3}(?:,\d{3})*\.\d{2})`)
	wordsPattern = regexp.MustCompile(`(?i)Total amount.*?:\s*(.+)`)

	bankNamePattern    = regexp.MustCompile(`(?i)Bank:\s*(.+)`)
	bankAccountPattern = regexp.MustCompile(`(?i)Account\s*#:\s*(\d+)`)
	bankIFSCPattern    = regexp.MustCompile(`(?i)IFSC\s*(?:Code)?:\s*(\w+)`)
	bankBranchPattern  = regexp.MustCompile(`(?i)Branch:\s*(.+)`)

	// An item row: name, then rate, quantity and line total as the last
	// three numeric columns. Thousands separators allowed.
	itemRowPattern = regexp.MustCompile(`^(.*?)\s+([\d,.]+)\s+([\d,.]+)\s+([\d,.]+)$`)
)

// totalFromText finds the printed grand total: the last "Total ... n.nn"
// style match wins, since summary lines come after the item table.
func totalFromText(text string) float64 {
	matches := totalPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return 0
	}
	n, _ := parseAmount(matches[len(matches)-1][1])
	return n
}

// taxFromText sums the printed GST component lines (CGST/SGST/IGST).
func taxFromText(text string) float64 {
	var sum float64
	for _, m := range taxPattern.FindAllStringSubmatch(text, -1) {
		n, _ := parseAmount(m[2])
		sum += n
	}
	return sum
}

// wordsFromText finds the "Total amount (in words): ..." line, if any.
func wordsFromText(text string) string {
	if m := wordsPattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// bankFromText scrapes labeled bank detail lines from the OCR text.
func bankFromText(text string) map[string]any {
	grab := func(re *regexp.Regexp) string {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
		return ""
	}
	return map[string]any{
		"bank_name":      grab(bankNamePattern),
		"account_number": grab(bankAccountPattern),
		"ifsc":           grab(bankIFSCPattern),
		"branch":         grab(bankBranchPattern),
	}
}

// parseItemsFromText reconstructs line items from the OCR text of the item
// table: locate the header row, stop at the summary section, and parse each
// row as name + rate + quantity + total.
func parseItemsFromText(text string) []any {
	lines := []string{}
	for _, l := range strings.Split(text, "\n") {
		if t := strings.TrimSpace(l); t != "" {
			lines = append(lines, t)
		}
	}

	start := -1
	for i, line := range lines {
		if strings.Contains(line, "Description") && strings.Contains(line, "Quantity") {
			start = i + 1
			break
		}
	}
	if start == -1 {
		return nil
	}

	end := len(lines)
	for i := start; i < len(lines); i++ {
		if strings.Contains(lines[i], "Total Items") || strings.Contains(lines[i], "Sub Total") {
			end = i
			break
		}
	}

	var items []any
	for _, row := range lines[start:end] {
		m := itemRowPattern.FindStringSubmatch(row)
		if m == nil {
			continue
		}

		rate, ok1 := parseAmount(m[2])
		qty, ok2 := parseAmount(m[3])
		total, ok3 := parseAmount(m[4])
		if !ok1 || !ok2 || !ok3 {
			continue
		}

		items = append(items, map[string]any{
			"name":       strings.TrimSpace(m[1]),
			"qty":        qty,
			"unit_price": rate,
			// Per-item tax is rarely printed in the table; GST totals are
			// summed separately from the summary lines.
			"tax":   0.0,
			"total": total,
		})
	}
	return items
}

// parseAmount parses a printed amount, tolerating thousands separators.
func parseAmount(s string) (float64, bool) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimPrefix(cleaned, "₹")
	cleaned = strings.TrimPrefix(cleaned, "$")
	if cleaned == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
