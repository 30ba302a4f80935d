package extraction

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// IsSpreadsheet reports whether a filename denotes a bulk spreadsheet upload
// rather than a scanned document.
func IsSpreadsheet(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx", ".xls":
		return true
	}
	return false
}

// SpreadsheetToText converts a CSV or Excel file into normalized CSV text,
// the form the bulk LLM extraction consumes. Workbooks are read from their
// first sheet.
func SpreadsheetToText(name string, r io.Reader) (string, error) {
	const op = "SpreadsheetToText"

	var rows [][]string
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		records, err := reader.ReadAll()
		if err != nil {
			return "", WrapExtractionError(op, err, fmt.Sprintf("failed to parse CSV: %s", name))
		}
		rows = records
	case ".xlsx", ".xls":
		wb, err := excelize.OpenReader(r)
		if err != nil {
			return "", WrapExtractionError(op, err, fmt.Sprintf("failed to open workbook: %s", name))
		}
		defer wb.Close()
		rows, err = wb.GetRows(wb.GetSheetName(0))
		if err != nil {
			return "", WrapExtractionError(op, err, "failed to read first sheet")
		}
	default:
		return "", WrapExtractionError(op, ErrProcessingFailed, fmt.Sprintf("unsupported spreadsheet format: %s", name))
	}

	if len(rows) == 0 {
		return "", WrapExtractionError(op, ErrProcessingFailed, fmt.Sprintf("empty spreadsheet: %s", name))
	}

	var buf strings.Builder
	w := csv.NewWriter(&buf)
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return "", WrapExtractionError(op, err, "failed to encode CSV text")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", WrapExtractionError(op, err, "failed to encode CSV text")
	}
	return buf.String(), nil
}
