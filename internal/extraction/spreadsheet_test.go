package extraction

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestIsSpreadsheet(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"bulk.csv", true},
		{"Month-End.XLSX", true},
		{"legacy.xls", true},
		{"invoice.pdf", false},
		{"payload.json", false},
		{"noext", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsSpreadsheet(tt.name), tt.name)
	}
}

func TestSpreadsheetToTextNormalizesCSV(t *testing.T) {
	in := "Serial Number,Party Name,Total Amount\n" +
		"INV-1,\"Acme, Inc\",100\n" +
		"INV-2,Globex,55\n"

	out, err := SpreadsheetToText("bulk.csv", strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSpreadsheetToTextReadsWorkbookFirstSheet(t *testing.T) {
	wb := excelize.NewFile()
	sheet := wb.GetSheetName(0)
	require.NoError(t, wb.SetSheetRow(sheet, "A1", &[]any{"Serial Number", "Party Name"}))
	require.NoError(t, wb.SetSheetRow(sheet, "A2", &[]any{"INV-1", "Acme"}))

	var buf bytes.Buffer
	require.NoError(t, wb.Write(&buf))

	out, err := SpreadsheetToText("export.xlsx", &buf)
	require.NoError(t, err)
	assert.Equal(t, "Serial Number,Party Name\nINV-1,Acme\n", out)
}

func TestSpreadsheetToTextEmptyFile(t *testing.T) {
	_, err := SpreadsheetToText("empty.csv", strings.NewReader(""))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProcessingFailed)
}

func TestSpreadsheetToTextUnsupportedExtension(t *testing.T) {
	_, err := SpreadsheetToText("scan.pdf", strings.NewReader("ignored"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProcessingFailed)
}
