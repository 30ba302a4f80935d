package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicedesk/internal/ledger"
	"invoicedesk/pkg/models"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(ledger.New(), nil)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func ingestFixture(t *testing.T, s *Server) {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/invoices", map[string]any{
		"invoiceId":    "INV-1",
		"customerName": "Acme",
		"totalAmount":  21.0,
		"items": []any{
			map[string]any{
				"productId": "P1", "itemName": "Widget",
				"quantity": 2.0, "unitPrice": 10.0, "taxAmount": 1.0, "amount": 21.0,
			},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestIngestAndListCollections(t *testing.T) {
	s := newTestServer(t)
	ingestFixture(t, s)

	w := doJSON(t, s, http.MethodGet, "/api/invoices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var invResp struct {
		Invoices []models.Invoice `json:"invoices"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &invResp))
	require.Len(t, invResp.Invoices, 1)
	assert.Equal(t, "INV-1", invResp.Invoices[0].InvoiceID)

	w = doJSON(t, s, http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var prodResp struct {
		Products []models.Product `json:"products"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &prodResp))
	require.Len(t, prodResp.Products, 1)
	assert.Equal(t, "Widget", prodResp.Products[0].Name)

	w = doJSON(t, s, http.MethodGet, "/api/customers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var custResp struct {
		Customers []models.Customer `json:"customers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &custResp))
	require.Len(t, custResp.Customers, 1)
	assert.Equal(t, 21.0, custResp.Customers[0].TotalPurchaseAmount)
}

func TestProductEditCascadesOverHTTP(t *testing.T) {
	s := newTestServer(t)
	ingestFixture(t, s)

	w := doJSON(t, s, http.MethodPatch, "/api/products/P1", map[string]any{"unitPrice": 20.0})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/invoices", nil)
	var invResp struct {
		Invoices []models.Invoice `json:"invoices"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &invResp))
	require.Len(t, invResp.Invoices, 1)
	assert.Equal(t, 41.0, invResp.Invoices[0].TotalAmount)
	assert.True(t, invResp.Invoices[0].IsConsistent)

	w = doJSON(t, s, http.MethodGet, "/api/customers", nil)
	var custResp struct {
		Customers []models.Customer `json:"customers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &custResp))
	require.Len(t, custResp.Customers, 1)
	assert.Equal(t, 41.0, custResp.Customers[0].TotalPurchaseAmount)
}

func TestEditUnknownIDReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	ingestFixture(t, s)

	tests := []struct {
		path string
		body map[string]any
	}{
		{"/api/invoices/nope", map[string]any{"totalAmount": 1.0}},
		{"/api/products/nope", map[string]any{"unitPrice": 1.0}},
		{"/api/customers/nope", map[string]any{"name": "X"}},
	}
	for _, tt := range tests {
		w := doJSON(t, s, http.MethodPatch, tt.path, tt.body)
		assert.Equal(t, http.StatusNotFound, w.Code, tt.path)
	}
}

func TestEditInvoiceOverHTTPDoesNotTouchAggregates(t *testing.T) {
	s := newTestServer(t)
	ingestFixture(t, s)

	w := doJSON(t, s, http.MethodPatch, "/api/invoices/INV-1", map[string]any{"totalAmount": 500.0})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/customers", nil)
	var custResp struct {
		Customers []models.Customer `json:"customers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &custResp))
	require.Len(t, custResp.Customers, 1)
	assert.Equal(t, 21.0, custResp.Customers[0].TotalPurchaseAmount)
}

func TestExtractUnavailableWithoutExtractor(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/extract", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// bulkStub serves spreadsheet uploads with canned payloads; single-document
// extraction is unused in these tests.
type bulkStub struct {
	payloads []map[string]any
}

func (b *bulkStub) Extract(ctx context.Context, doc io.Reader) (map[string]any, error) {
	return nil, errors.New("not a document extractor")
}

func (b *bulkStub) ExtractBulk(ctx context.Context, name string, doc io.Reader) ([]map[string]any, error) {
	return b.payloads, nil
}

// singleStub implements only document extraction.
type singleStub struct{}

func (singleStub) Extract(ctx context.Context, doc io.Reader) (map[string]any, error) {
	return nil, errors.New("unused")
}

func uploadFile(t *testing.T, s *Server, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("files", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/extract", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestExtractSpreadsheetIngestsEveryInvoice(t *testing.T) {
	stub := &bulkStub{payloads: []map[string]any{
		{
			"invoice_id": "INV-1",
			"customer":   map[string]any{"name": "Acme"},
			"total":      100.0,
			"items": []any{
				map[string]any{"name": "Widget", "qty": 1.0, "unit_price": 100.0, "total": 100.0},
			},
		},
		{
			"invoice_id": "INV-2",
			"customer":   map[string]any{"name": "Globex"},
			"total":      55.0,
			"items": []any{
				map[string]any{"name": "Invoice Balance", "qty": 1.0, "unit_price": 50.0, "tax": 5.0, "total": 55.0},
			},
		},
	}}
	s := New(ledger.New(), stub)

	w := uploadFile(t, s, "bulk.csv", []byte("Serial Number,Party Name\n"))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Results []FileResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "ok", resp.Results[0].Status)
	assert.Len(t, resp.Results[0].Invoices, 2)

	w = doJSON(t, s, http.MethodGet, "/api/invoices", nil)
	var invResp struct {
		Invoices []models.Invoice `json:"invoices"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &invResp))
	require.Len(t, invResp.Invoices, 2)
	assert.Equal(t, "INV-1", invResp.Invoices[0].InvoiceID)
	assert.Equal(t, "INV-2", invResp.Invoices[1].InvoiceID)

	w = doJSON(t, s, http.MethodGet, "/api/customers", nil)
	var custResp struct {
		Customers []models.Customer `json:"customers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &custResp))
	assert.Len(t, custResp.Customers, 2)
}

func TestExtractSpreadsheetWithoutBulkSupport(t *testing.T) {
	s := New(ledger.New(), singleStub{})

	w := uploadFile(t, s, "bulk.xlsx", []byte("not used"))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Results []FileResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "error", resp.Results[0].Status)
	assert.Contains(t, resp.Results[0].Message, "not configured")
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
