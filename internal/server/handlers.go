package server

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"invoicedesk/internal/extraction"
	"invoicedesk/internal/ledger"
	"invoicedesk/pkg/models"
)

// FileResult reports the outcome of extracting one uploaded file. A failed
// file never reaches the ledger; its status and message are the only trace.
// Documents yield one invoice; spreadsheets yield one per row grouping.
type FileResult struct {
	FileName string           `json:"fileName"`
	Status   string           `json:"status"` // "ok" or "error"
	Message  string           `json:"message,omitempty"`
	Invoice  *models.Invoice  `json:"invoice,omitempty"`
	Invoices []models.Invoice `json:"invoices,omitempty"`
}

// handleExtract accepts one or more uploaded documents, runs each through
// the extractor and ingests the successful ones. Results are reported per
// file; a failing file does not abort the batch.
func (s *Server) handleExtract(c *gin.Context) {
	if s.extractor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "document extraction is not configured"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected multipart form upload"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files in upload"})
		return
	}

	results := make([]FileResult, 0, len(files))
	for _, fh := range files {
		results = append(results, s.extractOne(c, fh))
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) extractOne(c *gin.Context, fh *multipart.FileHeader) FileResult {
	f, err := fh.Open()
	if err != nil {
		return FileResult{FileName: fh.Filename, Status: "error", Message: "could not read upload"}
	}
	defer f.Close()

	if extraction.IsSpreadsheet(fh.Filename) {
		return s.extractBulk(c, fh.Filename, f)
	}

	payload, err := s.extractor.Extract(c.Request.Context(), f)
	if err != nil {
		s.log.Warn().
			Err(err).
			Str("file", fh.Filename).
			Msg("Extraction failed for uploaded file")
		return FileResult{FileName: fh.Filename, Status: "error", Message: err.Error()}
	}

	inv := s.ledger.Ingest(payload)
	return FileResult{FileName: fh.Filename, Status: "ok", Invoice: &inv}
}

// extractBulk runs one spreadsheet through bulk extraction and ingests every
// invoice it yields.
func (s *Server) extractBulk(c *gin.Context, name string, f io.Reader) FileResult {
	bulk, ok := s.extractor.(extraction.BulkExtractor)
	if !ok {
		return FileResult{FileName: name, Status: "error", Message: "spreadsheet extraction is not configured"}
	}

	payloads, err := bulk.ExtractBulk(c.Request.Context(), name, f)
	if err != nil {
		s.log.Warn().
			Err(err).
			Str("file", name).
			Msg("Bulk extraction failed for uploaded spreadsheet")
		return FileResult{FileName: name, Status: "error", Message: err.Error()}
	}

	invoices := make([]models.Invoice, 0, len(payloads))
	for _, p := range payloads {
		invoices = append(invoices, s.ledger.Ingest(p))
	}
	return FileResult{FileName: name, Status: "ok", Invoices: invoices}
}

// handleIngest accepts one pre-extracted raw payload as JSON and ingests it.
// The payload shape is the extractor's loose contract; defaulting in the
// ledger absorbs anything missing.
func (s *Server) handleIngest(c *gin.Context) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inv := s.ledger.Ingest(raw)
	c.JSON(http.StatusCreated, gin.H{"invoice": inv})
}

func (s *Server) handleListInvoices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"invoices": s.ledger.Invoices()})
}

func (s *Server) handleListProducts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"products": s.ledger.Products()})
}

func (s *Server) handleListCustomers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"customers": s.ledger.Customers()})
}

// invoiceEditRequest is the wire form of a partial invoice edit. Pointer
// fields distinguish "absent" from "zero".
type invoiceEditRequest struct {
	SerialNumber  *string  `json:"serialNumber"`
	Date          *string  `json:"date"`
	CustomerName  *string  `json:"customerName"`
	CustomerPhone *string  `json:"customerPhone"`
	TotalAmount   *float64 `json:"totalAmount"`
	TaxAmount     *float64 `json:"taxAmount"`
	TotalInWords  *string  `json:"totalInWords"`
}

func (s *Server) handleEditInvoice(c *gin.Context) {
	var req invoiceEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The ledger treats an unknown id as a silent no-op; at the HTTP
	// boundary that surfaces as 404 so clients are not left guessing.
	if !s.ledger.EditInvoice(c.Param("id"), ledger.InvoiceUpdate{
		SerialNumber:  req.SerialNumber,
		Date:          req.Date,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		TotalAmount:   req.TotalAmount,
		TaxAmount:     req.TaxAmount,
		TotalInWords:  req.TotalInWords,
	}) {
		c.JSON(http.StatusNotFound, gin.H{"error": "invoice not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

type productEditRequest struct {
	Name      *string  `json:"name"`
	UnitPrice *float64 `json:"unitPrice"`
	Tax       *float64 `json:"tax"`
}

func (s *Server) handleEditProduct(c *gin.Context) {
	var req productEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !s.ledger.EditProduct(c.Param("id"), ledger.ProductUpdate{
		Name:      req.Name,
		UnitPrice: req.UnitPrice,
		Tax:       req.Tax,
	}) {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

type customerEditRequest struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
}

func (s *Server) handleEditCustomer(c *gin.Context) {
	var req customerEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !s.ledger.EditCustomer(c.Param("id"), ledger.CustomerUpdate{
		Name:  req.Name,
		Phone: req.Phone,
	}) {
		c.JSON(http.StatusNotFound, gin.H{"error": "customer not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}
